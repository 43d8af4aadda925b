package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeQuerier struct {
	mu      sync.Mutex
	replies map[string]string
	fail    map[string]error
	panics  map[string]bool
	calls   []string
}

func (q *fakeQuerier) Query(_ context.Context, args []string) (json.RawMessage, error) {
	key := strings.Join(args, " ")
	q.mu.Lock()
	q.calls = append(q.calls, key)
	q.mu.Unlock()

	if q.panics[key] {
		panic("boom")
	}
	if err := q.fail[key]; err != nil {
		return nil, err
	}
	return json.RawMessage(q.replies[key]), nil
}

type statePublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type fakeBus struct {
	mu        sync.Mutex
	published []statePublish
	err       error
}

func (b *fakeBus) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, statePublish{topic, payload, qos, retained})
	return nil
}

type fakeHistory struct {
	groups []string
	err    error
}

func (h *fakeHistory) WriteGroupState(_, group string, _ []byte, _ time.Time) (int, error) {
	h.groups = append(h.groups, group)
	return 1, h.err
}

var testGroups = []Group{
	{Name: "status", Args: []string{"status"}},
	{Name: "settings/regulation", Args: []string{"get", "settings", "regulation.*"}},
	{Name: "settings/boiler", Args: []string{"get", "settings", "boiler.*"}},
}

func newTestExecutor(t *testing.T, q Querier, bus Publisher, history HistorySink) *Executor {
	t.Helper()
	e, err := NewExecutor(ExecutorOptions{
		Groups:     testGroups,
		Querier:    q,
		Bus:        bus,
		History:    history,
		DeviceID:   "aduro_h2",
		StateTopic: func(g string) string { return "aduro2mqtt/" + g },
	})
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	return e
}

func TestExecutorPublishesEveryGroup(t *testing.T) {
	q := &fakeQuerier{replies: map[string]string{
		"status":                    `{"boiler_temp":21}`,
		"get settings regulation.*": `{"fixed_power":50}`,
		"get settings boiler.*":     `{"temp":22}`,
	}}
	bus := &fakeBus{}
	history := &fakeHistory{}

	report := newTestExecutor(t, q, bus, history).Run(context.Background())

	if len(report.Succeeded()) != 3 || len(report.Failed()) != 0 {
		t.Fatalf("report = %+v", report)
	}
	want := []string{"aduro2mqtt/status", "aduro2mqtt/settings/regulation", "aduro2mqtt/settings/boiler"}
	for i, p := range bus.published {
		if p.Topic != want[i] {
			t.Errorf("published[%d] topic = %q, want %q", i, p.Topic, want[i])
		}
		if p.Retained || p.QoS != 0 {
			t.Errorf("published[%d] retained=%v qos=%d, want plain qos 0", i, p.Retained, p.QoS)
		}
	}
	if len(history.groups) != 3 {
		t.Errorf("history stored %d snapshots, want 3", len(history.groups))
	}
}

func TestExecutorIsolatesGroupFailure(t *testing.T) {
	q := &fakeQuerier{
		replies: map[string]string{
			"status":                    `{"boiler_temp":21}`,
			"get settings regulation.*": `{"fixed_power":50}`,
		},
		fail: map[string]error{"get settings boiler.*": errors.New("appliance timed out")},
	}
	bus := &fakeBus{}

	report := newTestExecutor(t, q, bus, nil).Run(context.Background())

	if len(bus.published) != 2 {
		t.Errorf("published %d state topics, want 2", len(bus.published))
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].Group != "settings/boiler" {
		t.Fatalf("Failed() = %+v", failed)
	}
	if !errors.Is(failed[0].Err, ErrGroupFailed) {
		t.Errorf("failure error = %v, want ErrGroupFailed", failed[0].Err)
	}
	if len(q.calls) != 3 {
		t.Errorf("querier called %d times, want 3", len(q.calls))
	}
}

func TestExecutorRecoversQueryPanic(t *testing.T) {
	q := &fakeQuerier{
		replies: map[string]string{"get settings boiler.*": `{"temp":22}`},
		panics:  map[string]bool{"status": true},
	}
	bus := &fakeBus{}

	report := newTestExecutor(t, q, bus, nil).Run(context.Background())

	if len(report.Failed()) != 1 || report.Failed()[0].Group != "status" {
		t.Errorf("Failed() = %+v", report.Failed())
	}
	if len(report.Succeeded()) != 2 {
		t.Errorf("Succeeded() = %d, want 2", len(report.Succeeded()))
	}
}

func TestExecutorPublishFailure(t *testing.T) {
	q := &fakeQuerier{replies: map[string]string{"status": `{}`}}
	bus := &fakeBus{err: errors.New("not connected")}
	history := &fakeHistory{}

	report := newTestExecutor(t, q, bus, history).Run(context.Background())

	for _, res := range report.Results {
		if !errors.Is(res.Err, ErrPublishFailed) {
			t.Errorf("%s: error = %v, want ErrPublishFailed", res.Group, res.Err)
		}
	}
	if len(history.groups) != 0 {
		t.Error("unpublished snapshots reached the history sink")
	}
}

func TestExecutorHistoryErrorIgnored(t *testing.T) {
	q := &fakeQuerier{replies: map[string]string{"status": `{"boiler_temp":21}`}}
	history := &fakeHistory{err: errors.New("influx down")}

	report := newTestExecutor(t, q, &fakeBus{}, history).Run(context.Background())
	if len(report.Failed()) != 0 {
		t.Errorf("history failure failed the refresh: %+v", report.Failed())
	}
}

func TestExecutorCanceledContext(t *testing.T) {
	q := &fakeQuerier{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := newTestExecutor(t, q, &fakeBus{}, nil).Run(ctx)

	if len(report.Failed()) != 3 {
		t.Errorf("Failed() = %d, want 3", len(report.Failed()))
	}
	if len(q.calls) != 0 {
		t.Errorf("querier called %d times after cancel", len(q.calls))
	}
}

func TestNewExecutorValidation(t *testing.T) {
	if _, err := NewExecutor(ExecutorOptions{}); !errors.Is(err, ErrNoGroups) {
		t.Errorf("NewExecutor(no groups) error = %v, want ErrNoGroups", err)
	}

	tests := []struct {
		name string
		opts ExecutorOptions
	}{
		{"no querier", ExecutorOptions{Groups: testGroups, Bus: &fakeBus{}, StateTopic: func(g string) string { return g }}},
		{"no bus", ExecutorOptions{Groups: testGroups, Querier: &fakeQuerier{}, StateTopic: func(g string) string { return g }}},
		{"no state topic", ExecutorOptions{Groups: testGroups, Querier: &fakeQuerier{}, Bus: &fakeBus{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewExecutor(tt.opts); !errors.Is(err, ErrMissingDependency) {
				t.Errorf("NewExecutor() error = %v, want ErrMissingDependency", err)
			}
		})
	}
}

func TestExecutorGroupsIsACopy(t *testing.T) {
	e := newTestExecutor(t, &fakeQuerier{}, &fakeBus{}, nil)

	groups := e.Groups()
	if len(groups) != len(testGroups) {
		t.Fatalf("Groups() returned %d groups, want %d", len(groups), len(testGroups))
	}
	for i, g := range groups {
		if g.Name != testGroups[i].Name {
			t.Errorf("Groups()[%d] = %s, want %s", i, g.Name, testGroups[i].Name)
		}
	}
	groups[0].Name = "changed"
	if e.Groups()[0].Name != "status" {
		t.Error("Groups() exposes the executor's slice")
	}
}
