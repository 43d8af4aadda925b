package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/aduro-bridge/internal/infrastructure/config"
	"github.com/nerrad567/aduro-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/aduro-bridge/internal/refresh"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	retained  map[string][]byte
	handlers  map[string]mqtt.MessageHandler
	connected bool
	qos       byte
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		retained:  make(map[string][]byte),
		handlers:  make(map[string]mqtt.MessageHandler),
		connected: true,
		qos:       1,
	}
}

func (m *MockMQTTClient) PublishRetained(topic string, payload []byte) error {
	return m.Publish(topic, payload, m.qos, true)
}

func (m *MockMQTTClient) ClearRetained(topic string) error {
	return m.Publish(topic, nil, m.qos, true)
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return mqtt.ErrNotConnected
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	if retained {
		if len(payload) == 0 {
			delete(m.retained, topic)
		} else {
			m.retained[topic] = payload
		}
	}
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) CollectRetained(ctx context.Context, filter string, _ time.Duration, accept func(string) bool) ([]mqtt.RetainedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := mqtt.NewCollector(accept)
	for topic, payload := range m.retained {
		if mqtt.Match(filter, topic) {
			_ = c.Add(topic, payload)
		}
	}
	return c.Messages(), nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// deliver simulates an inbound message.
func (m *MockMQTTClient) deliver(t *testing.T, topic string, payload string) {
	t.Helper()
	m.mu.Lock()
	h, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", topic)
	}
	if err := h(topic, []byte(payload)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockMQTTClient) publishedTo(prefix string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if strings.HasPrefix(p.Topic, prefix) {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockMQTTClient) hasSubscription(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[topic]
	return ok
}

func (m *MockMQTTClient) retainedTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.retained))
	for t := range m.retained {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// fakeAppliance answers queries from a table.
type fakeAppliance struct {
	mu       sync.Mutex
	queries  []string
	commands []string
	fail     map[string]bool
	done     chan struct{}
}

func (a *fakeAppliance) Query(_ context.Context, args []string) (json.RawMessage, error) {
	key := strings.Join(args, " ")
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queries = append(a.queries, key)
	if a.fail[key] {
		return nil, errors.New("appliance did not answer")
	}
	return json.RawMessage(`{"ok":1}`), nil
}

func (a *fakeAppliance) Command(_ context.Context, path, value string) error {
	a.mu.Lock()
	a.commands = append(a.commands, path+"="+value)
	a.mu.Unlock()
	if a.done != nil {
		a.done <- struct{}{}
	}
	return nil
}

func (a *fakeAppliance) queryCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queries)
}

// manualScheduler fires timers only when told to.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) refresh.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, f: f}
	s.timers = append(s.timers, t)
	return t
}

// fire runs every pending timer and reports how many ran.
func (s *manualScheduler) fire() int {
	s.mu.Lock()
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.stopped {
			t.stopped = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Health.Interval = time.Hour
	return cfg
}

func newTestBridge(t *testing.T, cfg *config.Config, app *fakeAppliance) (*Bridge, *MockMQTTClient, *manualScheduler) {
	t.Helper()
	client := NewMockMQTTClient()
	sched := &manualScheduler{}
	opts := Options{
		Config:     cfg,
		MQTTClient: client,
		Scheduler:  sched,
		Version:    "test",
	}
	if app != nil {
		opts.Appliance = app
	}
	b, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b, client, sched
}

func TestStartPublishesCatalog(t *testing.T) {
	b, client, _ := newTestBridge(t, testConfig(), &fakeAppliance{})

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	docs := client.publishedTo("homeassistant/")
	// 15 catalog entries minus the two excluded by default.
	if len(docs) != 13 {
		t.Errorf("published %d discovery documents, want 13", len(docs))
	}
	for _, d := range docs {
		if !d.Retained || d.QoS != 1 {
			t.Errorf("%s: retained=%v qos=%d", d.Topic, d.Retained, d.QoS)
		}
		if strings.Contains(d.Topic, "return_temp") || strings.Contains(d.Topic, "boiler_pump_state") {
			t.Errorf("excluded entity published: %s", d.Topic)
		}
		if !strings.Contains(string(d.Payload), `"avty_t":"aduro2mqtt/bridge/availability"`) {
			t.Errorf("%s: document has no availability topic", d.Topic)
		}
	}

	if len(b.Entities()) != 13 {
		t.Errorf("Entities() = %d, want 13", len(b.Entities()))
	}
	if !client.hasSubscription("aduro2mqtt/set") || !client.hasSubscription("aduro2mqtt/bridge/refresh") {
		t.Error("command and refresh topics not subscribed")
	}
	if client.hasSubscription("aduro2mqtt/status") {
		t.Error("telemetry subscribed with inference disabled")
	}

	health := client.publishedTo("aduro2mqtt/bridge/health")
	if len(health) == 0 {
		t.Fatal("no health published")
	}
	var msg HealthMessage
	if err := json.Unmarshal(health[0].Payload, &msg); err != nil || msg.Status != HealthStarting {
		t.Errorf("first health message = %s (err %v)", health[0].Payload, err)
	}

	if err := b.Start(context.Background()); err == nil {
		t.Error("second Start() error = nil")
	}
}

func TestStartCleanupBeforePublish(t *testing.T) {
	cfg := testConfig()
	cfg.Discovery.Cleanup.Enabled = true
	b, client, _ := newTestBridge(t, cfg, nil)

	stale := "homeassistant/sensor/aduro_h2_legacy_sensor/config"
	foreign := "homeassistant/sensor/other_stove_co/config"
	client.retained[stale] = []byte(`{"name":"old","dev":{"ids":["aduro_h2"]}}`)
	client.retained[foreign] = []byte(`{"name":"co","dev":{"ids":["other_stove"]}}`)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	retained := client.retainedTopics()
	for _, topic := range retained {
		if topic == stale {
			t.Error("stale document survived cleanup")
		}
	}
	found := false
	for _, topic := range retained {
		if topic == foreign {
			found = true
		}
	}
	if !found {
		t.Error("cleanup retracted another device's document")
	}

	pubs := client.publishedTo("homeassistant/")
	if len(pubs) == 0 {
		t.Fatal("nothing published")
	}
	if pubs[0].Topic != stale || len(pubs[0].Payload) != 0 {
		t.Errorf("first discovery publish = %+v, want retraction of %s", pubs[0], stale)
	}
}

func TestCommandBurstTriggersOneRefresh(t *testing.T) {
	app := &fakeAppliance{fail: map[string]bool{"get settings boiler.*": true}}
	b, client, sched := newTestBridge(t, testConfig(), app)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		client.deliver(t, "aduro2mqtt/set", `{"path": "boiler.temp", "value": 21}`)
	}
	if b.RefreshState() != "armed" {
		t.Errorf("RefreshState() = %s, want armed", b.RefreshState())
	}

	if n := sched.fire(); n != 1 {
		t.Fatalf("fired %d timers, want 1", n)
	}

	if got := app.queryCount(); got != 3 {
		t.Errorf("appliance queried %d times, want 3 (one per group)", got)
	}
	state := append(client.publishedTo("aduro2mqtt/status"), client.publishedTo("aduro2mqtt/settings/")...)
	if len(state) != 2 {
		t.Errorf("published %d state snapshots, want 2", len(state))
	}
	for _, p := range state {
		if p.Retained {
			t.Errorf("%s published retained", p.Topic)
		}
	}

	h := b.Health()
	if h.Refreshes != 1 || h.RefreshFailed != 1 || h.LastRefresh == nil {
		t.Errorf("Health() = %+v", h)
	}
	if h.Status != HealthDegraded {
		t.Errorf("Health().Status = %s, want degraded after failing group", h.Status)
	}
}

func TestRefreshGroups(t *testing.T) {
	b, _, _ := newTestBridge(t, testConfig(), &fakeAppliance{})

	want := []string{"status", "settings/regulation", "settings/boiler"}
	if got := b.RefreshGroups(); !reflect.DeepEqual(got, want) {
		t.Errorf("RefreshGroups() = %v, want %v", got, want)
	}
}

func TestRefreshButtonAndAPI(t *testing.T) {
	app := &fakeAppliance{}
	b, client, sched := newTestBridge(t, testConfig(), app)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	client.deliver(t, "aduro2mqtt/bridge/refresh", "refresh")
	if err := b.RequestRefresh(); err != nil {
		t.Fatalf("RequestRefresh() error = %v", err)
	}
	sched.fire()

	if got := app.queryCount(); got != 3 {
		t.Errorf("appliance queried %d times, want 3", got)
	}
}

func TestForwardCommands(t *testing.T) {
	cfg := testConfig()
	cfg.Refresh.ForwardCommands = true
	app := &fakeAppliance{done: make(chan struct{}, 1)}
	b, client, _ := newTestBridge(t, cfg, app)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	client.deliver(t, "aduro2mqtt/set", `{"path": "regulation.fixed_power", "value": 50}`)
	select {
	case <-app.done:
	case <-time.After(2 * time.Second):
		t.Fatal("command was not forwarded")
	}

	client.deliver(t, "aduro2mqtt/set", `not json`)

	app.mu.Lock()
	cmds := append([]string(nil), app.commands...)
	app.mu.Unlock()
	if len(cmds) != 1 || cmds[0] != "regulation.fixed_power=50" {
		t.Errorf("commands = %v", cmds)
	}
}

func TestInferenceFromTelemetry(t *testing.T) {
	cfg := testConfig()
	cfg.Discovery.Inference.Enabled = true
	b, client, _ := newTestBridge(t, cfg, nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := len(client.publishedTo("homeassistant/"))

	client.deliver(t, "aduro2mqtt/status", `{"room_temp":21.5,"valid":true}`)
	client.deliver(t, "aduro2mqtt/status", `{"room_temp":21.7,"valid":true}`)
	client.deliver(t, "aduro2mqtt/operating", `{"return_temp":40}`)
	client.deliver(t, "aduro2mqtt/operating", `garbage`)

	docs := client.publishedTo("homeassistant/")
	if len(docs)-before != 1 {
		t.Fatalf("inference published %d documents, want 1", len(docs)-before)
	}
	last := docs[len(docs)-1]
	if last.Topic != "homeassistant/sensor/aduro_h2_status_room_temp/config" {
		t.Errorf("inferred topic = %s", last.Topic)
	}
	if !strings.Contains(string(last.Payload), `"unit_of_meas":"°C"`) {
		t.Errorf("inferred document = %s", last.Payload)
	}
}

func TestInferenceKeepsCatalogDocuments(t *testing.T) {
	cfg := testConfig()
	cfg.Discovery.Inference.Enabled = true
	cfg.Discovery.Inference.Topics = []string{"total"}
	b, client, _ := newTestBridge(t, cfg, nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	const catalogTopic = "homeassistant/sensor/aduro_h2_total_hours/config"
	client.mu.Lock()
	want := client.retained[catalogTopic]
	client.mu.Unlock()
	if len(want) == 0 {
		t.Fatalf("catalog document %s not retained", catalogTopic)
	}
	before := len(client.publishedTo(catalogTopic))

	client.deliver(t, "aduro2mqtt/total", `{"hours":1520}`)

	if n := len(client.publishedTo(catalogTopic)); n != before {
		t.Errorf("catalog topic published %d more times after inference", n-before)
	}
	client.mu.Lock()
	got := client.retained[catalogTopic]
	client.mu.Unlock()
	if string(got) != string(want) {
		t.Errorf("retained catalog document changed to %s", got)
	}
}

func TestRefreshDisabledWithoutAppliance(t *testing.T) {
	b, client, _ := newTestBridge(t, testConfig(), nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := b.RequestRefresh(); !errors.Is(err, ErrRefreshDisabled) {
		t.Errorf("RequestRefresh() error = %v, want ErrRefreshDisabled", err)
	}
	if client.hasSubscription("aduro2mqtt/set") {
		t.Error("command topic subscribed without refresh")
	}
	if groups := b.RefreshGroups(); groups != nil {
		t.Errorf("RefreshGroups() = %v, want nil", groups)
	}
	if b.RefreshState() != "disabled" {
		t.Errorf("RefreshState() = %s", b.RefreshState())
	}
}

func TestStopPublishesStopping(t *testing.T) {
	b, client, _ := newTestBridge(t, testConfig(), &fakeAppliance{})
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	b.Stop()
	b.Stop()

	health := client.publishedTo("aduro2mqtt/bridge/health")
	var msg HealthMessage
	if err := json.Unmarshal(health[len(health)-1].Payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Status != HealthStopping {
		t.Errorf("last health status = %s, want stopping", msg.Status)
	}
	if err := b.TriggerRefresh(); !errors.Is(err, refresh.ErrStopped) {
		t.Errorf("TriggerRefresh() after Stop error = %v, want ErrStopped", err)
	}
}

func TestDocuments(t *testing.T) {
	b, client, _ := newTestBridge(t, testConfig(), nil)

	docs, err := b.Documents()
	if err != nil {
		t.Fatalf("Documents() error = %v", err)
	}
	if len(docs) != 13 {
		t.Errorf("Documents() = %d, want 13", len(docs))
	}
	if len(client.GetPublished()) != 0 {
		t.Error("Documents() published to the bus")
	}
}

func TestOneShotOmitsAvailability(t *testing.T) {
	client := NewMockMQTTClient()
	b, err := New(Options{Config: testConfig(), MQTTClient: client, OneShot: true})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	report := b.PublishCatalog()
	if !report.OK() || len(report.Published) != 13 {
		t.Fatalf("PublishCatalog() = %+v", report)
	}
	for _, p := range client.publishedTo("homeassistant/") {
		if strings.Contains(string(p.Payload), "avty_t") {
			t.Errorf("%s: one-shot document carries availability", p.Topic)
		}
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() without config error = nil")
	}
	if _, err := New(Options{Config: testConfig()}); err == nil {
		t.Error("New() without MQTT client error = nil")
	}
}
