package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// stateQoS is used for snapshot publishes. Snapshots are superseded by the
// next refresh, so they are neither acknowledged nor retained.
const stateQoS byte = 0

// Group is one independently queried slice of appliance state.
type Group struct {
	// Name is the state topic suffix, e.g. "settings/boiler".
	Name string
	// Args are passed to the appliance query.
	Args []string
}

// Querier fetches a JSON snapshot from the appliance.
type Querier interface {
	Query(ctx context.Context, args []string) (json.RawMessage, error)
}

// Publisher publishes plain MQTT messages.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// HistorySink stores snapshots for later inspection. Its errors are logged
// and never fail a group.
type HistorySink interface {
	WriteGroupState(deviceID, group string, payload []byte, at time.Time) (int, error)
}

// Result is the outcome of one group.
type Result struct {
	Group    string
	Topic    string
	Payload  json.RawMessage
	Err      error
	Duration time.Duration
}

// OK reports whether the group's snapshot was fetched and published.
func (r Result) OK() bool { return r.Err == nil }

// Report aggregates one refresh run.
type Report struct {
	Started  time.Time
	Duration time.Duration
	Results  []Result
}

// Succeeded returns the results that published.
func (r Report) Succeeded() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Failed returns the results that did not publish.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// ExecutorOptions configure an Executor.
type ExecutorOptions struct {
	Groups   []Group
	Querier  Querier
	Bus      Publisher
	History  HistorySink
	DeviceID string

	// StateTopic maps a group name to its state topic.
	StateTopic func(group string) string

	Logger Logger
}

// Executor runs every group of a refresh in order.
// One group failing does not stop the ones after it.
type Executor struct {
	groups     []Group
	querier    Querier
	bus        Publisher
	history    HistorySink
	deviceID   string
	stateTopic func(string) string
	logger     Logger
	now        func() time.Time
}

// NewExecutor validates opts and returns an Executor.
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if len(opts.Groups) == 0 {
		return nil, ErrNoGroups
	}
	switch {
	case opts.Querier == nil:
		return nil, fmt.Errorf("%w: querier", ErrMissingDependency)
	case opts.Bus == nil:
		return nil, fmt.Errorf("%w: bus", ErrMissingDependency)
	case opts.StateTopic == nil:
		return nil, fmt.Errorf("%w: state topic", ErrMissingDependency)
	}
	return &Executor{
		groups:     opts.Groups,
		querier:    opts.Querier,
		bus:        opts.Bus,
		history:    opts.History,
		deviceID:   opts.DeviceID,
		stateTopic: opts.StateTopic,
		logger:     opts.Logger,
		now:        time.Now,
	}, nil
}

// Groups returns the configured groups.
func (e *Executor) Groups() []Group {
	out := make([]Group, len(e.groups))
	copy(out, e.groups)
	return out
}

// Run queries and publishes every group.
func (e *Executor) Run(ctx context.Context) Report {
	report := Report{Started: e.now()}
	for _, g := range e.groups {
		if ctx.Err() != nil {
			report.Results = append(report.Results, Result{
				Group: g.Name,
				Topic: e.stateTopic(g.Name),
				Err:   fmt.Errorf("%w: %s: %w", ErrGroupFailed, g.Name, ctx.Err()),
			})
			continue
		}
		report.Results = append(report.Results, e.runGroup(ctx, g))
	}
	report.Duration = e.now().Sub(report.Started)
	return report
}

func (e *Executor) runGroup(ctx context.Context, g Group) (res Result) {
	start := e.now()
	res = Result{Group: g.Name, Topic: e.stateTopic(g.Name)}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%w: %s: panic: %v", ErrGroupFailed, g.Name, r)
		}
		res.Duration = e.now().Sub(start)
		if res.Err != nil {
			e.logWarn("refresh group failed", "group", g.Name, "error", res.Err)
		}
	}()

	payload, err := e.querier.Query(ctx, g.Args)
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrGroupFailed, g.Name, err)
		return res
	}
	res.Payload = payload

	if err := e.bus.Publish(res.Topic, payload, stateQoS, false); err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrPublishFailed, res.Topic, err)
		return res
	}

	if e.history != nil {
		if _, err := e.history.WriteGroupState(e.deviceID, g.Name, payload, start); err != nil {
			e.logWarn("storing refresh snapshot failed", "group", g.Name, "error", err)
		}
	}
	return res
}

func (e *Executor) logWarn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
