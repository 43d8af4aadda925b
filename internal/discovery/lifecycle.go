package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/aduro-bridge/internal/infrastructure/mqtt"
)

// BusClient is the subset of the MQTT client the lifecycle needs.
// *mqtt.Client satisfies it; the client applies the configured mqtt.qos to
// retained publishes and retractions.
type BusClient interface {
	PublishRetained(topic string, payload []byte) error
	ClearRetained(topic string) error
	CollectRetained(ctx context.Context, filter string, window time.Duration, accept func(topic string) bool) ([]mqtt.RetainedMessage, error)
}

// Logger is the logging interface used by the lifecycle.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Observer is told about every lifecycle outcome. The journal and metrics
// hook in here.
type Observer interface {
	Published(e Entity, topic string)
	Skipped(e Entity, reason string)
	Retracted(topic string)
	Failed(e Entity, topic string, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) Published(Entity, string)     {}
func (NopObserver) Skipped(Entity, string)       {}
func (NopObserver) Retracted(string)             {}
func (NopObserver) Failed(Entity, string, error) {}

// LifecycleOptions configure a Lifecycle.
type LifecycleOptions struct {
	Namer    TopicNamer
	Device   Device
	Filter   *ExclusionFilter
	Document DocumentOptions
	Logger   Logger
	Observer Observer
}

// Lifecycle publishes discovery documents and retracts stale ones.
//
// Every publish goes through the exclusion filter, so neither the catalog
// nor the inference path can bypass it.
type Lifecycle struct {
	bus      BusClient
	namer    TopicNamer
	device   Device
	filter   *ExclusionFilter
	docOpts  DocumentOptions
	logger   Logger
	observer Observer
}

// NewLifecycle creates a Lifecycle publishing through bus.
func NewLifecycle(bus BusClient, opts LifecycleOptions) *Lifecycle {
	l := &Lifecycle{
		bus:      bus,
		namer:    opts.Namer,
		device:   opts.Device,
		filter:   opts.Filter,
		docOpts:  opts.Document,
		logger:   opts.Logger,
		observer: opts.Observer,
	}
	if l.observer == nil {
		l.observer = NopObserver{}
	}
	return l
}

// Namer returns the topic namer documents are published under.
func (l *Lifecycle) Namer() TopicNamer { return l.namer }

// Document renders e without publishing it.
func (l *Lifecycle) Document(e Entity) (topic string, payload []byte, err error) {
	payload, err = BuildDocument(l.namer, l.device, e, l.docOpts)
	if err != nil {
		return "", nil, err
	}
	return l.namer.Topic(e.Kind, e.ID), payload, nil
}

// Publish publishes e's document retained. It returns ErrExcluded without
// touching the bus when the filter rejects e.
func (l *Lifecycle) Publish(e Entity) (string, error) {
	if l.filter.Excludes(e) {
		l.observer.Skipped(e, "excluded")
		l.logDebug("discovery entity excluded", "entity", e.ID)
		return "", fmt.Errorf("%w: %s", ErrExcluded, e.ID)
	}

	topic, payload, err := l.Document(e)
	if err != nil {
		l.observer.Failed(e, "", err)
		return "", err
	}

	if err := l.bus.PublishRetained(topic, payload); err != nil {
		l.observer.Failed(e, topic, err)
		return topic, fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}

	l.observer.Published(e, topic)
	l.logDebug("discovery document published", "entity", e.ID, "topic", topic)
	return topic, nil
}

// Report summarizes a PublishAll run.
type Report struct {
	Published []string
	Excluded  []string
	Failed    map[string]error
}

// OK reports whether no entity failed.
func (r Report) OK() bool { return len(r.Failed) == 0 }

// PublishAll publishes every entity in order. A failure is recorded and
// logged and the remaining entities are still attempted.
func (l *Lifecycle) PublishAll(entities []Entity) Report {
	report := Report{Failed: make(map[string]error)}
	for _, e := range entities {
		_, err := l.Publish(e)
		switch {
		case err == nil:
			report.Published = append(report.Published, e.ID)
		case errors.Is(err, ErrExcluded):
			report.Excluded = append(report.Excluded, e.ID)
		default:
			report.Failed[e.ID] = err
			l.logError("discovery publish failed", "entity", e.ID, "error", err)
		}
	}
	return report
}

// CleanupReport summarizes a Cleanup run.
type CleanupReport struct {
	// Found is every retained topic that belonged to the device.
	Found []string
	// Retracted is the subset that was cleared successfully.
	Retracted []string
	// Foreign counts topics that matched by name but whose document named
	// another device.
	Foreign int
	Failed  map[string]error
}

// Cleanup collects the device's retained documents for window and clears
// each one with an empty retained payload.
//
// Nothing is retracted when ctx ends before the window closes. An empty
// collection is not an error.
func (l *Lifecycle) Cleanup(ctx context.Context, window time.Duration) (CleanupReport, error) {
	report := CleanupReport{Failed: make(map[string]error)}

	msgs, err := l.bus.CollectRetained(ctx, l.namer.Wildcard(), window, l.namer.Owns)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrCollectFailed, err)
	}

	for _, msg := range msgs {
		if len(msg.Payload) == 0 {
			continue
		}
		if doc, err := ParseDocument(msg.Payload); err == nil && doc.Device != nil && !doc.HasIdentifier(l.namer.DeviceID()) {
			report.Foreign++
			l.logDebug("retained document left alone, other device", "topic", msg.Topic)
			continue
		}
		report.Found = append(report.Found, msg.Topic)
	}

	for _, topic := range report.Found {
		if err := l.bus.ClearRetained(topic); err != nil {
			report.Failed[topic] = err
			l.logError("retracting discovery document failed", "topic", topic, "error", err)
			continue
		}
		report.Retracted = append(report.Retracted, topic)
		l.observer.Retracted(topic)
	}

	l.logInfo("discovery cleanup complete",
		"found", len(report.Found),
		"retracted", len(report.Retracted),
		"foreign", report.Foreign,
	)
	return report, nil
}

// Owns reports whether topic is a discovery config topic of this device:
// <prefix>/<kind>[/<node>]/<objectId>/config where objectId is the device
// id or starts with "<deviceId>_", or node is the device id.
func (n TopicNamer) Owns(topic string) bool {
	rest, ok := strings.CutPrefix(topic, n.prefix+"/")
	if !ok {
		return false
	}
	rest, ok = strings.CutSuffix(rest, "/config")
	if !ok {
		return false
	}

	parts := strings.Split(rest, "/")
	var node, objectID string
	switch len(parts) {
	case 2:
		objectID = parts[1]
	case 3:
		node, objectID = parts[1], parts[2]
	default:
		return false
	}
	if parts[0] == "" || objectID == "" {
		return false
	}

	return node == n.deviceID ||
		objectID == n.deviceID ||
		strings.HasPrefix(objectID, n.deviceID+"_")
}

func (l *Lifecycle) logDebug(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}

func (l *Lifecycle) logInfo(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Info(msg, args...)
	}
}

func (l *Lifecycle) logError(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Error(msg, args...)
	}
}
