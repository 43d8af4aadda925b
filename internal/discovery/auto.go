package discovery

import (
	"errors"
	"sync"
)

// AutoDiscovery publishes sensors inferred from telemetry the first time
// each id is seen in this run.
//
// Handle may be called from several subscription callbacks at once; the
// inference, registry check and publish run under one lock so two topics
// can never race on the same id.
type AutoDiscovery struct {
	mu        sync.Mutex
	inferer   *Inferencer
	seen      *SeenRegistry
	lifecycle *Lifecycle
	logger    Logger
}

// NewAutoDiscovery wires an Inferencer and a fresh SeenRegistry to lc.
//
// Reserved ids are marked seen up front. Pass the catalog ids here so an
// inferred sensor can never overwrite a catalog document of the same id.
func NewAutoDiscovery(inferer *Inferencer, lc *Lifecycle, logger Logger, reserved ...string) *AutoDiscovery {
	seen := NewSeenRegistry()
	for _, id := range reserved {
		seen.Mark(id)
	}
	return &AutoDiscovery{
		inferer:   inferer,
		seen:      seen,
		lifecycle: lc,
		logger:    logger,
	}
}

// Handle infers entities from one telemetry message and publishes the new
// ones. It returns the ids published. Excluded ids stay marked so they are
// not re-evaluated; failed ones are forgotten and retried on the next
// message.
func (a *AutoDiscovery) Handle(topic string, payload []byte) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var published []string
	for _, e := range a.inferer.Infer(topic, payload) {
		if !a.seen.ShouldPublish(e.ID) {
			continue
		}
		_, err := a.lifecycle.Publish(e)
		switch {
		case err == nil:
			published = append(published, e.ID)
		case errors.Is(err, ErrExcluded):
		default:
			a.seen.Forget(e.ID)
			if a.logger != nil {
				a.logger.Warn("inferred entity publish failed", "entity", e.ID, "error", err)
			}
		}
	}
	if len(published) > 0 && a.logger != nil {
		a.logger.Info("inferred entities published", "topic", topic, "count", len(published))
	}
	return published
}

// Seen returns the ids known to the registry, sorted.
func (a *AutoDiscovery) Seen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seen.IDs()
}
