package bridge

import (
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/aduro-bridge/internal/discovery"
	"github.com/nerrad567/aduro-bridge/internal/refresh"
)

// EntityInfo describes a published entity.
type EntityInfo struct {
	ID          string         `json:"id"`
	Kind        discovery.Kind `json:"kind"`
	Name        string         `json:"name"`
	Topic       string         `json:"topic"`
	StateTopic  string         `json:"state_topic,omitempty"`
	Unit        string         `json:"unit,omitempty"`
	Inferred    bool           `json:"inferred"`
	PublishedAt time.Time      `json:"published_at"`
}

// entityIndex tracks what this run has published. It is a discovery.Observer.
type entityIndex struct {
	mu       sync.RWMutex
	entities map[string]EntityInfo
}

func newEntityIndex() *entityIndex {
	return &entityIndex{entities: make(map[string]EntityInfo)}
}

func (x *entityIndex) Published(e discovery.Entity, topic string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entities[topic] = EntityInfo{
		ID:          e.ID,
		Kind:        e.Kind,
		Name:        e.Name,
		Topic:       topic,
		StateTopic:  e.StateTopic,
		Unit:        e.Unit,
		Inferred:    e.Inferred,
		PublishedAt: time.Now().UTC(),
	}
}

func (x *entityIndex) Retracted(topic string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entities, topic)
}

func (x *entityIndex) Skipped(discovery.Entity, string)       {}
func (x *entityIndex) Failed(discovery.Entity, string, error) {}

func (x *entityIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entities)
}

func (x *entityIndex) List() []EntityInfo {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]EntityInfo, 0, len(x.entities))
	for _, e := range x.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// multiObserver fans discovery events out to several observers.
type multiObserver []discovery.Observer

func (m multiObserver) Published(e discovery.Entity, topic string) {
	for _, o := range m {
		o.Published(e, topic)
	}
}

func (m multiObserver) Skipped(e discovery.Entity, reason string) {
	for _, o := range m {
		o.Skipped(e, reason)
	}
}

func (m multiObserver) Retracted(topic string) {
	for _, o := range m {
		o.Retracted(topic)
	}
}

func (m multiObserver) Failed(e discovery.Entity, topic string, err error) {
	for _, o := range m {
		o.Failed(e, topic, err)
	}
}

// multiRefreshObserver fans refresh events out to several observers.
type multiRefreshObserver []RefreshObserver

func (m multiRefreshObserver) RefreshTriggered() {
	for _, o := range m {
		o.RefreshTriggered()
	}
}

func (m multiRefreshObserver) Refreshed(report refresh.Report) {
	for _, o := range m {
		o.Refreshed(report)
	}
}
