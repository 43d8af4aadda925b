package mqtt

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RetainedMessage is one retained document observed on the broker.
type RetainedMessage struct {
	Topic   string
	Payload []byte
}

// Collector accumulates the latest non-empty payload per topic.
//
// An empty payload on a topic means that topic's retained message was cleared,
// so it removes anything previously collected for it.
type Collector struct {
	mu       sync.Mutex
	messages map[string][]byte
	accept   func(topic string) bool
}

// NewCollector returns a Collector. When accept is non-nil, only topics it
// returns true for are kept.
func NewCollector(accept func(topic string) bool) *Collector {
	return &Collector{
		messages: make(map[string][]byte),
		accept:   accept,
	}
}

// Add records payload for topic. It satisfies MessageHandler.
func (c *Collector) Add(topic string, payload []byte) error {
	if c.accept != nil && !c.accept(topic) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(payload) == 0 {
		delete(c.messages, topic)
		return nil
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.messages[topic] = buf
	return nil
}

// Messages returns the collected messages sorted by topic.
func (c *Collector) Messages() []RetainedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]RetainedMessage, 0, len(c.messages))
	for topic, payload := range c.messages {
		out = append(out, RetainedMessage{Topic: topic, Payload: payload})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// Len returns the number of topics currently held.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// CollectRetained subscribes to filter, gathers what the broker delivers
// within window, then unsubscribes.
//
// The broker replays retained messages immediately on subscribe, so a short
// window is enough to enumerate them. Messages published live during the
// window are indistinguishable and are included too.
//
// If ctx is cancelled early the messages gathered so far are returned along
// with the context error.
func (c *Client) CollectRetained(ctx context.Context, filter string, window time.Duration, accept func(topic string) bool) ([]RetainedMessage, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}

	collector := NewCollector(accept)
	if err := c.Subscribe(filter, 0, collector.Add); err != nil {
		return nil, fmt.Errorf("collecting retained on %q: %w", filter, err)
	}

	timer := time.NewTimer(window)
	defer timer.Stop()

	var waitErr error
	select {
	case <-timer.C:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	if err := c.Unsubscribe(filter); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("unsubscribe after retained collection failed",
				"filter", filter,
				"error", err,
			)
		}
	}

	return collector.Messages(), waitErr
}
