package mqtt

import (
	"fmt"
	"strings"
)

// Topics builds the bridge's plain MQTT topics.
//
// Base is the root of all state and control topics (e.g. "aduro2mqtt").
// Discovery topics are named by the discovery package.
//
//	topics := mqtt.Topics{Base: "aduro2mqtt"}
//	topics.State("settings/boiler") // "aduro2mqtt/settings/boiler"
type Topics struct {
	Base string
}

// State returns the plain state topic for a query group.
//
// Example: aduro2mqtt/settings/regulation
func (t Topics) State(group string) string {
	return fmt.Sprintf("%s/%s", t.Base, strings.Trim(group, "/"))
}

// Availability returns the retained online/offline topic, also used as the LWT.
//
// Example: aduro2mqtt/bridge/availability
func (t Topics) Availability() string {
	return fmt.Sprintf("%s/bridge/availability", t.Base)
}

// Health returns the periodic health report topic.
//
// Example: aduro2mqtt/bridge/health
func (t Topics) Health() string {
	return fmt.Sprintf("%s/bridge/health", t.Base)
}

// Refresh returns the topic that requests an immediate state refresh.
//
// Example: aduro2mqtt/bridge/refresh
func (t Topics) Refresh() string {
	return fmt.Sprintf("%s/bridge/refresh", t.Base)
}

// ValidatePublishTopic rejects topics that cannot be published to:
// empty topics, topics containing wildcards, and topics containing NUL.
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if strings.ContainsAny(topic, "+#\x00") {
		return fmt.Errorf("%w: %q contains wildcard or NUL", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks subscription filter syntax. '+' must occupy a whole
// level and '#' must be the whole final level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidTopic, filter)
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: wildcard must occupy a whole level in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// Match reports whether topic matches the subscription filter.
func Match(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
