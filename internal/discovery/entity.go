package discovery

import (
	"fmt"
)

// Kind is the platform component an entity is published as.
type Kind string

// Entity kinds. The value is also the topic segment after the prefix.
const (
	KindSensor  Kind = "sensor"
	KindSwitch  Kind = "switch"
	KindSelect  Kind = "select"
	KindNumber  Kind = "number"
	KindClimate Kind = "climate"
	KindButton  Kind = "button"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSensor, KindSwitch, KindSelect, KindNumber, KindClimate, KindButton:
		return true
	}
	return false
}

// Device identifies the appliance in every discovery document.
// It is built once at startup and never modified.
type Device struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

// Binding is one topic/template pair.
type Binding struct {
	Topic    string `json:"topic"`
	Template string `json:"template,omitempty"`
}

// ClimateBinding groups the three independent topics a thermostat-like
// control needs. They always travel in one document.
type ClimateBinding struct {
	TargetCommand      Binding  `json:"target_command"`
	TargetState        Binding  `json:"target_state"`
	CurrentTemperature Binding  `json:"current_temperature"`
	Modes              []string `json:"modes,omitempty"`
	MinTemp            float64  `json:"min_temp,omitempty"`
	MaxTemp            float64  `json:"max_temp,omitempty"`
	TempStep           float64  `json:"temp_step,omitempty"`
	TemperatureUnit    string   `json:"temperature_unit,omitempty"`
}

// Entity describes one discoverable sensor or control.
//
// ID is a slug that is unique per device and derived only from its source
// (a catalog key, or a topic and JSON key), so the same inputs always
// produce the same entity.
type Entity struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Name string `json:"name"`

	// SourceKey is the catalog key or JSON field the entity was built from.
	// The exclusion filter matches against it as well as the ID.
	SourceKey string `json:"source_key,omitempty"`

	StateTopic      string   `json:"state_topic,omitempty"`
	ValueTemplate   string   `json:"value_template,omitempty"`
	Unit            string   `json:"unit,omitempty"`
	DeviceClass     string   `json:"device_class,omitempty"`
	StateClass      string   `json:"state_class,omitempty"`
	CommandTopic    string   `json:"command_topic,omitempty"`
	CommandTemplate string   `json:"command_template,omitempty"`
	Options         []string `json:"options,omitempty"`
	Icon            string   `json:"icon,omitempty"`
	EntityCategory  string   `json:"entity_category,omitempty"`

	// Switch
	PayloadOn  string `json:"payload_on,omitempty"`
	PayloadOff string `json:"payload_off,omitempty"`
	Optimistic bool   `json:"optimistic,omitempty"`

	// Number
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step *float64 `json:"step,omitempty"`
	Mode string   `json:"mode,omitempty"`

	// Button
	PayloadPress string `json:"payload_press,omitempty"`

	// Climate
	Climate *ClimateBinding `json:"climate,omitempty"`

	// Inferred is true for entities synthesized from live telemetry.
	Inferred bool `json:"inferred,omitempty"`
}

// Validate checks the fields a kind cannot be published without.
func (e Entity) Validate() error {
	if e.ID == "" || Slug(e.ID) != e.ID {
		return fmt.Errorf("%w: id %q is not a slug", ErrInvalidEntity, e.ID)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidEntity, e.ID, e.Kind)
	}
	if e.Name == "" {
		return fmt.Errorf("%w: %s: name is required", ErrInvalidEntity, e.ID)
	}

	switch e.Kind {
	case KindSensor:
		if e.StateTopic == "" {
			return fmt.Errorf("%w: %s: sensor needs a state topic", ErrInvalidEntity, e.ID)
		}
	case KindSwitch, KindNumber, KindButton:
		if e.CommandTopic == "" {
			return fmt.Errorf("%w: %s: %s needs a command topic", ErrInvalidEntity, e.ID, e.Kind)
		}
	case KindSelect:
		if e.CommandTopic == "" || len(e.Options) == 0 {
			return fmt.Errorf("%w: %s: select needs a command topic and options", ErrInvalidEntity, e.ID)
		}
	case KindClimate:
		if e.Climate == nil || e.Climate.TargetCommand.Topic == "" {
			return fmt.Errorf("%w: %s: climate needs a target command binding", ErrInvalidEntity, e.ID)
		}
	}
	return nil
}

func float(v float64) *float64 { return &v }
