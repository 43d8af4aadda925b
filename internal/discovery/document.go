package discovery

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// abbreviations maps full document keys to the short forms the platform
// also accepts. Keys missing here have no short form.
var abbreviations = map[string]string{
	"unique_id":                    "uniq_id",
	"state_topic":                  "stat_t",
	"value_template":               "val_tpl",
	"command_topic":                "cmd_t",
	"command_template":             "cmd_tpl",
	"unit_of_measurement":          "unit_of_meas",
	"device_class":                 "dev_cla",
	"state_class":                  "stat_cla",
	"icon":                         "ic",
	"entity_category":              "ent_cat",
	"payload_on":                   "pl_on",
	"payload_off":                  "pl_off",
	"optimistic":                   "opt",
	"payload_press":                "pl_prs",
	"temperature_command_topic":    "temp_cmd_t",
	"temperature_command_template": "temp_cmd_tpl",
	"temperature_state_topic":      "temp_stat_t",
	"temperature_state_template":   "temp_stat_tpl",
	"current_temperature_topic":    "curr_temp_t",
	"current_temperature_template": "curr_temp_tpl",
	"temperature_unit":             "temp_unit",
	"availability_topic":           "avty_t",
	"device":                       "dev",
	"identifiers":                  "ids",
	"manufacturer":                 "mf",
	"model":                        "mdl",
}

// expansions is the reverse of abbreviations.
var expansions = func() map[string]string {
	m := make(map[string]string, len(abbreviations))
	for full, short := range abbreviations {
		m[short] = full
	}
	return m
}()

// Abbreviate returns the short form of a full key, or the key itself.
func Abbreviate(key string) string {
	if short, ok := abbreviations[key]; ok {
		return short
	}
	return key
}

// Expand returns the full form of a short key, or the key itself.
func Expand(key string) string {
	if full, ok := expansions[key]; ok {
		return full
	}
	return key
}

// orderedObject writes a JSON object with keys in insertion order.
// Zero values are dropped so optional fields stay out of the document.
type orderedObject struct {
	buf        bytes.Buffer
	abbreviate bool
	n          int
	err        error
}

func (o *orderedObject) set(key string, value any) {
	if o.err != nil || isZero(value) {
		return
	}
	if o.abbreviate {
		key = Abbreviate(key)
	}

	var encoded []byte
	if raw, ok := value.(json.RawMessage); ok {
		encoded = raw
	} else {
		var err error
		encoded, err = marshalNoEscape(value)
		if err != nil {
			o.err = fmt.Errorf("encoding %s: %w", key, err)
			return
		}
	}

	if o.n == 0 {
		o.buf.WriteByte('{')
	} else {
		o.buf.WriteByte(',')
	}
	k, _ := marshalNoEscape(key) //nolint:errcheck // strings always encode
	o.buf.Write(k)
	o.buf.WriteByte(':')
	o.buf.Write(encoded)
	o.n++
}

func (o *orderedObject) bytes() ([]byte, error) {
	if o.err != nil {
		return nil, o.err
	}
	if o.n == 0 {
		return []byte("{}"), nil
	}
	o.buf.WriteByte('}')
	return o.buf.Bytes(), nil
}

// marshalNoEscape encodes v without HTML escaping, so templates keep their
// literal '<', '>' and '&'.
func marshalNoEscape(v any) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}

func isZero(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case []string:
		return len(t) == 0
	case *float64:
		return t == nil
	case float64:
		return t == 0
	case json.RawMessage:
		return len(t) == 0
	}
	return false
}

// DocumentOptions control how documents are rendered.
type DocumentOptions struct {
	Abbreviate bool

	// AvailabilityTopic, when set, is added to every document so entities go
	// unavailable when the bridge's Last Will fires.
	AvailabilityTopic string
}

// BuildDocument renders the retained configuration document for e.
//
// Key order is fixed, so the same entity and options always yield the same
// bytes.
func BuildDocument(namer TopicNamer, device Device, e Entity, opts DocumentOptions) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	o := &orderedObject{abbreviate: opts.Abbreviate}
	o.set("name", e.Name)
	o.set("unique_id", namer.UniqueID(e.ID))
	o.set("state_topic", e.StateTopic)
	o.set("value_template", e.ValueTemplate)
	o.set("command_topic", e.CommandTopic)
	o.set("command_template", e.CommandTemplate)
	o.set("payload_on", e.PayloadOn)
	o.set("payload_off", e.PayloadOff)
	o.set("optimistic", e.Optimistic)
	o.set("options", e.Options)
	o.set("payload_press", e.PayloadPress)
	o.set("min", e.Min)
	o.set("max", e.Max)
	o.set("step", e.Step)
	o.set("mode", e.Mode)
	if c := e.Climate; c != nil {
		o.set("temperature_command_topic", c.TargetCommand.Topic)
		o.set("temperature_command_template", c.TargetCommand.Template)
		o.set("temperature_state_topic", c.TargetState.Topic)
		o.set("temperature_state_template", c.TargetState.Template)
		o.set("current_temperature_topic", c.CurrentTemperature.Topic)
		o.set("current_temperature_template", c.CurrentTemperature.Template)
		o.set("modes", c.Modes)
		o.set("min_temp", c.MinTemp)
		o.set("max_temp", c.MaxTemp)
		o.set("temp_step", c.TempStep)
		o.set("temperature_unit", c.TemperatureUnit)
	}
	o.set("unit_of_measurement", e.Unit)
	o.set("device_class", e.DeviceClass)
	o.set("state_class", e.StateClass)
	o.set("icon", e.Icon)
	o.set("entity_category", e.EntityCategory)
	o.set("availability_topic", opts.AvailabilityTopic)

	dev, err := buildDevice(device, opts.Abbreviate)
	if err != nil {
		return nil, err
	}
	o.set("device", json.RawMessage(dev))

	return o.bytes()
}

func buildDevice(d Device, abbreviate bool) ([]byte, error) {
	o := &orderedObject{abbreviate: abbreviate}
	o.set("identifiers", []string{d.ID})
	o.set("name", d.Name)
	o.set("manufacturer", d.Manufacturer)
	o.set("model", d.Model)
	return o.bytes()
}

// stringList accepts either a JSON string or an array of strings.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = stringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// DocumentDevice is the device block of a parsed document.
type DocumentDevice struct {
	Identifiers  stringList `json:"identifiers"`
	Name         string     `json:"name"`
	Manufacturer string     `json:"manufacturer"`
	Model        string     `json:"model"`
}

// Document is a parsed discovery document, whichever key form it used.
type Document struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic"`
	ValueTemplate     string          `json:"value_template"`
	CommandTopic      string          `json:"command_topic"`
	CommandTemplate   string          `json:"command_template"`
	Unit              string          `json:"unit_of_measurement"`
	DeviceClass       string          `json:"device_class"`
	StateClass        string          `json:"state_class"`
	Options           []string        `json:"options"`
	AvailabilityTopic string          `json:"availability_topic"`
	Device            *DocumentDevice `json:"device"`
}

// HasIdentifier reports whether id is among the document's device identifiers.
func (d Document) HasIdentifier(id string) bool {
	if d.Device == nil {
		return false
	}
	for _, ident := range d.Device.Identifiers {
		if ident == id {
			return true
		}
	}
	return false
}

// ParseDocument decodes a discovery document written with full or
// abbreviated keys, or a mix of both.
func ParseDocument(payload []byte) (Document, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	expanded, err := expandKeys(raw)
	if err != nil {
		return Document{}, err
	}

	var doc Document
	if err := json.Unmarshal(expanded, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return doc, nil
}

func expandKeys(raw map[string]json.RawMessage) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		full := Expand(k)
		if full == "device" {
			var dev map[string]json.RawMessage
			if err := json.Unmarshal(v, &dev); err != nil {
				return nil, fmt.Errorf("%w: device: %w", ErrInvalidDocument, err)
			}
			nested, err := expandKeys(dev)
			if err != nil {
				return nil, err
			}
			v = nested
		}
		out[full] = v
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return b, nil
}
