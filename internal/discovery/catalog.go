package discovery

// Command payloads for the start/stop switch, byte-identical to what the
// appliance bridge expects on the command topic.
const (
	payloadStart = `{"path": "misc.start", "value": "1"}`
	payloadStop  = `{"path": "misc.stop", "value": "1"}`
)

// Topic suffixes under the base topic.
const (
	topicStatus     = "status"
	topicOperating  = "operating"
	topicCounter    = "consumption/counter"
	topicRegulation = "settings/regulation"
	topicBoiler     = "settings/boiler"
	topicSet        = "set"
	topicRefresh    = "bridge/refresh"
)

// CatalogConfig holds the values the fixed catalog is built from.
type CatalogConfig struct {
	BaseTopic  string
	DeviceName string

	// RoomTemperatureField is the status field read as room temperature.
	// Firmware variants disagree; boiler_temp is the common default.
	RoomTemperatureField string

	// COField is the status field path of the CO reading, e.g. "drift.co".
	COField string
}

// sensorRow is one line of the sensor table.
type sensorRow struct {
	key         string
	label       string
	topic       string
	field       string
	filter      string
	unit        string
	deviceClass string
	stateClass  string
}

// Catalog is the fixed, ordered set of entities for the known appliance.
// It is read-only after construction.
type Catalog struct {
	entries []Entity
}

// NewCatalog builds the catalog from cfg. Empty mapping fields fall back to
// boiler_temp and drift.co.
func NewCatalog(cfg CatalogConfig) *Catalog {
	if cfg.RoomTemperatureField == "" {
		cfg.RoomTemperatureField = "boiler_temp"
	}
	if cfg.COField == "" {
		cfg.COField = "drift.co"
	}

	base := cfg.BaseTopic
	topic := func(suffix string) string { return base + "/" + suffix }
	name := func(label string) string {
		if cfg.DeviceName == "" {
			return label
		}
		return cfg.DeviceName + " " + label
	}

	entries := []Entity{
		{
			ID:           "toggle",
			Kind:         KindSwitch,
			Name:         name("Toggle"),
			SourceKey:    "toggle",
			CommandTopic: topic(topicSet),
			PayloadOn:    payloadStart,
			PayloadOff:   payloadStop,
			Optimistic:   true,
			Icon:         "mdi:fire",
		},
		{
			ID:              "fixed_power",
			Kind:            KindSelect,
			Name:            name("Fixed power (%)"),
			SourceKey:       "fixed_power",
			CommandTopic:    topic(topicSet),
			CommandTemplate: `{"path": "regulation.fixed_power", "value": {{ value }} }`,
			StateTopic:      topic(topicRegulation),
			ValueTemplate:   FieldTemplate("fixed_power", "int"),
			Options:         []string{"10", "50", "100"},
		},
		{
			ID:              "target_temp",
			Kind:            KindNumber,
			Name:            name("Target temperature"),
			SourceKey:       "target_temp",
			CommandTopic:    topic(topicSet),
			CommandTemplate: `{"path": "boiler.temp", "value": {{ value }} }`,
			StateTopic:      topic(topicBoiler),
			ValueTemplate:   FieldTemplate("temp", ""),
			Unit:            "°C",
			DeviceClass:     "temperature",
			Min:             float(5),
			Max:             float(35),
			Step:            float(1),
			Mode:            "box",
		},
		{
			ID:        "climate",
			Kind:      KindClimate,
			Name:      name("Thermostat"),
			SourceKey: "climate",
			Climate: &ClimateBinding{
				TargetCommand: Binding{
					Topic:    topic(topicSet),
					Template: `{"path": "boiler.temp", "value": {{ value | int }} }`,
				},
				TargetState: Binding{
					Topic:    topic(topicBoiler),
					Template: FieldTemplate("temp", ""),
				},
				CurrentTemperature: Binding{
					Topic:    topic(topicStatus),
					Template: FieldTemplate(cfg.RoomTemperatureField, ""),
				},
				Modes:           []string{"heat"},
				MinTemp:         5,
				MaxTemp:         35,
				TempStep:        1,
				TemperatureUnit: "C",
			},
		},
		{
			ID:             "refresh",
			Kind:           KindButton,
			Name:           name("Refresh"),
			SourceKey:      "refresh",
			CommandTopic:   topic(topicRefresh),
			PayloadPress:   "refresh",
			EntityCategory: "diagnostic",
			Icon:           "mdi:refresh",
		},
	}

	sensors := []sensorRow{
		{"room_temp", "Room Temp", topicStatus, cfg.RoomTemperatureField, "", "°C", "temperature", "measurement"},
		{"shaft_temp", "Shaft Temp", topicStatus, "shaft_temp", "", "°C", "temperature", "measurement"},
		{"smoke_temp", "Smoke Temp", topicStatus, "smoke_temp", "", "°C", "temperature", "measurement"},
		{"total_hours", "Total Hours", topicCounter, "[0]", "", "h", "", "total_increasing"},
		{"co", "Co", topicStatus, cfg.COField, "int", "ppm", "", "measurement"},
		{"oxygen", "Oxygen", topicOperating, "oxygen", "", "%", "", "measurement"},
		{"power_pct", "Power Pct", topicStatus, "power_pct", "", "%", "", "measurement"},
		{"exhaust_speed", "Exhaust Speed", topicStatus, "exhaust_speed", "", "", "", "measurement"},
		{"boiler_pump_state", "Boiler Pump", topicOperating, "boiler_pump_state", "int", "", "", ""},
		{"return_temp", "Return Temp", topicOperating, "return_temp", "", "°C", "temperature", "measurement"},
	}
	for _, row := range sensors {
		entries = append(entries, Entity{
			ID:            row.key,
			Kind:          KindSensor,
			Name:          name(row.label),
			SourceKey:     row.key,
			StateTopic:    topic(row.topic),
			ValueTemplate: FieldTemplate(row.field, row.filter),
			Unit:          row.unit,
			DeviceClass:   row.deviceClass,
			StateClass:    row.stateClass,
		})
	}

	return &Catalog{entries: entries}
}

// Entries returns the catalog in publication order. The slice is a copy.
func (c *Catalog) Entries() []Entity {
	out := make([]Entity, len(c.entries))
	copy(out, c.entries)
	return out
}

// Lookup returns the entry with id.
func (c *Catalog) Lookup(id string) (Entity, bool) {
	for _, e := range c.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}
