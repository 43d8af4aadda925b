package discovery

import (
	"strings"
	"testing"
)

func testCatalog() *Catalog {
	return NewCatalog(CatalogConfig{BaseTopic: "aduro2mqtt", DeviceName: "Aduro H2"})
}

func TestCatalogEntriesValid(t *testing.T) {
	c := testCatalog()

	if c.Len() != 15 {
		t.Fatalf("Len() = %d, want 15", c.Len())
	}

	seen := make(map[string]bool)
	for _, e := range c.Entries() {
		if err := e.Validate(); err != nil {
			t.Errorf("Validate(%s) error = %v", e.ID, err)
		}
		if seen[e.ID] {
			t.Errorf("duplicate catalog id %q", e.ID)
		}
		seen[e.ID] = true
		if !strings.HasPrefix(e.Name, "Aduro H2 ") {
			t.Errorf("%s: name %q not prefixed with device name", e.ID, e.Name)
		}
		if e.Inferred {
			t.Errorf("%s: catalog entry marked inferred", e.ID)
		}
	}
}

func TestCatalogOrder(t *testing.T) {
	entries := testCatalog().Entries()
	want := []string{"toggle", "fixed_power", "target_temp", "climate", "refresh", "room_temp"}
	for i, id := range want {
		if entries[i].ID != id {
			t.Errorf("entries[%d] = %s, want %s", i, entries[i].ID, id)
		}
	}
}

func TestCatalogEntriesIsCopy(t *testing.T) {
	c := testCatalog()
	entries := c.Entries()
	entries[0].Name = "changed"

	e, _ := c.Lookup("toggle")
	if e.Name == "changed" {
		t.Error("Entries() exposed internal slice")
	}
}

func TestCatalogKnownEntries(t *testing.T) {
	c := testCatalog()

	tests := []struct {
		id            string
		kind          Kind
		stateTopic    string
		valueTemplate string
		unit          string
	}{
		{"room_temp", KindSensor, "aduro2mqtt/status", "{{ value_json.boiler_temp }}", "°C"},
		{"co", KindSensor, "aduro2mqtt/status", "{{ value_json.drift.co | int }}", "ppm"},
		{"total_hours", KindSensor, "aduro2mqtt/consumption/counter", "{{ value_json[0] }}", "h"},
		{"oxygen", KindSensor, "aduro2mqtt/operating", "{{ value_json.oxygen }}", "%"},
		{"fixed_power", KindSelect, "aduro2mqtt/settings/regulation", "{{ value_json.fixed_power | int }}", ""},
		{"target_temp", KindNumber, "aduro2mqtt/settings/boiler", "{{ value_json.temp }}", "°C"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			e, ok := c.Lookup(tt.id)
			if !ok {
				t.Fatalf("Lookup(%q) not found", tt.id)
			}
			if e.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", e.Kind, tt.kind)
			}
			if e.StateTopic != tt.stateTopic {
				t.Errorf("StateTopic = %q, want %q", e.StateTopic, tt.stateTopic)
			}
			if e.ValueTemplate != tt.valueTemplate {
				t.Errorf("ValueTemplate = %q, want %q", e.ValueTemplate, tt.valueTemplate)
			}
			if e.Unit != tt.unit {
				t.Errorf("Unit = %q, want %q", e.Unit, tt.unit)
			}
		})
	}

	toggle, _ := c.Lookup("toggle")
	if toggle.PayloadOn != `{"path": "misc.start", "value": "1"}` {
		t.Errorf("toggle PayloadOn = %q", toggle.PayloadOn)
	}
	if toggle.CommandTopic != "aduro2mqtt/set" || !toggle.Optimistic {
		t.Errorf("toggle = %+v", toggle)
	}

	refresh, _ := c.Lookup("refresh")
	if refresh.CommandTopic != "aduro2mqtt/bridge/refresh" {
		t.Errorf("refresh CommandTopic = %q", refresh.CommandTopic)
	}
}

func TestCatalogClimateComposite(t *testing.T) {
	c := NewCatalog(CatalogConfig{BaseTopic: "aduro2mqtt", RoomTemperatureField: "room_temp", COField: "co"})

	e, ok := c.Lookup("climate")
	if !ok || e.Climate == nil {
		t.Fatal("climate entry missing binding")
	}
	cb := e.Climate
	if cb.TargetCommand.Topic != "aduro2mqtt/set" {
		t.Errorf("TargetCommand.Topic = %q", cb.TargetCommand.Topic)
	}
	if cb.TargetState.Topic != "aduro2mqtt/settings/boiler" {
		t.Errorf("TargetState.Topic = %q", cb.TargetState.Topic)
	}
	if cb.CurrentTemperature.Template != "{{ value_json.room_temp }}" {
		t.Errorf("CurrentTemperature.Template = %q", cb.CurrentTemperature.Template)
	}

	room, _ := c.Lookup("room_temp")
	if room.ValueTemplate != "{{ value_json.room_temp }}" {
		t.Errorf("room_temp follows RoomTemperatureField: got %q", room.ValueTemplate)
	}
	co, _ := c.Lookup("co")
	if co.ValueTemplate != "{{ value_json.co | int }}" {
		t.Errorf("co follows COField: got %q", co.ValueTemplate)
	}
	if e.Name != "Thermostat" {
		t.Errorf("Name without device name = %q", e.Name)
	}
}

func TestEntityValidate(t *testing.T) {
	tests := []struct {
		name    string
		e       Entity
		wantErr bool
	}{
		{"sensor ok", Entity{ID: "a", Kind: KindSensor, Name: "A", StateTopic: "t"}, false},
		{"sensor no state", Entity{ID: "a", Kind: KindSensor, Name: "A"}, true},
		{"bad id", Entity{ID: "Has Space", Kind: KindSensor, Name: "A", StateTopic: "t"}, true},
		{"empty id", Entity{Kind: KindSensor, Name: "A", StateTopic: "t"}, true},
		{"unknown kind", Entity{ID: "a", Kind: "light", Name: "A"}, true},
		{"no name", Entity{ID: "a", Kind: KindSensor, StateTopic: "t"}, true},
		{"select no options", Entity{ID: "a", Kind: KindSelect, Name: "A", CommandTopic: "c"}, true},
		{"button no command", Entity{ID: "a", Kind: KindButton, Name: "A"}, true},
		{"climate no binding", Entity{ID: "a", Kind: KindClimate, Name: "A"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.e.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
