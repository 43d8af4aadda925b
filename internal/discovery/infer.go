package discovery

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"
)

// unitRule maps key substrings to a unit and device class.
type unitRule struct {
	substrings  []string
	suffixes    []string
	unit        string
	deviceClass string
	hours       bool
}

// unitRules are applied in order; the first match wins.
var unitRules = []unitRule{
	{substrings: []string{"temp", "temperature"}, unit: "°C", deviceClass: "temperature"},
	{substrings: []string{"pressure"}, suffixes: []string{"_pa"}, unit: "Pa", deviceClass: "pressure"},
	{substrings: []string{"power", "pct", "percent"}, unit: "%"},
	{substrings: []string{"rpm"}, unit: "rpm"},
	{substrings: []string{"hours"}, suffixes: []string{"_h"}, unit: "h", hours: true},
}

// counterHints mark a source topic as carrying cumulative totals.
var counterHints = []string{"counter", "consumption", "total"}

// Inferencer synthesizes sensor entities from live telemetry.
//
// Only top-level numeric values are discovered. Booleans, strings and nested
// objects or arrays are skipped.
type Inferencer struct {
	baseTopic string
}

// NewInferencer creates an Inferencer for state topics under baseTopic.
func NewInferencer(baseTopic string) *Inferencer {
	return &Inferencer{baseTopic: strings.TrimSuffix(baseTopic, "/")}
}

// RelativeTopic strips the base topic from topic. Topics outside the base
// are returned unchanged.
func (in *Inferencer) RelativeTopic(topic string) string {
	if rel, ok := strings.CutPrefix(topic, in.baseTopic+"/"); ok {
		return rel
	}
	return topic
}

// Infer returns one sensor per numeric top-level value of payload received
// on topic, which may be absolute or relative to the base topic.
//
// Entities come out sorted by id. Payloads that are not exactly one JSON
// value yield nil.
func (in *Inferencer) Infer(topic string, payload []byte) []Entity {
	rel := in.RelativeTopic(topic)
	if rel == "" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil
	}

	var out []Entity
	switch v := doc.(type) {
	case map[string]any:
		for key, value := range v {
			if _, ok := value.(json.Number); !ok {
				continue
			}
			out = append(out, in.entity(rel, key, KeyTemplate(key)))
		}
	case []any:
		syntheticBase := rel[strings.LastIndexByte(rel, '/')+1:]
		for idx, value := range v {
			if _, ok := value.(json.Number); !ok {
				continue
			}
			e := in.entity(rel, syntheticBase+"_"+strconv.Itoa(idx), IndexTemplate(idx))
			e.ID = Slug(rel + "_" + strconv.Itoa(idx))
			e.SourceKey = strconv.Itoa(idx)
			out = append(out, e)
		}
	default:
		return nil
	}

	// Keys that slug to nothing (e.g. "°") cannot be published.
	kept := out[:0]
	for _, e := range out {
		if e.ID != "" {
			kept = append(kept, e)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	return kept
}

func (in *Inferencer) entity(rel, key, tmpl string) Entity {
	unit, deviceClass, stateClass := classify(rel, key)
	return Entity{
		ID:            Slug(rel + "_" + key),
		Kind:          KindSensor,
		Name:          Humanize(key),
		SourceKey:     key,
		StateTopic:    in.baseTopic + "/" + rel,
		ValueTemplate: tmpl,
		Unit:          unit,
		DeviceClass:   deviceClass,
		StateClass:    stateClass,
		Inferred:      true,
	}
}

// classify applies the unit rules to key. Hour counters on a cumulative
// topic are total_increasing; everything else is a measurement.
func classify(topic, key string) (unit, deviceClass, stateClass string) {
	k := strings.ToLower(key)
	stateClass = "measurement"
	for _, rule := range unitRules {
		if !rule.matches(k) {
			continue
		}
		if rule.hours && isCounterTopic(topic) {
			stateClass = "total_increasing"
		}
		return rule.unit, rule.deviceClass, stateClass
	}
	return "", "", stateClass
}

func (r unitRule) matches(key string) bool {
	for _, s := range r.substrings {
		if strings.Contains(key, s) {
			return true
		}
	}
	// Short tokens only count as a whole trailing or inner word, so "_h"
	// matches "burn_h" but not "smoke_high".
	for _, s := range r.suffixes {
		if strings.HasSuffix(key, s) || strings.Contains(key, s+"_") {
			return true
		}
	}
	return false
}

func isCounterTopic(topic string) bool {
	t := strings.ToLower(topic)
	for _, hint := range counterHints {
		if strings.Contains(t, hint) {
			return true
		}
	}
	return false
}
