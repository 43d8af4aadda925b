package influxdb

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementState is the measurement every refresh group is written to.
const measurementState = "aduro_state"

// maxFlattenDepth bounds recursion into nested appliance objects.
const maxFlattenDepth = 4

// WriteGroupState writes the numeric fields of one refresh group payload as a
// single point tagged with the device and group.
//
// Nested objects are flattened with dotted keys ("drift.co"), array elements
// are indexed ("0"), and numeric strings such as "21.5" are parsed; other
// values are skipped. It returns the number of fields written, which is zero
// for payloads with nothing numeric in them.
func (c *Client) WriteGroupState(deviceID, group string, payload []byte, at time.Time) (int, error) {
	if !c.IsConnected() {
		return 0, ErrNotConnected
	}

	fields, err := NumericFields(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if len(fields) == 0 {
		return 0, nil
	}

	point := write.NewPoint(
		measurementState,
		map[string]string{
			"device_id": deviceID,
			"group":     group,
		},
		fields,
		at,
	)
	c.writeAPI.WritePoint(point)

	return len(fields), nil
}

// NumericFields extracts numeric values from a JSON document as flat field names.
func NumericFields(payload []byte) (map[string]interface{}, error) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	fields := make(map[string]interface{})
	flatten("", doc, 0, fields)
	return fields, nil
}

func flatten(prefix string, v any, depth int, out map[string]interface{}) {
	if depth > maxFlattenDepth {
		return
	}

	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flatten(join(prefix, k), val[k], depth+1, out)
		}
	case []any:
		for i, item := range val {
			flatten(join(prefix, strconv.Itoa(i)), item, depth+1, out)
		}
	case float64:
		if prefix != "" {
			out[prefix] = val
		}
	case string:
		if prefix == "" {
			return
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			out[prefix] = f
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
