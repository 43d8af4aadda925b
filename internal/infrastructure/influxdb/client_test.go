package influxdb_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nerrad567/aduro-bridge/internal/infrastructure/config"
	"github.com/nerrad567/aduro-bridge/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "aduro-dev-token",
		Org:           "aduro",
		Bucket:        "stove",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

// skipIfNoInfluxDB skips the test unless RUN_INTEGRATION is set.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("RUN_INTEGRATION not set, skipping InfluxDB integration test")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestWriteGroupState_NotConnected(t *testing.T) {
	client := &influxdb.Client{}
	_, err := client.WriteGroupState("aduro_h2", "status", []byte(`{"boiler_temp":21}`), time.Now())
	if !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("WriteGroupState() error = %v, want ErrNotConnected", err)
	}
}

func TestNumericFields(t *testing.T) {
	payload := []byte(`{
		"boiler_temp": "21.5",
		"smoke_temp": 143,
		"state": "on",
		"drift": {"co": 18, "o2": "x"},
		"counters": [12, "7"],
		"ok": true
	}`)

	fields, err := influxdb.NumericFields(payload)
	if err != nil {
		t.Fatalf("NumericFields() error = %v", err)
	}

	want := map[string]float64{
		"boiler_temp": 21.5,
		"smoke_temp":  143,
		"drift.co":    18,
		"counters.0":  12,
		"counters.1":  7,
	}
	if len(fields) != len(want) {
		t.Fatalf("NumericFields() = %v, want %d fields", fields, len(want))
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("fields[%q] = %v, want %v", k, fields[k], v)
		}
	}
}

func TestNumericFields_TopLevelArray(t *testing.T) {
	fields, err := influxdb.NumericFields([]byte(`[1234.5]`))
	if err != nil {
		t.Fatalf("NumericFields() error = %v", err)
	}
	if fields["0"] != 1234.5 {
		t.Errorf("fields[\"0\"] = %v, want 1234.5", fields["0"])
	}
}

func TestNumericFields_Malformed(t *testing.T) {
	if _, err := influxdb.NumericFields([]byte(`{not json`)); err == nil {
		t.Error("NumericFields() expected error for malformed JSON")
	}
}

func TestIntegration_WriteGroupState(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	n, err := client.WriteGroupState("aduro_test", "status", []byte(`{"boiler_temp":"21.0","smoke_temp":120}`), time.Now())
	if err != nil {
		t.Fatalf("WriteGroupState() error = %v", err)
	}
	if n != 2 {
		t.Errorf("WriteGroupState() wrote %d fields, want 2", n)
	}
	client.Flush()
}
