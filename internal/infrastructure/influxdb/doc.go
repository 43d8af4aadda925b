// Package influxdb records refreshed appliance state as time series.
//
// It wraps the official influxdb-client-go v2 library. Each refresh group
// that the appliance answers becomes one point in the "aduro_state"
// measurement, tagged with device_id and group, carrying every numeric
// field of the group payload.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	defer client.Close()
//
//	n, err := client.WriteGroupState("aduro_h2", "status", payload, time.Now())
//
// Writes are non-blocking and batched (batch_size, flush_interval); batch
// failures are delivered to the SetOnError callback.
package influxdb
