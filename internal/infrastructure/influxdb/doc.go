// Package influxdb records device telemetry in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Every telemetry frame
// the gateway accepts is written as a device_telemetry point, tagged with the
// device ID and broker channel, carrying the frame's numeric and boolean
// values as fields.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTelemetry("esp32-env-01", "sensors/environmental", data, time.Now())
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval); their
// errors arrive on the SetOnError callback. Connection and health check
// errors are returned directly. A nil *Client accepts and drops all writes.
package influxdb
