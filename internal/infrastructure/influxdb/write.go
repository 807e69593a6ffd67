package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the gateway.
const (
	MeasurementTelemetry = "device_telemetry"
	MeasurementMetric    = "device_metrics"
)

// WriteTelemetry records one telemetry frame as a device_telemetry point
// tagged with device_id and channel. Only numeric and boolean values are
// kept (see TelemetryFields); a frame with none of them writes nothing.
func (c *Client) WriteTelemetry(deviceID, channel string, data map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	fields := TelemetryFields(data)
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		MeasurementTelemetry,
		map[string]string{
			"device_id": deviceID,
			"channel":   channel,
		},
		fields,
		ts,
	)
	c.writeAPI.WritePoint(point)
}

// WriteDeviceMetric writes a single named value for a device.
//
// Example:
//
//	client.WriteDeviceMetric("esp32-env-01", "temperature", 21.5)
func (c *Client) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementMetric,
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]any{
			"value": value,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// TelemetryFields converts a telemetry payload into InfluxDB fields.
//
// Numbers become float64 fields and booleans stay booleans. Nested objects
// are flattened as parent_child, and arrays as parent_1, parent_2, ... so
// {"relays":[true,false]} yields relays_1=true, relays_2=false. Strings and
// nulls are dropped: they are identifiers, not measurements.
func TelemetryFields(data map[string]any) map[string]any {
	fields := make(map[string]any)
	for k, v := range data {
		addField(fields, k, v)
	}
	return fields
}

func addField(fields map[string]any, key string, v any) {
	switch val := v.(type) {
	case bool:
		fields[key] = val
	case float64:
		fields[key] = val
	case float32:
		fields[key] = float64(val)
	case int:
		fields[key] = float64(val)
	case int64:
		fields[key] = float64(val)
	case int32:
		fields[key] = float64(val)
	case map[string]any:
		for k, nested := range val {
			addField(fields, key+"_"+k, nested)
		}
	case []any:
		for i, nested := range val {
			addField(fields, key+"_"+strconv.Itoa(i+1), nested)
		}
	case []bool:
		for i, nested := range val {
			fields[key+"_"+strconv.Itoa(i+1)] = nested
		}
	}
}
