package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDeviceStatus = "device_status"
	MeasurementCommand      = "device_command"
)

// WriteStatusReport records the fields a device returned for a status
// query. Values that are not scalars are stored as JSON strings.
//
//	client.WriteStatusReport("ABC123", map[string]any{"speed": 40, "running": true}, time.Now())
func (c *Client) WriteStatusReport(serial string, fields map[string]any, at time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementDeviceStatus,
		map[string]string{"serial": serial},
		scalarFields(fields),
		at,
	))
}

// WriteCommandOutcome records how one device command ended.
func (c *Client) WriteCommandOutcome(serial, operation, outcome string, latency time.Duration) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"operation": operation,
		"outcome":   outcome,
	}
	if serial != "" {
		tags["serial"] = serial
	}
	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementCommand,
		tags,
		map[string]any{"latency_ms": float64(latency) / float64(time.Millisecond)},
		time.Now(),
	))
}

// scalarFields keeps what line protocol can carry and encodes the rest.
func scalarFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch v.(type) {
		case nil:
			continue
		case bool, string, float64, float32, int, int64, int32, uint, uint64, uint32:
			out[k] = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
