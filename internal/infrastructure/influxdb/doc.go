// Package influxdb records device telemetry in InfluxDB.
//
// Two measurements are written: device_status carries the fields of every
// successful status query, tagged by serial; device_command carries the
// outcome and latency of every device command. Telemetry is optional; when
// influxdb.enabled is false Connect returns ErrDisabled and the service
// runs without it.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCommandOutcome("ABC123", "pair", "success", 850*time.Millisecond)
//
// All methods are safe for concurrent use. Writes are batched according to
// batch_size and flush_interval and never block the caller; write failures
// are delivered to the SetOnError callback.
package influxdb
