package main

import (
	"time"

	"github.com/tgpanel/core/internal/command"
)

// telemetrySink is where command results are written. *influxdb.Client
// implements it.
type telemetrySink interface {
	WriteCommandOutcome(serial, operation, outcome string, latency time.Duration)
	WriteStatusReport(serial string, fields map[string]any, at time.Time)
}

// telemetryObserver forwards command results to InfluxDB.
type telemetryObserver struct {
	sink telemetrySink
}

func (o telemetryObserver) CommandCompleted(ev command.Event) {
	if ev.Serial == "" {
		// Failed before a device was resolved; nothing to tag the point with.
		return
	}
	o.sink.WriteCommandOutcome(ev.Serial, ev.Operation, string(ev.Outcome), ev.Latency)
}

func (o telemetryObserver) StatusReceived(report *command.StatusReport) {
	o.sink.WriteStatusReport(report.Serial, report.Fields, report.ReceivedAt)
}

// logObserver logs every finished command at debug level, failures at warn.
type logObserver struct {
	log interface {
		Debug(msg string, args ...any)
		Warn(msg string, args ...any)
	}
}

func (o logObserver) CommandCompleted(ev command.Event) {
	args := []any{
		"serial", ev.Serial,
		"operation", ev.Operation,
		"outcome", ev.Outcome,
		"latency_ms", ev.Latency.Milliseconds(),
	}
	if ev.Err != nil && ev.Outcome != command.OutcomeRejected {
		o.log.Warn("device command failed", append(args, "error", ev.Err)...)
		return
	}
	o.log.Debug("device command finished", args...)
}

func (logObserver) StatusReceived(*command.StatusReport) {}
