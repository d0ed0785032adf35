package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/tgpanel/core/internal/correlation"
	"github.com/tgpanel/core/internal/device"
	"github.com/tgpanel/core/internal/infrastructure/mqtt"
)

var (
	// ErrTimeout means the device did not answer in time. Retryable.
	ErrTimeout = errors.New("command: device did not respond")

	// ErrSuperseded means a newer request for the same device operation
	// replaced this one.
	ErrSuperseded = errors.New("command: request superseded")

	// ErrTransportUnavailable means the bus could not carry the request.
	ErrTransportUnavailable = errors.New("command: transport unavailable")

	// ErrRejected means the device answered with a refusal.
	ErrRejected = errors.New("command: rejected by device")

	// ErrDeviceNotFound means the directory has no device for the given
	// ID or serial.
	ErrDeviceNotFound = errors.New("command: device not found")

	// ErrAlreadyPaired is returned by Pair for a serial that already has a
	// device record.
	ErrAlreadyPaired = errors.New("command: device already paired")

	// ErrInvalidArgument rejects a malformed serial, name, mode or setting
	// before anything is published.
	ErrInvalidArgument = errors.New("command: invalid argument")

	// ErrCancelled means the caller gave up before an answer arrived.
	ErrCancelled = errors.New("command: request cancelled")
)

// RejectedError carries the device's reason for refusing a request.
type RejectedError struct {
	Operation string
	Status    string
	Message   string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("command: %s %s by device", e.Operation, e.Status)
	}
	return fmt.Sprintf("command: %s %s by device: %s", e.Operation, e.Status, e.Message)
}

// Unwrap makes errors.Is(err, ErrRejected) hold.
func (e *RejectedError) Unwrap() error { return ErrRejected }

// translate maps registry, transport and store errors onto this package's
// sentinels, keeping the original in the chain.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, correlation.ErrTimeout):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, correlation.ErrSuperseded):
		return fmt.Errorf("%w: %w", ErrSuperseded, err)
	case errors.Is(err, correlation.ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	case errors.Is(err, correlation.ErrClosed),
		errors.Is(err, mqtt.ErrNotConnected),
		errors.Is(err, mqtt.ErrPublishFailed),
		errors.Is(err, mqtt.ErrSubscribeFailed),
		errors.Is(err, mqtt.ErrConnectionFailed):
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	case errors.Is(err, device.ErrDeviceNotFound):
		return fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	case errors.Is(err, device.ErrInvalidSerial),
		errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, mqtt.ErrInvalidTopicName),
		errors.Is(err, mqtt.ErrInvalidSerial):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, device.ErrDeviceExists):
		return fmt.Errorf("%w: %w", ErrAlreadyPaired, err)
	}
	return err
}
