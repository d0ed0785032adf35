package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no device has the given ID or serial.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when the serial number is already paired.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidSerial is returned when a serial number cannot address a device.
	ErrInvalidSerial = errors.New("device: invalid serial number")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")
)
