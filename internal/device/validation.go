package device

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxNameLength   = 100
	maxSerialLength = 64
	idPrefix        = "dev-"
)

// Serial numbers become a topic level, so only characters that are inert
// in MQTT topics are allowed.
var serialRegex = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateSerial checks a serial number before it is used to build topics.
func ValidateSerial(serial string) error {
	if serial == "" {
		return fmt.Errorf("%w: serial number is required", ErrInvalidSerial)
	}
	if len(serial) > maxSerialLength {
		return fmt.Errorf("%w: serial number exceeds %d characters", ErrInvalidSerial, maxSerialLength)
	}
	if !serialRegex.MatchString(serial) {
		return fmt.Errorf("%w: %q may only contain letters, digits, '.', '_' and '-'", ErrInvalidSerial, serial)
	}
	return nil
}

// ValidateName checks a user-supplied device name.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(trimmed) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// Validate checks a device before it is stored.
func Validate(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}
	if err := ValidateSerial(d.SerialNumber); err != nil {
		return err
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if d.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidDevice)
	}
	return nil
}

// GenerateID returns a new device ID.
func GenerateID() string {
	return idPrefix + uuid.NewString()[:8]
}
