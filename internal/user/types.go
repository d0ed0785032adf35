package user

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Subscription tiers.
const (
	SubscriptionFree    = "free"
	SubscriptionPremium = "premium"
)

const maxNameLength = 128

// User is a Telegram account known to the panel.
type User struct {
	ID               string    `json:"id"`
	TelegramID       int64     `json:"telegram_id"`
	Name             string    `json:"name"`
	SubscriptionType string    `json:"subscription_type"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Validate checks a user before it is stored, filling in the default
// subscription.
func (u *User) Validate() error {
	if u.TelegramID <= 0 {
		return fmt.Errorf("%w: telegram id must be positive", ErrInvalidUser)
	}
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidUser)
	}
	if utf8.RuneCountInString(u.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidUser, maxNameLength)
	}
	switch u.SubscriptionType {
	case "":
		u.SubscriptionType = SubscriptionFree
	case SubscriptionFree, SubscriptionPremium:
	default:
		return fmt.Errorf("%w: unknown subscription type %q", ErrInvalidUser, u.SubscriptionType)
	}
	return nil
}

// AccessLevel is what a share lets the recipient do.
type AccessLevel string

// Access levels, weakest first.
const (
	AccessView    AccessLevel = "view"
	AccessControl AccessLevel = "control"
)

// Valid reports whether l is a known level.
func (l AccessLevel) Valid() bool {
	return l == AccessView || l == AccessControl
}

// Allows reports whether holding l grants want.
func (l AccessLevel) Allows(want AccessLevel) bool {
	switch l {
	case AccessControl:
		return want == AccessView || want == AccessControl
	case AccessView:
		return want == AccessView
	default:
		return false
	}
}

// Share grants a user access to another user's device.
type Share struct {
	OwnerID     string      `json:"owner_id"`
	UserID      string      `json:"user_id"`
	DeviceID    string      `json:"device_id"`
	AccessLevel AccessLevel `json:"access_level"`
	CreatedAt   time.Time   `json:"created_at"`
}

// SharedDevice is a share together with the device it refers to.
type SharedDevice struct {
	Share
	SerialNumber string `json:"serial_number"`
	DeviceName   string `json:"device_name"`
}
