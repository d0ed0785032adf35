package user

import "errors"

var (
	// ErrUserNotFound is returned when no user has the given ID.
	ErrUserNotFound = errors.New("user: not found")

	// ErrUserExists is returned when the Telegram account is already registered.
	ErrUserExists = errors.New("user: telegram account already registered")

	// ErrInvalidUser is returned when user validation fails.
	ErrInvalidUser = errors.New("user: invalid user")

	// ErrShareNotFound is returned when revoking a share that does not exist.
	ErrShareNotFound = errors.New("user: share not found")

	// ErrInvalidShare rejects a malformed share request.
	ErrInvalidShare = errors.New("user: invalid share")

	// ErrNotOwner means the sharing user does not own the device.
	ErrNotOwner = errors.New("user: not the device owner")
)
