package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ShareRepository defines device sharing persistence.
type ShareRepository interface {
	// Share grants or updates access. The owner must own the device.
	Share(ctx context.Context, s *Share) error

	// Revoke removes userID's access to deviceID.
	Revoke(ctx context.Context, userID, deviceID string) error

	// ListForUser returns the devices shared with userID.
	ListForUser(ctx context.Context, userID string) ([]SharedDevice, error)

	// ListForDevice returns every share of deviceID.
	ListForDevice(ctx context.Context, deviceID string) ([]Share, error)

	// HasAccess reports whether userID may act on deviceID at level want.
	// Owners always may.
	HasAccess(ctx context.Context, userID, deviceID string, want AccessLevel) (bool, error)
}

// SQLiteShareRepository implements ShareRepository using SQLite.
type SQLiteShareRepository struct {
	db *sql.DB
}

// NewSQLiteShareRepository creates a new SQLite-backed share repository.
func NewSQLiteShareRepository(db *sql.DB) *SQLiteShareRepository {
	return &SQLiteShareRepository{db: db}
}

// Share inserts a share, replacing the access level of an existing one.
func (r *SQLiteShareRepository) Share(ctx context.Context, s *Share) error {
	if s.AccessLevel == "" {
		s.AccessLevel = AccessView
	}
	if !s.AccessLevel.Valid() {
		return fmt.Errorf("%w: unknown access level %q", ErrInvalidShare, s.AccessLevel)
	}
	if s.OwnerID == "" || s.UserID == "" || s.DeviceID == "" {
		return fmt.Errorf("%w: owner, user and device are required", ErrInvalidShare)
	}
	if s.OwnerID == s.UserID {
		return fmt.Errorf("%w: cannot share a device with its owner", ErrInvalidShare)
	}

	var owner string
	err := r.db.QueryRowContext(ctx, `SELECT owner_id FROM devices WHERE id = ?`, s.DeviceID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: device %s does not exist", ErrInvalidShare, s.DeviceID)
		}
		return fmt.Errorf("checking device owner: %w", err)
	}
	if owner != s.OwnerID {
		return ErrNotOwner
	}

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO shared_devices (owner_id, user_id, device_id, access_level, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, device_id) DO UPDATE SET access_level = excluded.access_level`,
		s.OwnerID, s.UserID, s.DeviceID, string(s.AccessLevel), s.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: user %s does not exist", ErrInvalidShare, s.UserID)
		}
		return fmt.Errorf("sharing device: %w", err)
	}
	return nil
}

// Revoke removes a share.
func (r *SQLiteShareRepository) Revoke(ctx context.Context, userID, deviceID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM shared_devices WHERE user_id = ? AND device_id = ?`, userID, deviceID)
	if err != nil {
		return fmt.Errorf("revoking share: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrShareNotFound
	}
	return nil
}

// ListForUser returns devices shared with a user, by device name.
func (r *SQLiteShareRepository) ListForUser(ctx context.Context, userID string) ([]SharedDevice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.owner_id, s.user_id, s.device_id, s.access_level, s.created_at,
		       d.serial_number, d.name
		FROM shared_devices s
		JOIN devices d ON d.id = s.device_id
		WHERE s.user_id = ?
		ORDER BY d.name, d.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing shared devices: %w", err)
	}
	defer rows.Close()

	out := []SharedDevice{}
	for rows.Next() {
		var sd SharedDevice
		var level, createdAt string
		if err := rows.Scan(&sd.OwnerID, &sd.UserID, &sd.DeviceID, &level, &createdAt,
			&sd.SerialNumber, &sd.DeviceName); err != nil {
			return nil, fmt.Errorf("scanning shared device: %w", err)
		}
		sd.AccessLevel = AccessLevel(level)
		sd.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		out = append(out, sd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating shared devices: %w", err)
	}
	return out, nil
}

// ListForDevice returns the shares of one device, oldest first.
func (r *SQLiteShareRepository) ListForDevice(ctx context.Context, deviceID string) ([]Share, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT owner_id, user_id, device_id, access_level, created_at
		FROM shared_devices WHERE device_id = ? ORDER BY created_at, user_id`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing device shares: %w", err)
	}
	defer rows.Close()

	out := []Share{}
	for rows.Next() {
		var s Share
		var level, createdAt string
		if err := rows.Scan(&s.OwnerID, &s.UserID, &s.DeviceID, &level, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning share: %w", err)
		}
		s.AccessLevel = AccessLevel(level)
		s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating shares: %w", err)
	}
	return out, nil
}

// HasAccess reports whether a user may act on a device.
func (r *SQLiteShareRepository) HasAccess(ctx context.Context, userID, deviceID string, want AccessLevel) (bool, error) {
	var owner string
	var level sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT d.owner_id, s.access_level
		FROM devices d
		LEFT JOIN shared_devices s ON s.device_id = d.id AND s.user_id = ?
		WHERE d.id = ?`, userID, deviceID).Scan(&owner, &level)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("checking device access: %w", err)
	}
	if owner == userID {
		return true, nil
	}
	return level.Valid && AccessLevel(level.String).Allows(want), nil
}
