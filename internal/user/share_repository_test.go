package user

import (
	"context"
	"errors"
	"testing"
)

type shareFixture struct {
	shares     *SQLiteShareRepository
	alice, bob *User
}

func newShareFixture(t *testing.T) shareFixture {
	t.Helper()
	db := testDB(t)
	users := NewSQLiteRepository(db)
	alice := mustCreateUser(t, users, 1, "Alice")
	bob := mustCreateUser(t, users, 2, "Bob")
	mustCreateDevice(t, db, "dev-1", "ABC123", alice.ID)
	mustCreateDevice(t, db, "dev-2", "XYZ999", alice.ID)
	return shareFixture{shares: NewSQLiteShareRepository(db), alice: alice, bob: bob}
}

func TestShare_GrantListRevoke(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	if err := f.shares.Share(ctx, &Share{OwnerID: f.alice.ID, UserID: f.bob.ID, DeviceID: "dev-1"}); err != nil {
		t.Fatalf("Share() error = %v", err)
	}

	list, err := f.shares.ListForUser(ctx, f.bob.ID)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListForUser() len = %d, want 1", len(list))
	}
	if list[0].SerialNumber != "ABC123" || list[0].AccessLevel != AccessView {
		t.Errorf("ListForUser()[0] = %+v", list[0])
	}

	byDevice, err := f.shares.ListForDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("ListForDevice() error = %v", err)
	}
	if len(byDevice) != 1 || byDevice[0].UserID != f.bob.ID {
		t.Errorf("ListForDevice() = %+v", byDevice)
	}

	if err := f.shares.Revoke(ctx, f.bob.ID, "dev-1"); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := f.shares.Revoke(ctx, f.bob.ID, "dev-1"); !errors.Is(err, ErrShareNotFound) {
		t.Errorf("second Revoke() error = %v, want ErrShareNotFound", err)
	}
}

func TestShare_UpgradeLevel(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	for _, level := range []AccessLevel{AccessView, AccessControl} {
		if err := f.shares.Share(ctx, &Share{OwnerID: f.alice.ID, UserID: f.bob.ID, DeviceID: "dev-1", AccessLevel: level}); err != nil {
			t.Fatalf("Share(%s) error = %v", level, err)
		}
	}

	list, err := f.shares.ListForDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("ListForDevice() error = %v", err)
	}
	if len(list) != 1 || list[0].AccessLevel != AccessControl {
		t.Errorf("ListForDevice() = %+v, want one control share", list)
	}
}

func TestShare_Rejections(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		share   Share
		wantErr error
	}{
		{"not owner", Share{OwnerID: f.bob.ID, UserID: f.alice.ID, DeviceID: "dev-1"}, ErrNotOwner},
		{"self share", Share{OwnerID: f.alice.ID, UserID: f.alice.ID, DeviceID: "dev-1"}, ErrInvalidShare},
		{"bad level", Share{OwnerID: f.alice.ID, UserID: f.bob.ID, DeviceID: "dev-1", AccessLevel: "admin"}, ErrInvalidShare},
		{"unknown device", Share{OwnerID: f.alice.ID, UserID: f.bob.ID, DeviceID: "dev-9"}, ErrInvalidShare},
		{"unknown user", Share{OwnerID: f.alice.ID, UserID: "usr-ghost", DeviceID: "dev-1"}, ErrInvalidShare},
		{"missing fields", Share{OwnerID: f.alice.ID}, ErrInvalidShare},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.share
			if err := f.shares.Share(ctx, &s); !errors.Is(err, tt.wantErr) {
				t.Errorf("Share() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHasAccess(t *testing.T) {
	f := newShareFixture(t)
	ctx := context.Background()

	if err := f.shares.Share(ctx, &Share{OwnerID: f.alice.ID, UserID: f.bob.ID, DeviceID: "dev-1", AccessLevel: AccessView}); err != nil {
		t.Fatalf("Share() error = %v", err)
	}

	tests := []struct {
		name     string
		userID   string
		deviceID string
		want     AccessLevel
		allowed  bool
	}{
		{"owner control", f.alice.ID, "dev-1", AccessControl, true},
		{"viewer view", f.bob.ID, "dev-1", AccessView, true},
		{"viewer control", f.bob.ID, "dev-1", AccessControl, false},
		{"unshared device", f.bob.ID, "dev-2", AccessView, false},
		{"missing device", f.alice.ID, "dev-9", AccessView, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.shares.HasAccess(ctx, tt.userID, tt.deviceID, tt.want)
			if err != nil {
				t.Fatalf("HasAccess() error = %v", err)
			}
			if got != tt.allowed {
				t.Errorf("HasAccess() = %v, want %v", got, tt.allowed)
			}
		})
	}
}

func TestAccessLevel_Allows(t *testing.T) {
	if !AccessControl.Allows(AccessView) {
		t.Error("control should allow view")
	}
	if AccessView.Allows(AccessControl) {
		t.Error("view should not allow control")
	}
	if AccessLevel("").Allows(AccessView) {
		t.Error("empty level should allow nothing")
	}
}
