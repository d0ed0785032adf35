package device

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Logger defines the logging interface used by the Directory.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

const defaultCacheSize = 512

// Directory resolves devices by ID or serial through bounded LRU caches
// in front of a Repository. Writes go through the Directory so the caches
// stay consistent.
//
// Returned devices are copies; callers may modify them.
type Directory struct {
	repo     Repository
	byID     *lru.Cache[string, *Device]
	bySerial *lru.Cache[string, *Device]
	logger   Logger
}

// NewDirectory creates a directory caching up to size devices.
// A non-positive size uses the default.
func NewDirectory(repo Repository, size int) (*Directory, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	byID, err := lru.New[string, *Device](size)
	if err != nil {
		return nil, fmt.Errorf("creating id cache: %w", err)
	}
	bySerial, err := lru.New[string, *Device](size)
	if err != nil {
		return nil, fmt.Errorf("creating serial cache: %w", err)
	}
	return &Directory{
		repo:     repo,
		byID:     byID,
		bySerial: bySerial,
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger for the directory.
func (d *Directory) SetLogger(logger Logger) {
	d.logger = logger
}

// LookupByID returns the device with the given internal ID.
func (d *Directory) LookupByID(ctx context.Context, id string) (*Device, error) {
	if cached, ok := d.byID.Get(id); ok {
		return cached.Clone(), nil
	}
	dev, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.remember(dev)
	return dev, nil
}

// LookupBySerial returns the device paired under serial.
func (d *Directory) LookupBySerial(ctx context.Context, serial string) (*Device, error) {
	if cached, ok := d.bySerial.Get(serial); ok {
		return cached.Clone(), nil
	}
	dev, err := d.repo.GetBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	d.remember(dev)
	return dev, nil
}

// CommitPairing stores a newly paired device.
func (d *Directory) CommitPairing(ctx context.Context, serial, name, ownerID string) (*Device, error) {
	dev := &Device{SerialNumber: serial, Name: name, OwnerID: ownerID}
	if err := d.repo.Create(ctx, dev); err != nil {
		return nil, err
	}
	d.remember(dev)
	d.logger.Info("device paired", "device_id", dev.ID, "serial", serial, "owner_id", ownerID)
	return dev.Clone(), nil
}

// ListByOwner lists a user's devices. The list is not cached.
func (d *Directory) ListByOwner(ctx context.Context, ownerID string) ([]Device, error) {
	return d.repo.ListByOwner(ctx, ownerID)
}

// Rename changes a device's name and refreshes the caches.
func (d *Directory) Rename(ctx context.Context, id, name string) (*Device, error) {
	if err := d.repo.Rename(ctx, id, name); err != nil {
		return nil, err
	}
	d.forgetID(id)
	return d.LookupByID(ctx, id)
}

// RemoveBySerial deletes the device paired under serial.
func (d *Directory) RemoveBySerial(ctx context.Context, serial string) error {
	// The two caches evict independently, so the ID may only be known to
	// the store.
	id := ""
	if cached, ok := d.bySerial.Peek(serial); ok {
		id = cached.ID
	} else if dev, err := d.repo.GetBySerial(ctx, serial); err == nil {
		id = dev.ID
	}

	err := d.repo.DeleteBySerial(ctx, serial)
	d.Invalidate(id, serial)
	if err != nil {
		return err
	}
	d.logger.Info("device removed", "serial", serial)
	return nil
}

// Invalidate drops every cached entry for a device removed behind the
// directory's back, such as by an owner cascade. Both keys are needed
// because either cache may have evicted the device already.
func (d *Directory) Invalidate(id, serial string) {
	d.forgetID(id)
	if serial != "" {
		d.bySerial.Remove(serial)
	}
}

// CacheLen returns the number of devices currently cached.
func (d *Directory) CacheLen() int {
	return d.byID.Len()
}

func (d *Directory) remember(dev *Device) {
	c := dev.Clone()
	d.byID.Add(c.ID, c)
	d.bySerial.Add(c.SerialNumber, c)
}

func (d *Directory) forgetID(id string) {
	if id == "" {
		return
	}
	if cached, ok := d.byID.Peek(id); ok {
		d.bySerial.Remove(cached.SerialNumber)
	}
	d.byID.Remove(id)
}
