package command

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tgpanel/core/internal/device"
	"github.com/tgpanel/core/internal/infrastructure/mqtt"
)

// UpdateImage is the firmware a device is told to install.
type UpdateImage struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// Start runs the device in mode at speed.
func (s *Service) Start(ctx context.Context, deviceID, mode string, speed int) error {
	if err := validateLevel("mode", mode); err != nil {
		return err
	}
	if speed < 0 {
		return fmt.Errorf("%w: speed must not be negative", ErrInvalidArgument)
	}
	return s.fireAndForget(ctx, deviceID, mqtt.Operation(mqtt.OpStart, mode), map[string]any{"speed": speed})
}

// Stop halts the device.
func (s *Service) Stop(ctx context.Context, deviceID string) error {
	return s.fireAndForget(ctx, deviceID, mqtt.OpStop, map[string]any{"speed": 0})
}

// SetSetting changes a named device setting.
func (s *Service) SetSetting(ctx context.Context, deviceID, name string, value any) error {
	if err := validateLevel("setting", name); err != nil {
		return err
	}
	if value == nil {
		return fmt.Errorf("%w: value is required", ErrInvalidArgument)
	}
	return s.fireAndForget(ctx, deviceID, mqtt.Operation(mqtt.OpSet, name), map[string]any{"value": value})
}

// SendCommand sends a manual command in direction.
func (s *Service) SendCommand(ctx context.Context, deviceID, direction string, value any) error {
	if err := validateLevel("direction", direction); err != nil {
		return err
	}
	if mqtt.Operation(mqtt.OpCmd, direction) == mqtt.OpUpdate {
		return fmt.Errorf("%w: firmware updates go through RequestUpdate", ErrInvalidArgument)
	}
	if value == nil {
		return fmt.Errorf("%w: value is required", ErrInvalidArgument)
	}
	return s.fireAndForget(ctx, deviceID, mqtt.Operation(mqtt.OpCmd, direction), map[string]any{"value": value})
}

// RequestUpdate tells the device to install img.
func (s *Service) RequestUpdate(ctx context.Context, deviceID string, img UpdateImage) error {
	if img.Version == "" {
		return fmt.Errorf("%w: firmware version is required", ErrInvalidArgument)
	}
	if u, err := url.Parse(img.URL); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: firmware url %q is not an http(s) url", ErrInvalidArgument, img.URL)
	}
	return s.fireAndForget(ctx, deviceID, mqtt.OpUpdate, map[string]any{
		"version": img.Version,
		"url":     img.URL,
	})
}

func (s *Service) fireAndForget(ctx context.Context, deviceID, op string, fields map[string]any) (err error) {
	start := s.now()
	var dev *device.Device
	defer func() {
		serial := ""
		if dev != nil {
			serial = dev.SerialNumber
		}
		s.completed(serial, deviceID, op, start, err)
	}()

	dev, err = s.resolve(ctx, deviceID)
	if err != nil {
		return err
	}
	return s.publish(ctx, dev.SerialNumber, op, fields, s.cfg.Delivery)
}

// publish sends a request envelope with no response expected.
func (s *Service) publish(ctx context.Context, serial, op string, fields map[string]any, opts mqtt.DeliveryOptions) error {
	if err := ctx.Err(); err != nil {
		return translate(err)
	}
	body, err := encodeRequest(op, fields)
	if err != nil {
		return err
	}
	topic := s.topics.Request(serial, op)
	if err := s.publisher.PublishWith(topic, body, opts); err != nil {
		s.logger.Warn("device publish failed", "topic", topic, "error", err)
		return translate(err)
	}
	s.logger.Debug("device command sent", "topic", topic, "assurance", opts.Assurance.String())
	return nil
}

// validateLevel checks a value that becomes one topic level.
func validateLevel(what, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, what)
	}
	if err := mqtt.ValidateSerial(v); err != nil {
		return fmt.Errorf("%w: %s %q is not a valid topic level", ErrInvalidArgument, what, v)
	}
	return nil
}
