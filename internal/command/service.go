package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tgpanel/core/internal/correlation"
	"github.com/tgpanel/core/internal/device"
	"github.com/tgpanel/core/internal/infrastructure/mqtt"
)

// Default timeouts.
const (
	DefaultPairTimeout   = 30 * time.Second
	DefaultStatusTimeout = time.Second
)

// Response statuses a device may send.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// Directory resolves devices known to the store.
type Directory interface {
	LookupBySerial(ctx context.Context, serial string) (*device.Device, error)
	LookupByID(ctx context.Context, id string) (*device.Device, error)
}

// Committer persists a device once the physical device accepted pairing.
type Committer interface {
	CommitPairing(ctx context.Context, serial, name, ownerID string) (*device.Device, error)
}

// Caller performs correlated request/response exchanges.
// *correlation.Registry implements it.
type Caller interface {
	Call(ctx context.Context, req correlation.Request) (*correlation.Response, error)
}

// Publisher sends fire-and-forget messages. *mqtt.Client implements it.
type Publisher interface {
	PublishWith(topic string, payload []byte, opts mqtt.DeliveryOptions) error
}

// Logger defines the logging interface used by the Service.
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

// Config holds Service settings. Zero values take the defaults.
type Config struct {
	PairTimeout   time.Duration
	StatusTimeout time.Duration

	// Delivery applies to every publish except unpair, which is always
	// ExactlyOnce.
	Delivery mqtt.DeliveryOptions
}

// Deps are the collaborators a Service needs.
type Deps struct {
	Caller    Caller
	Publisher Publisher
	Directory Directory
	Committer Committer
}

// PairResult is the outcome of a successful pairing.
type PairResult struct {
	Device  *device.Device `json:"device"`
	Message string         `json:"message,omitempty"`
}

// StatusReport is a device's answer to a status query.
type StatusReport struct {
	DeviceID   string         `json:"device_id"`
	Serial     string         `json:"serial_number"`
	Status     string         `json:"status,omitempty"`
	Fields     map[string]any `json:"fields"`
	ReceivedAt time.Time      `json:"received_at"`
	Latency    time.Duration  `json:"-"`
}

// Service issues device commands.
type Service struct {
	caller    Caller
	publisher Publisher
	directory Directory
	committer Committer
	cfg       Config
	topics    mqtt.Topics
	observer  Observer
	logger    Logger
	now       func() time.Time
}

// NewService creates a command service.
func NewService(deps Deps, cfg Config) (*Service, error) {
	if deps.Caller == nil || deps.Publisher == nil || deps.Directory == nil || deps.Committer == nil {
		return nil, fmt.Errorf("%w: caller, publisher, directory and committer are required", ErrInvalidArgument)
	}
	if cfg.PairTimeout <= 0 {
		cfg.PairTimeout = DefaultPairTimeout
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = DefaultStatusTimeout
	}
	return &Service{
		caller:    deps.Caller,
		publisher: deps.Publisher,
		directory: deps.Directory,
		committer: deps.Committer,
		cfg:       cfg,
		observer:  noopObserver{},
		logger:    noopLogger{},
		now:       time.Now,
	}, nil
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetObserver sets the observer notified of command results.
func (s *Service) SetObserver(o Observer) {
	if o == nil {
		o = noopObserver{}
	}
	s.observer = o
}

// Pair asks the device with serial to pair under name for ownerID and,
// once it accepts, stores the device through the Committer.
func (s *Service) Pair(ctx context.Context, serial, name, ownerID string) (res *PairResult, err error) {
	start := s.now()
	defer func() { s.completed(serial, "", mqtt.OpPair, start, err) }()

	if err := validateSerial(serial); err != nil {
		return nil, err
	}
	if err := device.ValidateName(name); err != nil {
		return nil, translate(err)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidArgument)
	}

	existing, err := s.directory.LookupBySerial(ctx, serial)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s is registered as %s", ErrAlreadyPaired, serial, existing.ID)
	case !isNotFound(err):
		return nil, fmt.Errorf("looking up %s: %w", serial, err)
	}

	name = strings.TrimSpace(name)
	resp, err := s.call(ctx, serial, mqtt.OpPair, map[string]any{"name": name}, s.cfg.PairTimeout)
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusAccepted {
		return nil, rejection(mqtt.OpPair, resp)
	}

	dev, err := s.committer.CommitPairing(ctx, serial, name, ownerID)
	if err != nil {
		return nil, translate(err)
	}
	s.logger.Info("device paired", "serial", serial, "device_id", dev.ID, "owner_id", ownerID)
	return &PairResult{Device: dev, Message: resp.Message}, nil
}

// Unpair tells the device with serial to forget its pairing. It returns
// once the broker has acknowledged the message at QoS 2; the device does
// not answer.
func (s *Service) Unpair(ctx context.Context, serial string) (dev *device.Device, err error) {
	start := s.now()
	defer func() {
		id := ""
		if dev != nil {
			id = dev.ID
		}
		s.completed(serial, id, mqtt.OpUnpair, start, err)
	}()

	if err := validateSerial(serial); err != nil {
		return nil, err
	}
	dev, err = s.directory.LookupBySerial(ctx, serial)
	if err != nil {
		return nil, translate(err)
	}

	opts := s.cfg.Delivery
	opts.Assurance = mqtt.ExactlyOnce
	if err := s.publish(ctx, serial, mqtt.OpUnpair, nil, opts); err != nil {
		return dev, err
	}
	s.logger.Info("device unpaired", "serial", serial, "device_id", dev.ID)
	return dev, nil
}

// QueryStatus asks a device for its current state. A non-positive timeout
// uses the configured status timeout.
func (s *Service) QueryStatus(ctx context.Context, deviceID string, timeout time.Duration) (report *StatusReport, err error) {
	start := s.now()
	var serial string
	defer func() { s.completed(serial, deviceID, mqtt.OpStatus, start, err) }()

	dev, err := s.resolve(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	serial = dev.SerialNumber

	if timeout <= 0 {
		timeout = s.cfg.StatusTimeout
	}
	resp, err := s.call(ctx, serial, mqtt.OpStatus, nil, timeout)
	if err != nil {
		return nil, err
	}
	if resp.Status == StatusRejected || resp.Status == StatusError {
		return nil, rejection(mqtt.OpStatus, resp)
	}

	report = &StatusReport{
		DeviceID:   dev.ID,
		Serial:     serial,
		Status:     resp.Status,
		Fields:     statusFields(resp),
		ReceivedAt: resp.ReceivedAt,
		Latency:    resp.ReceivedAt.Sub(start),
	}
	s.observer.StatusReceived(report)
	return report, nil
}

// call runs one correlated exchange and translates its failure.
func (s *Service) call(ctx context.Context, serial, op string, fields map[string]any, timeout time.Duration) (*correlation.Response, error) {
	body, err := encodeRequest(op, fields)
	if err != nil {
		return nil, err
	}
	topics := s.topics
	resp, err := s.caller.Call(ctx, correlation.Request{
		Key:           correlation.Key(serial, op),
		RequestTopic:  topics.Request(serial, op),
		ResponseTopic: topics.Response(serial, op),
		Payload:       body,
		Delivery:      s.cfg.Delivery,
		Timeout:       timeout,
	})
	if err != nil {
		s.logger.Warn("device request failed", "serial", serial, "operation", op, "error", err)
		return nil, translate(err)
	}
	return resp, nil
}

// resolve looks up a device by its internal ID.
func (s *Service) resolve(ctx context.Context, deviceID string) (*device.Device, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", ErrInvalidArgument)
	}
	dev, err := s.directory.LookupByID(ctx, deviceID)
	if err != nil {
		return nil, translate(err)
	}
	return dev, nil
}

func (s *Service) completed(serial, deviceID, op string, start time.Time, err error) {
	s.observer.CommandCompleted(Event{
		Serial:    serial,
		DeviceID:  deviceID,
		Operation: op,
		Outcome:   OutcomeOf(err),
		Latency:   s.now().Sub(start),
		Err:       err,
	})
}

func validateSerial(serial string) error {
	if err := device.ValidateSerial(serial); err != nil {
		return translate(err)
	}
	if err := mqtt.ValidateSerial(serial); err != nil {
		return translate(err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, device.ErrDeviceNotFound) || errors.Is(err, ErrDeviceNotFound)
}

func rejection(op string, resp *correlation.Response) error {
	status := resp.Status
	if status == "" {
		status = StatusRejected
	}
	return &RejectedError{Operation: op, Status: status, Message: resp.Message}
}

// statusFields flattens a status response: top-level fields other than the
// envelope's, with the members of an object payload merged over them.
func statusFields(resp *correlation.Response) map[string]any {
	fields := make(map[string]any)
	var raw map[string]any
	if err := json.Unmarshal(resp.Raw, &raw); err == nil {
		for k, v := range raw {
			switch k {
			case "type", "operation", "status", "message", "payload":
				continue
			}
			fields[k] = v
		}
	}
	if len(resp.Payload) > 0 {
		var payload map[string]any
		if err := json.Unmarshal(resp.Payload, &payload); err == nil {
			for k, v := range payload {
				fields[k] = v
			}
		} else {
			var v any
			if json.Unmarshal(resp.Payload, &v) == nil {
				fields["payload"] = v
			}
		}
	}
	return fields
}
