package correlation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tgpanel/core/internal/infrastructure/mqtt"
)

// Bus is the transport the registry needs. *mqtt.Client implements it.
type Bus interface {
	Subscribe(pattern string, qos byte, handler mqtt.MessageHandler) (mqtt.Subscription, error)
	Unsubscribe(sub mqtt.Subscription) error
	PublishWith(topic string, payload []byte, opts mqtt.DeliveryOptions) error
}

// Logger defines the logging interface used by the Registry.
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

const defaultResponseQoS = 1

// Request describes one request/response exchange for Call.
type Request struct {
	Key           string
	RequestTopic  string
	ResponseTopic string
	Payload       []byte
	Delivery      mqtt.DeliveryOptions
	Timeout       time.Duration
}

// Stats are cumulative counters since the registry was created.
type Stats struct {
	Pending    int
	Completed  uint64
	TimedOut   uint64
	Superseded uint64
	Cancelled  uint64
	Malformed  uint64
}

type entry struct {
	id       uint64
	key      string
	topic    string
	timer    *time.Timer
	sub      mqtt.Subscription
	hasSub   bool
	terminal bool
	handle   *Handle
}

// Registry holds the pending requests, at most one per key.
//
// The entry map is the only shared state; every transition into a terminal
// state happens under mu and checks the entry generation, so a response,
// a deadline and a cancellation racing for the same entry produce exactly
// one outcome. Handles are resolved and subscriptions released after mu
// is dropped.
type Registry struct {
	bus Bus
	qos byte

	mu      sync.Mutex
	entries map[string]*entry
	nextID  uint64
	closed  bool

	completed  atomic.Uint64
	timedOut   atomic.Uint64
	superseded atomic.Uint64
	cancelled  atomic.Uint64
	malformed  atomic.Uint64

	logger Logger
	now    func() time.Time
}

// NewRegistry creates a registry that subscribes and publishes through bus.
func NewRegistry(bus Bus) *Registry {
	return &Registry{
		bus:     bus,
		qos:     defaultResponseQoS,
		entries: make(map[string]*entry),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetResponseQoS sets the QoS used for response subscriptions.
func (r *Registry) SetResponseQoS(qos byte) {
	r.qos = qos
}

// Begin registers a pending request for key and subscribes to exactly
// responseTopic. Any request already pending for key is superseded.
//
// If the subscription cannot be made the entry is resolved with that
// error, which is also returned.
func (r *Registry) Begin(key, responseTopic string, timeout time.Duration) (*Handle, error) {
	if key == "" || responseTopic == "" {
		return nil, fmt.Errorf("%w: key and response topic are required", ErrInvalidRequest)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive", ErrInvalidRequest)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}

	var old *entry
	var oldSub mqtt.Subscription
	var oldHasSub bool
	if prev, ok := r.entries[key]; ok {
		old = prev
		oldSub, oldHasSub = r.terminateLocked(prev)
	}

	r.nextID++
	id := r.nextID
	e := &entry{
		id:     id,
		key:    key,
		topic:  responseTopic,
		handle: newHandle(r, key, id),
	}
	r.entries[key] = e
	e.timer = time.AfterFunc(timeout, func() {
		if r.finish(key, id, nil, fmt.Errorf("%w: no response on %s within %v", ErrTimeout, responseTopic, timeout)) {
			r.timedOut.Add(1)
		}
	})
	r.mu.Unlock()

	if old != nil {
		r.superseded.Add(1)
		r.logger.Debug("request superseded", "key", key)
		old.handle.resolve(nil, ErrSuperseded)
		if oldHasSub {
			r.release(oldSub)
		}
	}

	sub, err := r.bus.Subscribe(responseTopic, r.qos, r.responseHandler(key, id))
	if err != nil {
		r.finish(key, id, nil, err)
		return nil, err
	}

	r.mu.Lock()
	if e.terminal {
		// Ended while we were subscribing.
		r.mu.Unlock()
		r.release(sub)
		return e.handle, nil
	}
	e.sub = sub
	e.hasSub = true
	r.mu.Unlock()

	return e.handle, nil
}

// Call begins a request, publishes its payload and waits for the outcome.
// A failed publish ends the request with the publish error.
func (r *Registry) Call(ctx context.Context, req Request) (*Response, error) {
	h, err := r.Begin(req.Key, req.ResponseTopic, req.Timeout)
	if err != nil {
		return nil, err
	}

	if err := r.bus.PublishWith(req.RequestTopic, req.Payload, req.Delivery); err != nil {
		r.finish(h.key, h.id, nil, err)
		<-h.Done()
		return h.Result()
	}

	return h.Wait(ctx)
}

// Cancel ends the request pending for key. reason is wrapped in
// ErrCancelled. It reports whether a request was pending.
func (r *Registry) Cancel(key string, reason error) bool {
	r.mu.Lock()
	e, ok := r.entries[key]
	var id uint64
	if ok {
		id = e.id
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	return r.finish(key, id, nil, cancelError(reason))
}

// CancelAll ends every pending request and returns how many there were.
func (r *Registry) CancelAll(reason error) int {
	r.mu.Lock()
	victims := make([]*entry, 0, len(r.entries))
	subs := make([]mqtt.Subscription, 0, len(r.entries))
	for _, e := range r.entries {
		victims = append(victims, e)
		if sub, ok := r.terminateLocked(e); ok {
			subs = append(subs, sub)
		}
	}
	r.mu.Unlock()

	err := cancelError(reason)
	for _, e := range victims {
		r.cancelled.Add(1)
		e.handle.resolve(nil, err)
	}
	for _, sub := range subs {
		r.release(sub)
	}
	return len(victims)
}

// Close cancels everything pending and refuses new requests.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	if n := r.CancelAll(ErrClosed); n > 0 {
		r.logger.Info("pending requests cancelled on shutdown", "count", n)
	}
	return nil
}

// Pending reports whether a request is outstanding for key.
func (r *Registry) Pending(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Len returns the number of outstanding requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stats returns a snapshot of the registry counters.
func (r *Registry) Stats() Stats {
	return Stats{
		Pending:    r.Len(),
		Completed:  r.completed.Load(),
		TimedOut:   r.timedOut.Load(),
		Superseded: r.superseded.Load(),
		Cancelled:  r.cancelled.Load(),
		Malformed:  r.malformed.Load(),
	}
}

// responseHandler is the scoped handler installed for one entry.
func (r *Registry) responseHandler(key string, id uint64) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		resp, ok, err := decodeResponse(topic, payload, r.now())
		if err != nil {
			r.malformed.Add(1)
			r.logger.Warn("malformed response ignored", "key", key, "topic", topic, "error", err)
			return nil
		}
		if !ok {
			r.logger.Debug("non-response message ignored", "key", key, "topic", topic)
			return nil
		}
		if r.finish(key, id, resp, nil) {
			r.completed.Add(1)
		} else {
			r.logger.Debug("late response dropped", "key", key, "topic", topic)
		}
		return nil
	}
}

// finish moves entry (key, id) to a terminal state. It returns false when
// that entry has already ended, in which case nothing happens.
func (r *Registry) finish(key string, id uint64, resp *Response, err error) bool {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok || e.id != id {
		r.mu.Unlock()
		return false
	}
	sub, hasSub := r.terminateLocked(e)
	r.mu.Unlock()

	if errors.Is(err, ErrCancelled) {
		r.cancelled.Add(1)
	}
	e.handle.resolve(resp, err)
	if hasSub {
		r.release(sub)
	}
	return true
}

// terminateLocked removes e and stops its timer. It hands back the
// subscription for the caller to release outside the lock.
func (r *Registry) terminateLocked(e *entry) (mqtt.Subscription, bool) {
	delete(r.entries, e.key)
	e.terminal = true
	if e.timer != nil {
		e.timer.Stop()
	}
	sub, had := e.sub, e.hasSub
	e.hasSub = false
	return sub, had
}

func (r *Registry) release(sub mqtt.Subscription) {
	if err := r.bus.Unsubscribe(sub); err != nil {
		r.logger.Warn("releasing response subscription failed", "pattern", sub.Pattern, "error", err)
	}
}

func cancelError(reason error) error {
	switch {
	case reason == nil:
		return ErrCancelled
	case errors.Is(reason, ErrCancelled):
		return reason
	default:
		return fmt.Errorf("%w: %w", ErrCancelled, reason)
	}
}
