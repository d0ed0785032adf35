package correlation

import (
	"context"
	"fmt"
	"sync"
)

// Handle is the caller's side of one pending request.
type Handle struct {
	key string
	id  uint64
	reg *Registry

	once sync.Once
	done chan struct{}
	resp *Response
	err  error
}

func newHandle(reg *Registry, key string, id uint64) *Handle {
	return &Handle{key: key, id: id, reg: reg, done: make(chan struct{})}
}

// Key returns the correlation key.
func (h *Handle) Key() string { return h.key }

// Done is closed once the request has ended.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the outcome. It is only meaningful after Done is closed.
func (h *Handle) Result() (*Response, error) {
	return h.resp, h.err
}

// Wait blocks until the request ends or ctx is done. When ctx ends first
// the request is cancelled and its subscription released; the returned
// error then wraps both ErrCancelled and ctx.Err(), unless the response
// won the race.
func (h *Handle) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-h.done:
		return h.resp, h.err
	case <-ctx.Done():
		h.reg.finish(h.key, h.id, nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()))
		<-h.done
		return h.resp, h.err
	}
}

// resolve records the outcome once and wakes waiters.
func (h *Handle) resolve(resp *Response, err error) {
	h.once.Do(func() {
		h.resp = resp
		h.err = err
		close(h.done)
	})
}
