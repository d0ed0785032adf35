package correlation

import "errors"

var (
	// ErrTimeout means no response arrived before the deadline. Retryable.
	ErrTimeout = errors.New("correlation: request timed out")

	// ErrSuperseded means a newer request for the same key replaced this
	// one. The stale call should not be retried.
	ErrSuperseded = errors.New("correlation: request superseded")

	// ErrCancelled means the request was withdrawn before it completed.
	ErrCancelled = errors.New("correlation: request cancelled")

	// ErrMalformedResponse marks a response that could not be decoded.
	// Such responses are dropped and the request stays pending.
	ErrMalformedResponse = errors.New("correlation: malformed response")

	// ErrClosed is returned by Begin after Close.
	ErrClosed = errors.New("correlation: registry closed")

	// ErrInvalidRequest rejects an empty key, response topic or timeout.
	ErrInvalidRequest = errors.New("correlation: invalid request")
)
