package command

import "errors"

// Outcome classifies how a command ended.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess              Outcome = "success"
	OutcomeRejected             Outcome = "rejected"
	OutcomeTimeout              Outcome = "timeout"
	OutcomeTransportUnavailable Outcome = "transport_unavailable"
	OutcomeSuperseded           Outcome = "superseded"
	OutcomeCancelled            Outcome = "cancelled"
	OutcomeError                Outcome = "error"
)

// OutcomeOf classifies an error returned by a Service method.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrRejected):
		return OutcomeRejected
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrTransportUnavailable):
		return OutcomeTransportUnavailable
	case errors.Is(err, ErrSuperseded):
		return OutcomeSuperseded
	case errors.Is(err, ErrCancelled):
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}

// Retryable reports whether the same request may reasonably be sent again.
func (o Outcome) Retryable() bool {
	return o == OutcomeTimeout || o == OutcomeTransportUnavailable
}
