// Package command turns user intents into device bus traffic.
//
// Pairing, unpairing and status queries are request/response exchanges
// carried by the correlation registry; start, stop, settings, manual
// commands and firmware updates are fire-and-forget publishes. Every
// operation resolves the device through a Directory before anything is
// published, and every result maps onto an Outcome.
//
// Errors are sentinels checked with errors.Is:
//
//	_, err := svc.Pair(ctx, "ABC123", "Boiler", ownerID)
//	switch {
//	case errors.Is(err, command.ErrTimeout):
//	    // device did not answer; safe to retry
//	case errors.Is(err, command.ErrRejected):
//	    var rej *command.RejectedError
//	    errors.As(err, &rej) // rej.Message is the device's reason
//	}
package command
