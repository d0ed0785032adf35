// Package correlation turns MQTT's fire-and-forget publishes into
// request/response calls with a deadline.
//
// A request is identified by its key, "{serial}/{operation}". The device
// answers on a topic derived from the same pair, so no correlation id
// travels on the wire. That also means only one request per key can be
// in flight: beginning a second one supersedes the first, whose waiter
// gets ErrSuperseded.
//
// Every pending entry ends exactly once, on the first of:
//   - a response envelope arriving on its response topic
//   - its deadline passing (ErrTimeout)
//   - cancellation by the caller, by Cancel, or by Close (ErrCancelled)
//
// The response subscription is scoped to the entry and released as soon
// as the entry ends, whichever way it ends.
//
//	reg := correlation.NewRegistry(client)
//	resp, err := reg.Call(ctx, correlation.Request{
//	    Key:           correlation.Key("ABC123", "status"),
//	    RequestTopic:  "ABC123/status/req",
//	    ResponseTopic: "ABC123/status/res",
//	    Payload:       body,
//	    Timeout:       time.Second,
//	})
package correlation
