package correlation

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope types.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
)

// Envelope is the JSON body exchanged with devices. Fields other than
// these are kept in the raw payload of a Response.
type Envelope struct {
	Type      string          `json:"type"`
	Operation string          `json:"operation,omitempty"`
	Status    string          `json:"status,omitempty"`
	Message   string          `json:"message,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Response is a decoded response envelope together with where and when
// it arrived.
type Response struct {
	Envelope
	Topic      string
	Raw        []byte
	ReceivedAt time.Time
}

// Key builds the correlation key for an operation on a device.
func Key(serial, operation string) string {
	return serial + "/" + operation
}

// decodeResponse parses a device message. ok is false for well-formed
// envelopes that are not responses.
func decodeResponse(topic string, body []byte, now time.Time) (resp *Response, ok bool, err error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if env.Type != TypeResponse {
		return nil, false, nil
	}
	return &Response{
		Envelope:   env,
		Topic:      topic,
		Raw:        append([]byte(nil), body...),
		ReceivedAt: now,
	}, true, nil
}
