package command

import (
	"encoding/json"
	"fmt"

	"github.com/tgpanel/core/internal/correlation"
)

// encodeRequest builds a request envelope. Envelope keys in fields are
// overwritten.
func encodeRequest(op string, fields map[string]any) ([]byte, error) {
	msg := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		msg[k] = v
	}
	msg["type"] = correlation.TypeRequest
	msg["operation"] = op

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %s request: %w", ErrInvalidArgument, op, err)
	}
	return body, nil
}
