package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire format for every realtime event in both directions
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// Encode marshals an outbound event into its wire form
func Encode(event string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
		}
		raw = b
	}

	return json.Marshal(Envelope{
		Event:     event,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	})
}

// CallInitiatePayload is the payload of a call_initiate event
type CallInitiatePayload struct {
	CalleeID uuid.UUID `json:"callee_id"`
	CallType string    `json:"call_type"`
}

// CallActionPayload addresses answer/decline/end at an existing call
type CallActionPayload struct {
	CallID uuid.UUID `json:"call_id"`
}

// SignalPayload carries an opaque WebRTC negotiation payload. The relay never
// interprets Payload.
type SignalPayload struct {
	CallID  uuid.UUID       `json:"call_id"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorPayload is sent back to the originating connection on any failure
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
