// Package protocol defines the relay envelope exchanged over the duplex
// transport in both directions, and validates it at the boundary.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEnvelope is returned when a frame is not a parseable envelope
// or is missing one of the required fields.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the unit routed by the relay. It carries no version, sequence
// number or acknowledgment field.
type Envelope struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// wireEnvelope distinguishes absent fields from empty ones.
type wireEnvelope struct {
	RoomID   *string `json:"roomId"`
	Username *string `json:"username"`
	Text     *string `json:"text"`
}

// Parse decodes a raw frame into an Envelope. Every field must be present and
// hold a string; empty strings are accepted here and left to the receiver.
func Parse(raw []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: frame is not a JSON object", ErrMalformedEnvelope)
	}

	var w wireEnvelope
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	var missing []string
	if w.RoomID == nil {
		missing = append(missing, "roomId")
	}
	if w.Username == nil {
		missing = append(missing, "username")
	}
	if w.Text == nil {
		missing = append(missing, "text")
	}
	if len(missing) > 0 {
		return Envelope{}, fmt.Errorf("%w: missing %s", ErrMalformedEnvelope, strings.Join(missing, ", "))
	}

	return Envelope{RoomID: *w.RoomID, Username: *w.Username, Text: *w.Text}, nil
}

// Encode serializes the envelope for sending.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Blank reports whether the text is empty after trimming. Blank envelopes
// are dropped silently everywhere.
func (e Envelope) Blank() bool {
	return strings.TrimSpace(e.Text) == ""
}
