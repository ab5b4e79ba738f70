// Package message defines the wire envelope exchanged across the bridge and
// the codec that turns it into prefixed strings and back.
package message

import (
	"encoding/json"
	"fmt"
)

// Type tags a message. Values at or above Request are caller-defined request
// discriminators.
type Type int

const (
	// Default is a fire-and-forget message.
	Default Type = 0
	// Response completes a request successfully.
	Response Type = 1
	// Error completes a request with a failure.
	Error Type = 2
	// Cancel asks the peer to stop processing a request.
	Cancel Type = 3
	// Canceled notifies that processing of a request was stopped.
	Canceled Type = 4
	// Request is the first request type; every type >= Request is a request.
	Request Type = 9
)

// IsCompletion reports whether t terminates a request (Response, Error, Canceled).
func (t Type) IsCompletion() bool {
	return t == Response || t == Error || t == Canceled
}

// IsRequestRange reports whether t is in the request range.
func (t Type) IsRequestRange() bool {
	return t >= Request
}

// IsReserved reports whether t is one of the correlation types or the
// reserved gap below Request.
func (t Type) IsReserved() bool {
	return t > Default && t < Request
}

func (t Type) String() string {
	switch t {
	case Default:
		return "default"
	case Response:
		return "response"
	case Error:
		return "error"
	case Cancel:
		return "cancel"
	case Canceled:
		return "canceled"
	}

	if t >= Request {
		return fmt.Sprintf("request(%d)", int(t))
	}

	return fmt.Sprintf("type(%d)", int(t))
}

// Message is the structured envelope.
//
// Wire format (after the prefix):
//
//	{
//	  "id": "scene",
//	  "type": 9,
//	  "uuid": 12,
//	  "data": {...}
//	}
//
// uuid and data are omitted when absent.
type Message struct {
	// ID names the logical channel the message is addressed to.
	ID string `json:"id"`

	// Type is the message type tag.
	Type Type `json:"type"`

	// UUID is the correlation id. Set only on correlation-bearing messages.
	UUID *int64 `json:"uuid,omitempty"`

	// Data is the opaque payload.
	Data json.RawMessage `json:"data,omitempty"`
}

// HasUUID reports whether the message carries a correlation id.
func (m Message) HasUUID() bool {
	return m.UUID != nil
}

// CorrelationID returns the uuid, or 0 when absent.
func (m Message) CorrelationID() int64 {
	if m.UUID == nil {
		return 0
	}

	return *m.UUID
}

// IsSimple reports whether no response is expected.
func (m Message) IsSimple() bool {
	return m.UUID == nil
}

// IsRequest reports whether the sender awaits a correlated reply.
func (m Message) IsRequest() bool {
	return m.UUID != nil && m.Type.IsRequestRange()
}

// IsRequestCompletion reports whether this is a response, error or
// cancellation notification for a request.
func (m Message) IsRequestCompletion() bool {
	return m.UUID != nil && m.Type.IsCompletion()
}

// IsResponse reports whether this is a successful response.
func (m Message) IsResponse() bool {
	return m.UUID != nil && m.Type == Response
}

// IsError reports whether this is an error response.
func (m Message) IsError() bool {
	return m.UUID != nil && m.Type == Error
}

// IsCancel reports whether this is a cancellation request.
func (m Message) IsCancel() bool {
	return m.UUID != nil && m.Type == Cancel
}

// IsCanceled reports whether this is a cancellation notification.
func (m Message) IsCanceled() bool {
	return m.UUID != nil && m.Type == Canceled
}

// UnmarshalData decodes the payload into v. An absent payload leaves v untouched.
func (m Message) UnmarshalData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s data for %q: %w", m.Type, m.ID, err)
	}

	return nil
}

// DataAs decodes the payload of m into a T. An absent payload yields the zero T.
func DataAs[T any](m Message) (T, error) {
	var v T

	err := m.UnmarshalData(&v)

	return v, err
}

// NewData marshals v into a payload. nil yields an absent payload, and
// json.RawMessage values are passed through unchanged.
func NewData(v any) (json.RawMessage, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(d) == 0 {
			return nil, nil
		}

		if !json.Valid(d) {
			return nil, fmt.Errorf("marshal data: invalid JSON payload")
		}

		return d, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}

	if string(data) == "null" {
		return nil, nil
	}

	return data, nil
}

// Correlated returns a copy of m carrying uuid.
func (m Message) Correlated(uuid int64) Message {
	m.UUID = &uuid

	return m
}
