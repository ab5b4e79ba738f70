package message

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/wagiedev/unity-bridge-go/internal/errors"
)

// Prefix marks a wire string as a structured message. Strings without it are
// plain text.
const Prefix = "@UnityMessage@"

// Codec encodes and decodes prefixed envelopes. The zero value uses Prefix.
type Codec struct {
	prefix string
}

// NewCodec returns a codec using prefix, or Prefix when empty.
func NewCodec(prefix string) Codec {
	return Codec{prefix: prefix}
}

// Prefix returns the sentinel this codec writes and expects.
func (c Codec) Prefix() string {
	if c.prefix == "" {
		return Prefix
	}

	return c.prefix
}

// envelope mirrors Message with pointer fields so absent keys can be told
// apart from zero values.
type envelope struct {
	ID   *string         `json:"id"`
	Type *int            `json:"type"`
	UUID *int64          `json:"uuid"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes m as prefix + JSON, omitting absent uuid and data.
func (c Codec) Encode(m Message) (string, error) {
	if err := Validate(m); err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}

	if len(m.Data) > 0 && !json.Valid(m.Data) {
		return "", fmt.Errorf("encode message: invalid JSON payload for %q", m.ID)
	}

	body, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}

	return c.Prefix() + string(body), nil
}

// Decode parses a wire string.
//
// ok is false, with a nil error, when raw lacks the prefix: the caller treats
// it as plain text. A prefixed string that is not a valid envelope yields a
// *errors.MalformedMessageError.
func (c Codec) Decode(raw string) (m Message, ok bool, err error) {
	body, found := strings.CutPrefix(raw, c.Prefix())
	if !found {
		return Message{}, false, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return Message{}, true, &errors.MalformedMessageError{Raw: raw, Err: err}
	}

	if env.ID == nil {
		return Message{}, true, &errors.MalformedMessageError{
			Raw: raw,
			Err: stderrors.New("missing 'id' field"),
		}
	}

	m = Message{
		ID:   *env.ID,
		UUID: env.UUID,
	}

	if env.Type != nil {
		m.Type = Type(*env.Type)
	}

	if len(env.Data) > 0 && !bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		m.Data = env.Data
	}

	if err := Validate(m); err != nil {
		return Message{}, true, &errors.MalformedMessageError{Raw: raw, Err: err}
	}

	return m, true, nil
}

// Validate checks the uuid/type invariant of the envelope.
//
// Completion and cancel types must carry a uuid. Default and the reserved
// gap below Request must not. Request-range types may omit it, in which
// case the message is a typed plain message.
func Validate(m Message) error {
	switch {
	case m.Type < Default:
		return fmt.Errorf("negative message type %d", int(m.Type))
	case m.Type.IsCompletion() || m.Type == Cancel:
		if m.UUID == nil {
			return fmt.Errorf("%s message for %q requires a uuid", m.Type, m.ID)
		}
	case m.Type == Default || m.Type.IsReserved():
		if m.UUID != nil {
			return fmt.Errorf("%s message for %q must not carry a uuid", m.Type, m.ID)
		}
	}

	return nil
}

var defaultCodec Codec

// Encode serializes m with the default prefix.
func Encode(m Message) (string, error) {
	return defaultCodec.Encode(m)
}

// Decode parses raw with the default prefix.
func Decode(raw string) (Message, bool, error) {
	return defaultCodec.Decode(raw)
}

// IsStructured reports whether raw carries the default prefix.
func IsStructured(raw string) bool {
	return strings.HasPrefix(raw, Prefix)
}
