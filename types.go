package unitybridge

import (
	"github.com/wagiedev/unity-bridge-go/internal/config"
	"github.com/wagiedev/unity-bridge-go/internal/message"
	"github.com/wagiedev/unity-bridge-go/internal/protocol"
)

// Re-export types from internal packages

// ===== Options =====

// Options configures a bridge.
type Options = config.Options

// ===== Messages =====

// Prefix marks a wire string as a structured message.
const Prefix = message.Prefix

// Message is the structured envelope: channel id, type, optional correlation
// uuid and optional JSON payload.
type Message = message.Message

// MessageType tags a message.
type MessageType = message.Type

const (
	// MessageTypeDefault is a fire-and-forget message.
	MessageTypeDefault = message.Default
	// MessageTypeResponse completes a request successfully.
	MessageTypeResponse = message.Response
	// MessageTypeError completes a request with a failure.
	MessageTypeError = message.Error
	// MessageTypeCancel asks the peer to stop processing a request.
	MessageTypeCancel = message.Cancel
	// MessageTypeCanceled reports that processing of a request stopped.
	MessageTypeCanceled = message.Canceled
	// MessageTypeRequest is the first request type. Every type at or above it
	// is a request when the message carries a uuid.
	MessageTypeRequest = message.Request
)

// Codec encodes and decodes prefixed envelopes.
type Codec = message.Codec

// NewCodec returns a codec for prefix, or the default prefix when empty.
var NewCodec = message.NewCodec

// ===== Handling =====

// Handler handles structured messages on a channel.
type Handler = protocol.Handler

// HandlerFunc adapts a function to Handler.
type HandlerFunc = protocol.HandlerFunc

// PlainHandler receives unstructured strings.
type PlainHandler = protocol.PlainHandler

// Handle is a handler's view of one incoming message and, for requests, the
// way to answer it.
type Handle = protocol.Handle

// Deferral keeps a request open after its handler returns.
type Deferral = protocol.Deferral

// Subscription is a registered handler. Unsubscribe is idempotent.
type Subscription = protocol.Subscription

// ===== Requests =====

// Future is the pending outcome of a request.
type Future = protocol.Future

// Stats is a snapshot of a bridge's tables.
type Stats = protocol.Stats
