package unitybridge

import "github.com/wagiedev/unity-bridge-go/internal/errors"

// Re-export error types from internal package

// BridgeError is the base interface for all bridge errors.
type BridgeError = errors.BridgeError

// MalformedMessageError indicates a prefixed wire string that is not a valid
// envelope.
type MalformedMessageError = errors.MalformedMessageError

// UnknownChannelError indicates a message addressed to a channel nobody
// subscribed to.
type UnknownChannelError = errors.UnknownChannelError

// UnknownCorrelationError indicates a completion for a request that is not
// pending.
type UnknownCorrelationError = errors.UnknownCorrelationError

// HandlerFaultError indicates a handler returned an error or panicked.
type HandlerFaultError = errors.HandlerFaultError

// RequestError is the outcome of a request the peer answered with an Error.
type RequestError = errors.RequestError

// ErrorPayload is the data carried by an Error reply.
type ErrorPayload = errors.ErrorPayload

// CanceledError is the outcome of a cancelled request.
type CanceledError = errors.CanceledError

// EngineNotFoundError indicates the engine binary was not found.
type EngineNotFoundError = errors.EngineNotFoundError

// ConnectionError indicates failure to connect to the engine.
type ConnectionError = errors.ConnectionError

// ProcessError indicates the engine process failed.
type ProcessError = errors.ProcessError

// Re-export sentinel errors from internal package.
var (
	// ErrDoubleResponse indicates a reply on a request that was already
	// answered.
	ErrDoubleResponse = errors.ErrDoubleResponse

	// ErrNotRequest indicates a reply on a message that expects none.
	ErrNotRequest = errors.ErrNotRequest

	// ErrReservedType indicates a reserved message type was used.
	ErrReservedType = errors.ErrReservedType

	// ErrControllerStopped indicates the bridge stopped before a request settled.
	ErrControllerStopped = errors.ErrControllerStopped

	// ErrRequestCanceled matches every *CanceledError.
	ErrRequestCanceled = errors.ErrRequestCanceled

	// ErrRequestPending indicates a Future's result was read before it settled.
	ErrRequestPending = errors.ErrRequestPending

	// ErrTransportNotConnected indicates the transport is not connected.
	ErrTransportNotConnected = errors.ErrTransportNotConnected

	// ErrBridgeNotStarted indicates the bridge has not been started.
	ErrBridgeNotStarted = errors.ErrBridgeNotStarted

	// ErrBridgeAlreadyStarted indicates Start was called twice.
	ErrBridgeAlreadyStarted = errors.ErrBridgeAlreadyStarted

	// ErrBridgeClosed indicates the bridge has been closed and cannot be reused.
	ErrBridgeClosed = errors.ErrBridgeClosed
)
