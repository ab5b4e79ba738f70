package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BridgeError is the base interface for all bridge errors.
type BridgeError interface {
	error
	IsBridgeError() bool
}

// Compile-time verification that all error types implement BridgeError.
var (
	_ BridgeError = (*MalformedMessageError)(nil)
	_ BridgeError = (*UnknownChannelError)(nil)
	_ BridgeError = (*UnknownCorrelationError)(nil)
	_ BridgeError = (*HandlerFaultError)(nil)
	_ BridgeError = (*RequestError)(nil)
	_ BridgeError = (*CanceledError)(nil)
	_ BridgeError = (*EngineNotFoundError)(nil)
	_ BridgeError = (*ConnectionError)(nil)
	_ BridgeError = (*ProcessError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrDoubleResponse indicates a request handle tried to reply after it
	// already replied or was closed. The reply is never sent.
	ErrDoubleResponse = errors.New("response already sent")

	// ErrNotRequest indicates a reply was attempted on a message that does not
	// expect one.
	ErrNotRequest = errors.New("message is not a request")

	// ErrReservedType indicates a message type reserved for correlation was
	// used where it is not allowed.
	ErrReservedType = errors.New("reserved message type")

	// ErrControllerStopped indicates the protocol controller has been closed.
	ErrControllerStopped = errors.New("protocol controller stopped")

	// ErrRequestCanceled indicates a request finished as cancelled, either
	// locally or by the peer.
	ErrRequestCanceled = errors.New("request canceled")

	// ErrRequestPending indicates a request result was read before it settled.
	ErrRequestPending = errors.New("request pending")

	// ErrTransportNotConnected indicates the transport is not connected.
	ErrTransportNotConnected = errors.New("transport not connected")

	// ErrStdinClosed indicates stdin was closed due to context cancellation.
	ErrStdinClosed = errors.New("stdin closed")

	// ErrBridgeNotStarted indicates the bridge has not been started.
	ErrBridgeNotStarted = errors.New("bridge not started")

	// ErrBridgeAlreadyStarted indicates Start was called twice.
	ErrBridgeAlreadyStarted = errors.New("bridge already started")

	// ErrBridgeClosed indicates the bridge has been closed and cannot be reused.
	ErrBridgeClosed = errors.New("bridge closed: bridges are single-use, create a new one with NewBridge()")
)

// MalformedMessageError indicates a prefixed wire string that is not a valid
// envelope. The dispatcher logs and drops these.
type MalformedMessageError struct {
	Raw string
	Err error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message: %v", e.Err)
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *MalformedMessageError) IsBridgeError() bool { return true }

// UnknownChannelError indicates a message addressed to a channel nobody
// subscribed to.
type UnknownChannelError struct {
	Channel string
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("unknown channel: %q", e.Channel)
}

// IsBridgeError implements BridgeError.
func (e *UnknownChannelError) IsBridgeError() bool { return true }

// UnknownCorrelationError indicates a correlation-bearing message whose uuid
// is not tracked. Expected under cancel/response races.
type UnknownCorrelationError struct {
	UUID int64
	Type int
}

func (e *UnknownCorrelationError) Error() string {
	return fmt.Sprintf("unknown correlation id %d (type %d)", e.UUID, e.Type)
}

// IsBridgeError implements BridgeError.
func (e *UnknownCorrelationError) IsBridgeError() bool { return true }

// HandlerFaultError indicates a subscriber failed while handling a message,
// either by returning an error or by panicking.
type HandlerFaultError struct {
	Channel string
	Err     error
	Panic   any
}

func (e *HandlerFaultError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("handler for %q panicked: %v", e.Channel, e.Panic)
	}

	return fmt.Sprintf("handler for %q failed: %v", e.Channel, e.Err)
}

func (e *HandlerFaultError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *HandlerFaultError) IsBridgeError() bool { return true }

// ErrorPayload is the data carried by an Error message on the wire.
type ErrorPayload struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Caller  string `json:"caller,omitempty"`
}

// NewErrorPayload builds the wire payload for err.
func NewErrorPayload(err error) ErrorPayload {
	if err == nil {
		return ErrorPayload{Message: "unknown error"}
	}

	p := ErrorPayload{Message: err.Error()}

	var bridgeErr BridgeError
	if errors.As(err, &bridgeErr) {
		p.Type = strings.TrimPrefix(fmt.Sprintf("%T", bridgeErr), "*errors.")
	}

	return p
}

// RequestError is the outcome of a request the peer answered with an Error
// message. Data holds the peer's raw error payload.
type RequestError struct {
	Channel string
	UUID    int64
	Data    json.RawMessage
}

func (e *RequestError) Error() string {
	if p, ok := e.Payload(); ok && p.Message != "" {
		return fmt.Sprintf("request %d on %q failed: %s", e.UUID, e.Channel, p.Message)
	}

	if len(e.Data) > 0 {
		return fmt.Sprintf("request %d on %q failed: %s", e.UUID, e.Channel, string(e.Data))
	}

	return fmt.Sprintf("request %d on %q failed", e.UUID, e.Channel)
}

// Payload decodes Data as an ErrorPayload.
func (e *RequestError) Payload() (ErrorPayload, bool) {
	var p ErrorPayload
	if len(e.Data) == 0 {
		return p, false
	}

	if err := json.Unmarshal(e.Data, &p); err != nil {
		return p, false
	}

	return p, true
}

// IsBridgeError implements BridgeError.
func (e *RequestError) IsBridgeError() bool { return true }

// CanceledError is the outcome of a request that was cancelled.
// Remote is true when the peer reported the cancellation.
type CanceledError struct {
	Channel string
	UUID    int64
	Remote  bool
	Cause   error
}

func (e *CanceledError) Error() string {
	origin := "locally"
	if e.Remote {
		origin = "by peer"
	}

	if e.Cause != nil {
		return fmt.Sprintf("request %d on %q canceled %s: %v", e.UUID, e.Channel, origin, e.Cause)
	}

	return fmt.Sprintf("request %d on %q canceled %s", e.UUID, e.Channel, origin)
}

// Is reports ErrRequestCanceled as a match.
func (e *CanceledError) Is(target error) bool {
	return target == ErrRequestCanceled
}

func (e *CanceledError) Unwrap() error {
	return e.Cause
}

// IsBridgeError implements BridgeError.
func (e *CanceledError) IsBridgeError() bool { return true }

// EngineNotFoundError indicates the engine binary was not found.
type EngineNotFoundError struct {
	SearchedPaths []string
}

func (e *EngineNotFoundError) Error() string {
	return fmt.Sprintf("engine binary not found in: %v", e.SearchedPaths)
}

// IsBridgeError implements BridgeError.
func (e *EngineNotFoundError) IsBridgeError() bool { return true }

// ConnectionError indicates failure to connect to the peer.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to engine: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *ConnectionError) IsBridgeError() bool { return true }

// ProcessError indicates the engine process failed.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine process failed (exit %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("engine process failed (exit %d): %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *ProcessError) IsBridgeError() bool { return true }
