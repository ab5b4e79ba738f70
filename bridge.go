package unitybridge

import (
	"context"
)

// Bridge is a started connection to the engine.
//
// Lifecycle: bridges are single-use. After Close, create a new one with
// NewBridge.
type Bridge interface {
	// Start starts the transport and the read loop.
	// Returns EngineNotFoundError if the engine binary cannot be located,
	// or ConnectionError when the transport cannot connect.
	Start(ctx context.Context) error

	// Send sends a fire-and-forget message on channel.
	Send(ctx context.Context, channel string, data any) error

	// SendTyped sends a fire-and-forget message with an explicit type.
	// Types reserved for correlation are rejected.
	SendTyped(ctx context.Context, channel string, typ MessageType, data any) error

	// SendText sends an unstructured string. Text that starts with the
	// structured prefix is rejected.
	SendText(ctx context.Context, text string) error

	// SendRequest issues a request and returns its Future.
	// The request is cancelled when ctx ends before it settles.
	SendRequest(ctx context.Context, channel string, typ MessageType, data any) (*Future, error)

	// Request issues a request and waits for its outcome: the Response
	// message, a *RequestError or a *CanceledError.
	Request(ctx context.Context, channel string, typ MessageType, data any) (Message, error)

	// Subscribe registers handler for structured messages on channel.
	// Registering the same pointer handler twice returns the existing
	// subscription.
	Subscribe(channel string, handler Handler) *Subscription

	// SubscribeFunc registers fn for structured messages on channel.
	SubscribeFunc(channel string, fn func(ctx context.Context, h *Handle) error) *Subscription

	// SubscribePlain registers handler for unstructured strings.
	SubscribePlain(handler PlainHandler) *Subscription

	// Stats returns a snapshot of the bridge's pending requests, in-flight
	// handlers and subscriptions.
	Stats() Stats

	// IsReady reports whether the bridge is started and connected.
	IsReady() bool

	// Done is closed when the bridge stops reading, because the transport
	// ended or because it was closed.
	Done() <-chan struct{}

	// Err returns the transport error that stopped the bridge, if any.
	Err() error

	// Close stops the bridge and releases the transport.
	// Pending requests settle as cancelled. Safe to call multiple times.
	Close() error
}

// NewBridge creates a bridge configured by opts. Call Start to connect:
//
//	b := NewBridge(WithWebSocketURL("ws://localhost:8090/bridge"))
//	err := b.Start(ctx)
func NewBridge(opts ...Option) Bridge {
	return newBridgeImpl(applyOptions(opts))
}
