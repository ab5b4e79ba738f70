package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/unity-bridge-go/internal/config"
	"github.com/wagiedev/unity-bridge-go/internal/errors"
	"github.com/wagiedev/unity-bridge-go/internal/message"
	"github.com/wagiedev/unity-bridge-go/internal/protocol"
	"github.com/wagiedev/unity-bridge-go/internal/subprocess"
	"github.com/wagiedev/unity-bridge-go/internal/wsconn"
)

// Bridge connects a protocol controller to a transport.
type Bridge struct {
	log        *slog.Logger
	options    *config.Options
	controller *protocol.Controller
	transport  config.Transport

	// Fatal error storage
	errMu    sync.RWMutex
	fatalErr error

	// Errgroup for goroutine management
	eg *errgroup.Group

	// Lifecycle management
	mu        sync.Mutex
	done      chan struct{} // closed by Close
	stopped   chan struct{} // closed when the read loop exits
	started   bool
	closed    bool
	closeOnce sync.Once
}

// New creates a bridge. Subscriptions may be registered before Start so that
// no early message is missed.
func New(options *config.Options) *Bridge {
	if options == nil {
		options = &config.Options{}
	}

	log := options.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	b := &Bridge{
		log:     log.With("component", "bridge"),
		options: options,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	b.controller = protocol.NewController(log, protocol.SenderFunc(b.sendWire), protocol.WithPrefix(options.Prefix))

	return b
}

// Controller returns the bridge's protocol controller.
func (b *Bridge) Controller() *protocol.Controller {
	return b.controller
}

// Options returns the options the bridge was created with.
func (b *Bridge) Options() *config.Options {
	return b.options
}

// Start starts the transport and the read loop.
//
// The read loop is not bound to ctx: ctx only bounds starting the transport.
// The bridge stays up until Close is called or the transport ends.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.ErrBridgeClosed
	}

	if b.started {
		return errors.ErrBridgeAlreadyStarted
	}

	transport := b.selectTransport()

	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	b.transport = transport

	var egCtx context.Context

	b.eg, egCtx = errgroup.WithContext(context.Background())

	b.eg.Go(func() error {
		return b.readLoop(egCtx)
	})

	b.started = true
	b.log.Info("Bridge started", "controller", b.controller.ID())

	return nil
}

// selectTransport picks the injected transport, then websocket, then the
// engine subprocess.
func (b *Bridge) selectTransport() config.Transport {
	switch {
	case b.options.Transport != nil:
		b.log.Debug("Using injected custom transport")

		return b.options.Transport
	case b.options.WebSocketURL != "":
		b.log.Debug("Using websocket transport", "url", b.options.WebSocketURL)

		return wsconn.Dial(b.log, b.options.WebSocketURL, wsconn.WithReadLimit(b.options.ReadLimit))
	default:
		b.log.Debug("Using engine subprocess transport")

		return subprocess.NewEngineTransport(b.log, b.options)
	}
}

// readLoop feeds incoming wire strings to the controller until the
// transport ends or the bridge closes.
func (b *Bridge) readLoop(ctx context.Context) error {
	defer close(b.stopped)
	defer b.log.Debug("Read loop stopped")
	// Nothing can answer pending requests once reading stops.
	defer b.controller.Close()

	messages, errs := b.transport.ReadMessages(ctx)

	for {
		select {
		case raw, ok := <-messages:
			if !ok {
				return b.finish(errs)
			}

			b.controller.OnWireMessage(raw)

		case <-b.done:
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// finish collects the transport's terminal error once its messages end.
func (b *Bridge) finish(errs <-chan error) error {
	var err error

	select {
	case err = <-errs:
	case <-b.done:
	}

	switch {
	case err == nil:
		b.log.Debug("Transport closed")

		return nil
	case b.isClosed():
		b.log.Debug("Transport error during shutdown", "error", err)

		return nil
	}

	b.log.Error("Transport error", "error", err)
	b.setFatalError(err)

	return err
}

func (b *Bridge) sendWire(ctx context.Context, raw string) error {
	b.mu.Lock()
	transport, started := b.transport, b.started
	b.mu.Unlock()

	if !started {
		return errors.ErrBridgeNotStarted
	}

	return transport.SendMessage(ctx, raw)
}

func (b *Bridge) setFatalError(err error) {
	b.errMu.Lock()
	defer b.errMu.Unlock()

	if b.fatalErr == nil {
		b.fatalErr = err
	}
}

// Err returns the transport error that stopped the bridge, if any.
func (b *Bridge) Err() error {
	b.errMu.RLock()
	defer b.errMu.RUnlock()

	return b.fatalErr
}

// Done is closed when the read loop stops, either because the transport
// ended or because the bridge was closed.
func (b *Bridge) Done() <-chan struct{} {
	return b.stopped
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closed
}

func (b *Bridge) checkStarted() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.closed:
		return errors.ErrBridgeClosed
	case !b.started:
		return errors.ErrBridgeNotStarted
	}

	return nil
}

// Send sends a fire-and-forget message on channel.
func (b *Bridge) Send(ctx context.Context, channel string, data any) error {
	if err := b.checkStarted(); err != nil {
		return err
	}

	return b.controller.Send(ctx, channel, data)
}

// SendTyped sends a fire-and-forget message with an explicit type.
func (b *Bridge) SendTyped(ctx context.Context, channel string, typ message.Type, data any) error {
	if err := b.checkStarted(); err != nil {
		return err
	}

	return b.controller.SendTyped(ctx, channel, typ, data)
}

// SendText sends an unstructured string.
func (b *Bridge) SendText(ctx context.Context, text string) error {
	if err := b.checkStarted(); err != nil {
		return err
	}

	return b.controller.SendText(ctx, text)
}

// SendRequest issues a request and returns its future. When the options set
// a RequestTimeout and ctx has no deadline, the request is bounded by it.
func (b *Bridge) SendRequest(
	ctx context.Context,
	channel string,
	typ message.Type,
	data any,
) (*protocol.Future, error) {
	if err := b.checkStarted(); err != nil {
		return nil, err
	}

	ctx, release := b.requestContext(ctx)

	future, err := b.controller.SendRequest(ctx, channel, typ, data)
	if err != nil {
		release()

		return nil, err
	}

	go func() {
		<-future.Done()
		release()
	}()

	return future, nil
}

// Request issues a request and waits for its outcome.
func (b *Bridge) Request(
	ctx context.Context,
	channel string,
	typ message.Type,
	data any,
) (message.Message, error) {
	future, err := b.SendRequest(ctx, channel, typ, data)
	if err != nil {
		return message.Message{}, err
	}

	return future.Await(ctx)
}

func (b *Bridge) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := b.options.RequestTimeout
	if timeout <= 0 {
		return ctx, func() {}
	}

	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}

	return context.WithTimeoutCause(ctx, timeout,
		fmt.Errorf("request timed out after %s: %w", timeout, context.DeadlineExceeded))
}

// Subscribe registers handler for structured messages on channel.
func (b *Bridge) Subscribe(channel string, handler protocol.Handler) *protocol.Subscription {
	return b.controller.Subscribe(channel, handler)
}

// SubscribeFunc registers fn for structured messages on channel.
func (b *Bridge) SubscribeFunc(channel string, fn func(ctx context.Context, h *protocol.Handle) error) *protocol.Subscription {
	return b.controller.SubscribeFunc(channel, fn)
}

// SubscribePlain registers handler for unstructured strings.
func (b *Bridge) SubscribePlain(handler protocol.PlainHandler) *protocol.Subscription {
	return b.controller.SubscribePlain(handler)
}

// Stats returns a snapshot of the controller's state.
func (b *Bridge) Stats() protocol.Stats {
	return b.controller.Stats()
}

// IsReady reports whether the bridge is started and its transport is ready.
func (b *Bridge) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.started && !b.closed && b.transport.IsReady()
}

// Close stops the controller, closes the transport and waits for the read
// loop. A closed bridge cannot be restarted. Safe to call multiple times.
func (b *Bridge) Close() error {
	var closeErr error

	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		wasStarted := b.started
		b.mu.Unlock()

		b.controller.Close()

		if !wasStarted {
			close(b.stopped)

			return
		}

		b.log.Info("Closing bridge")

		close(b.done)

		closeErr = b.transport.Close()

		if err := b.eg.Wait(); err != nil && closeErr == nil {
			closeErr = err
		}

		b.log.Info("Bridge closed")
	})

	return closeErr
}
