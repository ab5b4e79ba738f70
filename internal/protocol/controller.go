package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wagiedev/unity-bridge-go/internal/errors"
	"github.com/wagiedev/unity-bridge-go/internal/message"
)

// Sender delivers encoded wire strings to the peer.
//
// This interface is satisfied by every transport and allows for testing with
// recording senders.
type Sender interface {
	SendMessage(ctx context.Context, message string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, message string) error

// SendMessage implements Sender.
func (f SenderFunc) SendMessage(ctx context.Context, message string) error {
	return f(ctx, message)
}

// Controller owns one side of a bridge: the subscriber registry, the table of
// outgoing requests and the table of incoming requests.
//
// A single mutex guards all three. It is never held while sending or while
// running handlers, because a synchronous transport may deliver the reply to
// OnWireMessage before SendMessage returns.
type Controller struct {
	log    *slog.Logger
	id     string
	sender Sender
	codec  message.Codec

	baseCtx  context.Context
	stopBase context.CancelFunc

	lastUUID atomic.Int64

	mu       sync.Mutex
	registry *registry
	outbound *outboundTable
	inbound  *inboundTable
	closed   bool

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithCodec sets the codec used to encode and decode wire strings.
func WithCodec(codec message.Codec) Option {
	return func(c *Controller) {
		c.codec = codec
	}
}

// WithPrefix sets the structured message prefix.
func WithPrefix(prefix string) Option {
	return func(c *Controller) {
		c.codec = message.NewCodec(prefix)
	}
}

// NewController creates a controller that writes through sender.
//
// The logger receives debug, info, warn and error messages during protocol
// operations. A nil logger discards them.
func NewController(log *slog.Logger, sender Sender, opts ...Option) *Controller {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	id := ulid.Make().String()
	baseCtx, stopBase := context.WithCancel(context.Background())

	c := &Controller{
		log:      log.With("component", "protocol", "controller", id),
		id:       id,
		sender:   sender,
		baseCtx:  baseCtx,
		stopBase: stopBase,
		registry: newRegistry(),
		outbound: newOutboundTable(),
		inbound:  newInboundTable(),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ID returns the controller's instance id.
func (c *Controller) ID() string {
	return c.id
}

// Prefix returns the structured message prefix in use.
func (c *Controller) Prefix() string {
	return c.codec.Prefix()
}

// Done is closed once the controller has been closed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// Send sends a fire-and-forget message on channel.
func (c *Controller) Send(ctx context.Context, channel string, data any) error {
	return c.SendTyped(ctx, channel, message.Default, data)
}

// SendTyped sends an uncorrelated message with a custom type. Types between
// Default and Request are reserved for correlation and rejected.
func (c *Controller) SendTyped(ctx context.Context, channel string, typ message.Type, data any) error {
	if typ.IsReserved() || typ < message.Default {
		return fmt.Errorf("send %q with type %d: %w", channel, int(typ), errors.ErrReservedType)
	}

	payload, err := message.NewData(data)
	if err != nil {
		return fmt.Errorf("send %q: %w", channel, err)
	}

	if c.isClosed() {
		return errors.ErrControllerStopped
	}

	return c.post(ctx, message.Message{ID: channel, Type: typ, Data: payload})
}

// SendText sends an unstructured string. Text that carries the structured
// prefix is rejected, since the peer would try to decode it.
func (c *Controller) SendText(ctx context.Context, text string) error {
	if strings.HasPrefix(text, c.codec.Prefix()) {
		return fmt.Errorf("send text: plain text must not start with %q", c.codec.Prefix())
	}

	if c.isClosed() {
		return errors.ErrControllerStopped
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send text: %w", err)
	}

	if err := c.sender.SendMessage(c.baseCtx, text); err != nil {
		return fmt.Errorf("send text: %w", err)
	}

	return nil
}

// SendRequest sends a request and returns its Future.
//
// ctx is bound to the request: when it ends before the request settles, the
// request is cancelled locally and a Cancel is sent to the peer. A ctx that is
// already done yields a settled, cancelled Future and nothing is sent.
func (c *Controller) SendRequest(
	ctx context.Context,
	channel string,
	typ message.Type,
	data any,
) (*Future, error) {
	if !typ.IsRequestRange() {
		return nil, fmt.Errorf("send request %q with type %d: %w", channel, int(typ), errors.ErrReservedType)
	}

	payload, err := message.NewData(data)
	if err != nil {
		return nil, fmt.Errorf("send request %q: %w", channel, err)
	}

	uuid := c.lastUUID.Add(1)
	req := message.Message{ID: channel, Type: typ, Data: payload}.Correlated(uuid)

	wire, err := c.codec.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("send request %q: %w", channel, err)
	}

	future := newFuture(uuid, channel, func(cause error) { c.cancelLocally(uuid, cause) })

	if ctx.Err() != nil {
		c.log.Debug("Request context already done, not sending", "channel", channel, "uuid", uuid)
		future.onCanceled(false, context.Cause(ctx))

		return future, nil
	}

	pending := &pendingRequest{channel: channel, sink: future, sentAt: time.Now()}

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return nil, errors.ErrControllerStopped
	}

	c.outbound.register(uuid, pending)
	c.mu.Unlock()

	c.log.Debug("Sending request", "channel", channel, "uuid", uuid, "type", typ.String())

	// The write runs under baseCtx; ctx is bound once the request is out.
	if err := c.sender.SendMessage(c.baseCtx, wire); err != nil {
		c.mu.Lock()
		_, stillPending := c.outbound.take(uuid)
		c.mu.Unlock()

		if stillPending {
			return nil, fmt.Errorf("send request %q: %w", channel, err)
		}

		// Settled by a reply or a cancel while the write was failing.
		return future, nil
	}

	c.bindContext(ctx, uuid, pending)

	return future, nil
}

// Request sends a request and waits for its outcome.
func (c *Controller) Request(
	ctx context.Context,
	channel string,
	typ message.Type,
	data any,
) (message.Message, error) {
	future, err := c.SendRequest(ctx, channel, typ, data)
	if err != nil {
		return message.Message{}, err
	}

	return future.Await(ctx)
}

// Subscribe registers handler for structured messages on channel.
//
// Registering the same pointer handler twice on a channel returns the
// existing subscription. Function handlers are always added.
func (c *Controller) Subscribe(channel string, handler Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.registry.add(channel, handler, func(s *subscriber) {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.registry.remove(channel, s)
	})
}

// SubscribeFunc registers a function handler on channel.
func (c *Controller) SubscribeFunc(channel string, fn func(ctx context.Context, h *Handle) error) *Subscription {
	return c.Subscribe(channel, HandlerFunc(fn))
}

// SubscribePlain registers handler for wire strings without the prefix.
func (c *Controller) SubscribePlain(handler PlainHandler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.registry.addPlain(handler, func(s *plainSubscriber) {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.registry.removePlain(s)
	})
}

// Stats is a snapshot of the controller's tables.
type Stats struct {
	ID                 string `json:"id"`
	PendingRequests    int    `json:"pending_requests"`
	InFlightRequests   int    `json:"in_flight_requests"`
	Channels           int    `json:"channels"`
	Subscriptions      int    `json:"subscriptions"`
	PlainSubscriptions int    `json:"plain_subscriptions"`
	LastUUID           int64  `json:"last_uuid"`
	Closed             bool   `json:"closed"`
}

// Stats returns a snapshot of the controller's state.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels, subs := c.registry.counts()

	return Stats{
		ID:                 c.id,
		PendingRequests:    c.outbound.len(),
		InFlightRequests:   c.inbound.len(),
		Channels:           channels,
		Subscriptions:      subs,
		PlainSubscriptions: len(c.registry.plainSnapshot()),
		LastUUID:           c.lastUUID.Load(),
		Closed:             c.closed,
	}
}

// Close stops the controller. Pending requests settle as cancelled with
// errors.ErrControllerStopped and in-flight handles are closed. No messages
// are sent. Close is idempotent.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		pending := c.outbound.drain()
		handles := c.inbound.drain()
		c.mu.Unlock()

		c.log.Debug("Closing controller", "pending", len(pending), "in_flight", len(handles))

		for _, p := range pending {
			if p.stop != nil {
				p.stop()
			}

			p.sink.onCanceled(false, errors.ErrControllerStopped)
		}

		for _, h := range handles {
			h.abandon()
		}

		c.stopBase()
		close(c.done)
	})
}

// post encodes msg and hands it to the sender. ctx only gates the send; the
// write itself runs under the controller's lifetime.
func (c *Controller) post(ctx context.Context, msg message.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send %s on %q: %w", msg.Type, msg.ID, err)
	}

	wire, err := c.codec.Encode(msg)
	if err != nil {
		c.log.Error("Failed to encode message", "channel", msg.ID, "type", msg.Type.String(), "error", err)

		return err
	}

	if err := c.sender.SendMessage(c.baseCtx, wire); err != nil {
		if c.baseCtx.Err() != nil {
			c.log.Debug("Could not send message during shutdown", "channel", msg.ID, "error", err)
		} else {
			c.log.Error("Failed to send message", "channel", msg.ID, "type", msg.Type.String(), "error", err)
		}

		return fmt.Errorf("send %s on %q: %w", msg.Type, msg.ID, err)
	}

	return nil
}

func (c *Controller) releaseInbound(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inbound.remove(h.msg.CorrelationID(), h)
}
