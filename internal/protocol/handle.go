package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/wagiedev/unity-bridge-go/internal/errors"
	"github.com/wagiedev/unity-bridge-go/internal/message"
)

type handleState int

const (
	handleOpen handleState = iota
	handleResponded
	handleClosed
)

func (s handleState) String() string {
	switch s {
	case handleOpen:
		return "open"
	case handleResponded:
		return "responded"
	default:
		return "closed"
	}
}

// Handle wraps one delivered message. For requests it carries the reply
// operations and tracks the Open, Responded and Closed states; only one reply
// is ever sent.
//
// Unless the handler calls Defer, the controller closes the handle when every
// handler has returned. Closing a request that was never answered sends an
// empty Response, or Canceled if the peer asked to cancel.
type Handle struct {
	ctrl   *Controller
	msg    message.Message
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu       sync.Mutex
	state    handleState
	replied  bool
	canceled bool
	deferral *Deferral
}

func newHandle(c *Controller, msg message.Message) *Handle {
	ctx, cancel := context.WithCancelCause(c.baseCtx)

	return &Handle{
		ctrl:   c,
		msg:    msg,
		log:    c.log.With("channel", msg.ID, "uuid", msg.CorrelationID()),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Message returns the delivered message.
func (h *Handle) Message() message.Message {
	return h.msg
}

// Channel returns the channel the message was addressed to.
func (h *Handle) Channel() string {
	return h.msg.ID
}

// IsRequest reports whether the peer awaits a reply.
func (h *Handle) IsRequest() bool {
	return h.msg.IsRequest()
}

// Context is cancelled when the peer cancels the request or the handle closes.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// Canceled reports whether the peer asked to cancel this request.
func (h *Handle) Canceled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.canceled
}

// ResponseSent reports whether a reply has been sent.
func (h *Handle) ResponseSent() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.replied
}

// Closed reports whether the handle has closed.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state == handleClosed
}

// IsDeferred reports whether Defer was called.
func (h *Handle) IsDeferred() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.deferral != nil
}

// Defer keeps the handle open after the handler returns. The handle closes
// when the returned Deferral completes. Calling Defer again returns the same
// Deferral.
func (h *Handle) Defer() *Deferral {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.deferral == nil {
		h.deferral = &Deferral{h: h}
	}

	return h.deferral
}

// SendResponse replies with a Response carrying data.
func (h *Handle) SendResponse(data any) error {
	return h.reply(message.Response, data)
}

// SendError replies with an Error carrying err and the caller's location.
func (h *Handle) SendError(err error) error {
	payload := errors.NewErrorPayload(err)

	if _, file, line, ok := runtime.Caller(1); ok {
		payload.Caller = fmt.Sprintf("%s:%d", file, line)
	}

	return h.reply(message.Error, payload)
}

// SendCanceled replies with a Canceled notification.
func (h *Handle) SendCanceled() error {
	return h.reply(message.Canceled, nil)
}

func (h *Handle) reply(typ message.Type, data any) error {
	if !h.IsRequest() {
		return fmt.Errorf("reply %s on %q: %w", typ, h.msg.ID, errors.ErrNotRequest)
	}

	payload, err := message.NewData(data)
	if err != nil {
		return fmt.Errorf("reply %s on %q: %w", typ, h.msg.ID, err)
	}

	h.mu.Lock()

	if h.replied || h.state == handleClosed {
		state := h.state
		h.mu.Unlock()

		if h.ctrl.isClosed() {
			return errors.ErrControllerStopped
		}

		h.log.Warn("Dropping reply to a request that was already answered",
			"type", typ.String(),
			"state", state.String(),
		)

		return fmt.Errorf("reply %s on %q: %w", typ, h.msg.ID, errors.ErrDoubleResponse)
	}

	h.replied = true
	h.state = handleResponded
	h.mu.Unlock()

	reply := message.Message{ID: h.msg.ID, Type: typ, Data: payload}.Correlated(h.msg.CorrelationID())

	return h.ctrl.post(h.ctrl.baseCtx, reply)
}

// close finishes the handle, sending the automatic reply when a request was
// never answered.
func (h *Handle) close() {
	h.mu.Lock()

	if h.state == handleClosed {
		h.mu.Unlock()

		return
	}

	replied := h.replied
	canceled := h.canceled
	h.replied = true
	h.state = handleClosed
	h.mu.Unlock()

	if h.IsRequest() {
		h.ctrl.releaseInbound(h)
	}

	defer h.cancel(context.Canceled)

	if !h.IsRequest() || replied {
		return
	}

	typ := message.Response
	if canceled {
		typ = message.Canceled
	}

	h.log.Debug("Sending automatic reply on close", "type", typ.String())

	reply := message.Message{ID: h.msg.ID, Type: typ}.Correlated(h.msg.CorrelationID())
	if err := h.ctrl.post(h.ctrl.baseCtx, reply); err != nil {
		h.log.Debug("Could not send automatic reply", "error", err)
	}
}

// notifyCanceled records a Cancel from the peer. The handle stays open.
func (h *Handle) notifyCanceled() bool {
	h.mu.Lock()

	if h.state == handleClosed {
		h.mu.Unlock()

		return false
	}

	h.canceled = true
	h.mu.Unlock()

	h.cancel(errors.ErrRequestCanceled)

	return true
}

// abandon closes the handle without any wire traffic.
func (h *Handle) abandon() {
	h.mu.Lock()
	h.state = handleClosed
	h.mu.Unlock()

	h.cancel(errors.ErrControllerStopped)
}

// Deferral keeps a Handle open past its handler. Complete closes the handle
// and is safe to call more than once.
type Deferral struct {
	h    *Handle
	once sync.Once
}

// Handle returns the deferred handle.
func (d *Deferral) Handle() *Handle {
	return d.h
}

// Complete closes the handle.
func (d *Deferral) Complete() {
	d.once.Do(d.h.close)
}
