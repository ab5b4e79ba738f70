package protocol

import (
	"context"
	stderrors "errors"

	"github.com/wagiedev/unity-bridge-go/internal/errors"
	"github.com/wagiedev/unity-bridge-go/internal/message"
)

// OnWireMessage routes one string received from the transport. It returns
// once every synchronous handler has returned; handlers that Defer keep
// their request open past that point.
func (c *Controller) OnWireMessage(raw string) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Recovered from panic while dispatching", "panic", r)
		}
	}()

	if c.isClosed() {
		c.log.Debug("Dropping message received after close")

		return
	}

	msg, structured, err := c.codec.Decode(raw)
	if err != nil {
		c.log.Warn("Dropping malformed message", "error", err)

		return
	}

	if !structured {
		c.publishPlain(raw)

		return
	}

	switch {
	case msg.IsRequestCompletion():
		c.resolve(msg)
	case msg.IsCancel():
		c.handleCancel(msg)
	default:
		c.deliver(msg)
	}
}

// resolve settles the outgoing request a completion refers to.
func (c *Controller) resolve(msg message.Message) {
	uuid := msg.CorrelationID()

	c.mu.Lock()
	p, ok := c.outbound.take(uuid)
	c.mu.Unlock()

	if !ok {
		c.log.Warn("Dropping completion for unknown request",
			"channel", msg.ID,
			"error", &errors.UnknownCorrelationError{UUID: uuid, Type: int(msg.Type)},
		)

		return
	}

	if p.stop != nil {
		p.stop()
	}

	c.log.Debug("Request completed", "channel", p.channel, "uuid", uuid, "type", msg.Type.String())

	switch msg.Type {
	case message.Response:
		p.sink.onResponse(msg)
	case message.Error:
		p.sink.onError(msg)
	case message.Canceled:
		p.sink.onCanceled(true, nil)
	}
}

// deliver publishes msg to the channel's subscribers and finishes the
// request it carries, if any.
func (c *Controller) deliver(msg message.Message) {
	h := newHandle(c, msg)

	c.mu.Lock()
	subs := c.registry.snapshot(msg.ID)

	if len(subs) > 0 && msg.IsRequest() {
		c.inbound.track(msg.CorrelationID(), h)
	}
	c.mu.Unlock()

	if len(subs) == 0 {
		if msg.IsRequest() {
			c.log.Warn("Request for unknown channel", "channel", msg.ID, "uuid", msg.CorrelationID())

			if err := h.reply(message.Error, errors.NewErrorPayload(&errors.UnknownChannelError{Channel: msg.ID})); err != nil {
				c.log.Debug("Could not report unknown channel", "error", err)
			}
		} else {
			c.log.Debug("No subscribers for message", "channel", msg.ID, "type", msg.Type.String())
		}

		h.close()

		return
	}

	var (
		fault error
		// set when the handler that faulted is the one that deferred
		deferredFault bool
	)

	for _, s := range subs {
		wasDeferred := h.IsDeferred()

		err := c.invoke(s.handler, h)
		if err == nil {
			continue
		}

		if fault == nil {
			fault = err
		}

		if !wasDeferred && h.IsDeferred() {
			deferredFault = true
		}
	}

	if fault != nil && h.IsRequest() && (!h.IsDeferred() || deferredFault) && !h.ResponseSent() {
		if err := h.reply(message.Error, errors.NewErrorPayload(fault)); err != nil {
			c.log.Debug("Could not report handler fault", "error", err)
		}
	}

	switch {
	case !h.IsDeferred():
		h.close()
	case deferredFault:
		c.log.Debug("Completing deferral abandoned by a faulting handler", "channel", msg.ID, "uuid", msg.CorrelationID())
		h.Defer().Complete()
	}
}

// invoke runs one handler, converting a returned error or a panic into a
// *errors.HandlerFaultError. A handler that gives up because the peer
// cancelled is not at fault.
func (c *Controller) invoke(handler Handler, h *Handle) (fault error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Handler panicked", "channel", h.Channel(), "uuid", h.msg.CorrelationID(), "panic", r)
			fault = &errors.HandlerFaultError{Channel: h.Channel(), Panic: r}
		}
	}()

	err := handler.HandleMessage(h.Context(), h)
	if err == nil {
		return nil
	}

	if h.Canceled() && (stderrors.Is(err, context.Canceled) || stderrors.Is(err, errors.ErrRequestCanceled)) {
		c.log.Debug("Handler stopped after cancel", "channel", h.Channel(), "uuid", h.msg.CorrelationID())

		return nil
	}

	c.log.Warn("Handler returned error", "channel", h.Channel(), "uuid", h.msg.CorrelationID(), "error", err)

	return &errors.HandlerFaultError{Channel: h.Channel(), Err: err}
}

func (c *Controller) publishPlain(raw string) {
	c.mu.Lock()
	subs := c.registry.plainSnapshot()
	c.mu.Unlock()

	if len(subs) == 0 {
		c.log.Debug("No subscribers for plain text", "length", len(raw))

		return
	}

	for _, s := range subs {
		c.invokePlain(s.handler, raw)
	}
}

func (c *Controller) invokePlain(handler PlainHandler, raw string) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Plain text handler panicked", "panic", r)
		}
	}()

	handler(raw)
}
