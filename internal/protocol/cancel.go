package protocol

import (
	"context"

	"github.com/wagiedev/unity-bridge-go/internal/errors"
	"github.com/wagiedev/unity-bridge-go/internal/message"
)

// bindContext cancels the request when ctx ends. The binding is stopped as
// soon as the request leaves the outbound table.
func (c *Controller) bindContext(ctx context.Context, uuid int64, p *pendingRequest) {
	if ctx.Done() == nil {
		return
	}

	stop := context.AfterFunc(ctx, func() {
		c.cancelLocally(uuid, context.Cause(ctx))
	})

	c.mu.Lock()

	if current, ok := c.outbound.lookup(uuid); ok && current == p {
		p.stop = stop
		c.mu.Unlock()

		return
	}

	c.mu.Unlock()
	stop()
}

// cancelLocally settles the request as cancelled, then asks the peer to stop.
// It reports false when the request had already settled.
func (c *Controller) cancelLocally(uuid int64, cause error) bool {
	c.mu.Lock()
	p, ok := c.outbound.take(uuid)
	c.mu.Unlock()

	if !ok {
		return false
	}

	if p.stop != nil {
		p.stop()
	}

	p.sink.onCanceled(false, cause)

	c.log.Debug("Request canceled locally", "channel", p.channel, "uuid", uuid, "cause", cause)

	cancel := message.Message{ID: p.channel, Type: message.Cancel}.Correlated(uuid)
	if err := c.post(c.baseCtx, cancel); err != nil {
		c.log.Debug("Could not send cancel", "uuid", uuid, "error", err)
	}

	return true
}

// handleCancel flags the in-flight handle the peer asked to cancel.
func (c *Controller) handleCancel(msg message.Message) {
	uuid := msg.CorrelationID()

	c.mu.Lock()
	h, ok := c.inbound.lookup(uuid)
	c.mu.Unlock()

	if !ok || !h.notifyCanceled() {
		c.log.Warn("Dropping cancel for unknown request",
			"channel", msg.ID,
			"error", &errors.UnknownCorrelationError{UUID: uuid, Type: int(msg.Type)},
		)

		return
	}

	c.log.Debug("Request canceled by peer", "channel", msg.ID, "uuid", uuid)
}
