// Package protocol implements correlated messaging between two peers that
// exchange opaque strings.
//
// Each side owns a Controller. The Controller encodes outgoing messages,
// decodes incoming wire strings handed to OnWireMessage, and routes them:
//
//   - Plain text goes to plain-text subscribers
//   - Response, Error and Canceled messages settle the matching Future
//   - Cancel messages flag the matching in-flight Handle
//   - Everything else is published to the channel's subscribers
//
// Requests are correlated by a per-controller integer id. An incoming request
// is answered exactly once: by a handler, by an automatic error when the
// handler fails, or by an automatic Response or Canceled when its Handle closes
// without a reply.
//
// Example usage:
//
//	ctrl := protocol.NewController(log, transport)
//	ctrl.Subscribe("echo", protocol.HandlerFunc(func(ctx context.Context, h *protocol.Handle) error {
//		return h.SendResponse(h.Message().Data)
//	}))
//
//	// Feed every string read from the transport.
//	for raw := range lines {
//		ctrl.OnWireMessage(raw)
//	}
//
//	// Issue a request and wait for the reply.
//	resp, err := ctrl.Request(ctx, "echo", message.Request, map[string]int{"v": 1})
package protocol
