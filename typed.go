package unitybridge

import (
	"context"

	"github.com/wagiedev/unity-bridge-go/internal/message"
	"github.com/wagiedev/unity-bridge-go/internal/protocol"
)

// Request sends a request of type MessageTypeRequest and decodes the
// Response payload into a T.
func Request[T any](ctx context.Context, b Bridge, channel string, data any) (T, error) {
	var zero T

	resp, err := b.Request(ctx, channel, MessageTypeRequest, data)
	if err != nil {
		return zero, err
	}

	return message.DataAs[T](resp)
}

// HandleRequest adapts a typed function into a Handler. The payload is
// validated against the JSON schema inferred from Req; the returned value
// becomes the Response payload.
func HandleRequest[Req, Resp any](fn func(ctx context.Context, req Req) (Resp, error)) Handler {
	return protocol.HandleRequest(fn)
}

// DataAs decodes the payload of m into a T. An absent payload yields the
// zero T.
func DataAs[T any](m Message) (T, error) {
	return message.DataAs[T](m)
}
