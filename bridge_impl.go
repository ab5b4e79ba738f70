package unitybridge

import (
	"context"

	"github.com/wagiedev/unity-bridge-go/internal/bridge"
)

// bridgeWrapper adapts the internal bridge to the public interface.
type bridgeWrapper struct {
	impl *bridge.Bridge
}

// Compile-time check that *bridgeWrapper implements the Bridge interface.
var _ Bridge = (*bridgeWrapper)(nil)

func newBridgeImpl(options *Options) Bridge {
	return &bridgeWrapper{impl: bridge.New(options)}
}

func (b *bridgeWrapper) Start(ctx context.Context) error {
	return b.impl.Start(ctx)
}

func (b *bridgeWrapper) Send(ctx context.Context, channel string, data any) error {
	return b.impl.Send(ctx, channel, data)
}

func (b *bridgeWrapper) SendTyped(ctx context.Context, channel string, typ MessageType, data any) error {
	return b.impl.SendTyped(ctx, channel, typ, data)
}

func (b *bridgeWrapper) SendText(ctx context.Context, text string) error {
	return b.impl.SendText(ctx, text)
}

func (b *bridgeWrapper) SendRequest(ctx context.Context, channel string, typ MessageType, data any) (*Future, error) {
	return b.impl.SendRequest(ctx, channel, typ, data)
}

func (b *bridgeWrapper) Request(ctx context.Context, channel string, typ MessageType, data any) (Message, error) {
	return b.impl.Request(ctx, channel, typ, data)
}

func (b *bridgeWrapper) Subscribe(channel string, handler Handler) *Subscription {
	return b.impl.Subscribe(channel, handler)
}

func (b *bridgeWrapper) SubscribeFunc(
	channel string,
	fn func(ctx context.Context, h *Handle) error,
) *Subscription {
	return b.impl.SubscribeFunc(channel, fn)
}

func (b *bridgeWrapper) SubscribePlain(handler PlainHandler) *Subscription {
	return b.impl.SubscribePlain(handler)
}

func (b *bridgeWrapper) Stats() Stats {
	return b.impl.Stats()
}

func (b *bridgeWrapper) IsReady() bool {
	return b.impl.IsReady()
}

func (b *bridgeWrapper) Done() <-chan struct{} {
	return b.impl.Done()
}

func (b *bridgeWrapper) Err() error {
	return b.impl.Err()
}

func (b *bridgeWrapper) Close() error {
	return b.impl.Close()
}
