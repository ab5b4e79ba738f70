package unitybridge

import (
	"context"
	"fmt"
)

// WithBridge manages bridge lifecycle with automatic cleanup.
//
// It creates a bridge, starts it with opts, runs fn and closes the bridge
// when fn returns. A Close failure is logged and does not override the
// callback's error.
//
// Subscriptions that must see the engine's first messages belong in setup,
// which runs before Start:
//
//	err := unitybridge.WithBridge(ctx, func(b unitybridge.Bridge) error {
//	    _, err := b.Request(ctx, "echo", unitybridge.MessageTypeRequest, "hi")
//	    return err
//	},
//	    unitybridge.WithEnginePath("/opt/game/engine"),
//	)
func WithBridge(ctx context.Context, fn func(Bridge) error, opts ...Option) error {
	return WithBridgeSetup(ctx, nil, fn, opts...)
}

// WithBridgeSetup is WithBridge with a setup callback that runs on the
// unstarted bridge.
func WithBridgeSetup(ctx context.Context, setup func(Bridge), fn func(Bridge) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	b := newBridgeImpl(options)

	if setup != nil {
		setup(b)
	}

	if err := b.Start(ctx); err != nil {
		_ = b.Close()

		return fmt.Errorf("failed to start bridge: %w", err)
	}

	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			log.Warn("failed to close bridge", "error", closeErr)
		}
	}()

	return fn(b)
}
