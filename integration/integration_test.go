//go:build integration

package integration

import (
	"context"
	"errors"
	"os"
	"testing"

	unitybridge "github.com/wagiedev/unity-bridge-go"
)

// enginePath is the engine under test: BRIDGE_ENGINE_PATH, or bridgectl
// from PATH. Its echo subcommand answers requests with their payload.
func enginePath() string {
	if p := os.Getenv("BRIDGE_ENGINE_PATH"); p != "" {
		return p
	}

	return "bridgectl"
}

// skipIfEngineNotInstalled skips the test if the error indicates the engine
// binary is not found.
func skipIfEngineNotInstalled(t *testing.T, err error) {
	t.Helper()

	if _, ok := errors.AsType[*unitybridge.EngineNotFoundError](err); ok {
		t.Skip("engine binary not installed")
	}
}

// startEngine starts a bridge to "<engine> echo args...", skipping the test
// when the engine is missing.
func startEngine(t *testing.T, ctx context.Context, args []string, opts ...unitybridge.Option) unitybridge.Bridge {
	t.Helper()

	opts = append([]unitybridge.Option{
		unitybridge.WithEnginePath(enginePath()),
		unitybridge.WithEngineArgs(append([]string{"echo"}, args...)...),
	}, opts...)

	b := unitybridge.NewBridge(opts...)

	if err := b.Start(ctx); err != nil {
		_ = b.Close()

		skipIfEngineNotInstalled(t, err)
		t.Fatalf("Start failed: %v", err)
	}

	t.Cleanup(func() { _ = b.Close() })

	return b
}
