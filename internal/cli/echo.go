package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wagiedev/unity-bridge-go/internal/bridge"
	"github.com/wagiedev/unity-bridge-go/internal/engine"
	"github.com/wagiedev/unity-bridge-go/internal/protocol"
	"github.com/wagiedev/unity-bridge-go/internal/subprocess"
)

// DefaultEchoChannel is the channel the echo peer answers on.
const DefaultEchoChannel = "echo"

// echoHandler answers every request with its own payload after delay.
// A request cancelled while waiting is answered with Canceled.
func echoHandler(delay time.Duration) protocol.HandlerFunc {
	return func(_ context.Context, h *protocol.Handle) error {
		if !h.IsRequest() {
			return nil
		}

		data := h.Message().Data

		if delay <= 0 {
			return h.SendResponse(data)
		}

		d := h.Defer()

		go func() {
			defer d.Complete()

			timer := time.NewTimer(delay)
			defer timer.Stop()

			select {
			case <-timer.C:
				_ = h.SendResponse(data)
			case <-h.Context().Done():
				// Complete answers a cancelled request with Canceled.
			}
		}()

		return nil
	}
}

func newEchoCmd(a *app) *cobra.Command {
	var (
		channels []string
		delay    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Act as an engine on stdin/stdout, answering requests with their payload",
		Long: "Act as an engine on stdin/stdout. Requests on the echo channels are answered\n" +
			"with their own payload. Runs until stdin reaches end of input.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := a.options()
			if opts.Prefix == "" {
				// Set by the host when it spawns us.
				opts.Prefix = os.Getenv(engine.PrefixEnv)
			}

			opts.Transport = subprocess.NewStdioTransport(a.log, cmd.InOrStdin(), cmd.OutOrStdout())

			b := bridge.New(opts)
			defer a.closeBridge(b)

			for _, channel := range channels {
				b.Subscribe(channel, echoHandler(delay))
			}

			ctx := cmd.Context()

			if err := b.Start(ctx); err != nil {
				return err
			}

			a.log.Debug("Echo peer ready", "channels", channels, "delay", delay)

			select {
			case <-ctx.Done():
				return nil
			case <-b.Done():
				return b.Err()
			}
		},
	}

	cmd.Flags().StringSliceVar(&channels, "channel", []string{DefaultEchoChannel}, "channels to answer on")
	cmd.Flags().DurationVar(&delay, "delay", 0, "wait this long before answering")

	return cmd
}
