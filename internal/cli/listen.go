package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/wagiedev/unity-bridge-go/internal/bridge"
	"github.com/wagiedev/unity-bridge-go/internal/protocol"
)

// lineWriter serializes output lines from handlers.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = fmt.Fprintf(l.w, format, args...)
}

func newListenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "listen [channel...]",
		Short: "Print plain text and messages on the given channels until interrupted",
		RunE: func(cmd *cobra.Command, channels []string) error {
			out := &lineWriter{w: cmd.OutOrStdout()}
			ctx := cmd.Context()

			b, err := a.connect(ctx, func(b *bridge.Bridge) {
				b.SubscribePlain(func(text string) {
					out.printf("text %q\n", text)
				})

				for _, channel := range channels {
					b.SubscribeFunc(channel, func(_ context.Context, h *protocol.Handle) error {
						msg := h.Message()
						out.printf("%s %s uuid=%d data=%s\n", msg.ID, msg.Type, msg.CorrelationID(), string(msg.Data))

						return nil
					})
				}
			})
			if err != nil {
				return err
			}
			defer a.closeBridge(b)

			a.log.Info("Listening", "channels", channels)

			select {
			case <-ctx.Done():
				return nil
			case <-b.Done():
				return b.Err()
			}
		},
	}
}
