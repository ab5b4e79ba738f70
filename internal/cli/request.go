package cli

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/wagiedev/unity-bridge-go/internal/message"
)

type requestOutput struct {
	Channel string          `json:"id"`
	Type    int             `json:"type"`
	UUID    int64           `json:"uuid"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func newRequestCmd(a *app) *cobra.Command {
	var (
		data    string
		typ     int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "request <channel>",
		Short: "Send a request and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := payloadFlag(data)
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			b, err := a.connect(ctx, nil)
			if err != nil {
				return err
			}
			defer a.closeBridge(b)

			if timeout > 0 {
				var cancel context.CancelFunc

				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			resp, err := b.Request(ctx, args[0], message.Type(typ), payload)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			return enc.Encode(requestOutput{
				Channel: resp.ID,
				Type:    int(resp.Type),
				UUID:    resp.CorrelationID(),
				Data:    resp.Data,
			})
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "JSON payload")
	cmd.Flags().IntVar(&typ, "type", int(message.Request), "request type (at least 9)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "cancel the request after this long (default from request.timeout)")

	return cmd
}
