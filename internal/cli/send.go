package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wagiedev/unity-bridge-go/internal/message"
)

// payloadFlag parses --data as JSON. An empty value means no payload.
func payloadFlag(raw string) (json.RawMessage, error) {
	if raw == "" {
		return nil, nil
	}

	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("--data is not valid JSON: %q", raw)
	}

	return json.RawMessage(raw), nil
}

func newSendCmd(a *app) *cobra.Command {
	var (
		data string
		typ  int
	)

	cmd := &cobra.Command{
		Use:   "send <channel>",
		Short: "Send a fire-and-forget message",
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

			if err := b.SendTyped(ctx, args[0], message.Type(typ), payload); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "sent %s message on %q\n", message.Type(typ), args[0])

			return err
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "JSON payload")
	cmd.Flags().IntVar(&typ, "type", int(message.Default), "message type (0 or at least 9)")

	return cmd
}
