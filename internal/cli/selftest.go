package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/wagiedev/unity-bridge-go/internal/bridge"
	"github.com/wagiedev/unity-bridge-go/internal/config"
	"github.com/wagiedev/unity-bridge-go/internal/errors"
	"github.com/wagiedev/unity-bridge-go/internal/message"
	"github.com/wagiedev/unity-bridge-go/internal/pipe"
)

// selftestCheck is one scenario run against an in-process echo peer.
type selftestCheck struct {
	name string
	run  func(ctx context.Context, host *bridge.Bridge) error
}

var selftestChecks = []selftestCheck{
	{name: "request round trip", run: checkRoundTrip},
	{name: "request cancellation", run: checkCancellation},
	{name: "unknown channel", run: checkUnknownChannel},
	{name: "plain text passthrough", run: checkPlainText},
}

func newSelftestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Run protocol checks between two in-process bridges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			log := slog.New(slog.DiscardHandler)
			if a.verbose {
				log = a.log
			}

			host, engine, err := startPair(ctx, log)
			if err != nil {
				return err
			}

			defer a.closeBridge(engine)
			defer a.closeBridge(host)

			out := cmd.OutOrStdout()
			failed := 0

			for _, check := range selftestChecks {
				checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				err := check.run(checkCtx, host)

				cancel()

				if err != nil {
					failed++

					_, _ = fmt.Fprintf(out, "FAIL %s: %v\n", check.name, err)

					continue
				}

				_, _ = fmt.Fprintf(out, "PASS %s\n", check.name)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(selftestChecks))
			}

			return nil
		},
	}
}

// startPair connects a host bridge to an echo engine over an in-memory pipe.
func startPair(ctx context.Context, log *slog.Logger) (host, engine *bridge.Bridge, err error) {
	hostEnd, engineEnd := pipe.Pair(pipe.WithLogger(log))

	engine = bridge.New(&config.Options{Logger: log.With("peer", "engine"), Transport: engineEnd})
	engine.Subscribe(DefaultEchoChannel, echoHandler(0))
	engine.Subscribe("slow", echoHandler(time.Minute))
	engine.SubscribePlain(func(text string) {
		_ = engine.SendText(context.Background(), "ack: "+text)
	})

	host = bridge.New(&config.Options{Logger: log.With("peer", "host"), Transport: hostEnd})

	if err := engine.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("start engine: %w", err)
	}

	if err := host.Start(ctx); err != nil {
		_ = engine.Close()

		return nil, nil, fmt.Errorf("start host: %w", err)
	}

	return host, engine, nil
}

func checkRoundTrip(ctx context.Context, host *bridge.Bridge) error {
	resp, err := host.Request(ctx, DefaultEchoChannel, message.Request, map[string]string{"ping": "pong"})
	if err != nil {
		return err
	}

	got, err := message.DataAs[map[string]string](resp)
	if err != nil {
		return err
	}

	if got["ping"] != "pong" {
		return fmt.Errorf("unexpected echo payload %s", string(resp.Data))
	}

	return nil
}

func checkCancellation(ctx context.Context, host *bridge.Bridge) error {
	reqCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err := host.Request(reqCtx, "slow", message.Request, nil)
	if err == nil {
		return stderrors.New("slow request was answered instead of cancelled")
	}

	if !stderrors.Is(err, errors.ErrRequestCanceled) {
		return fmt.Errorf("want a cancelled request, got %w", err)
	}

	return nil
}

func checkUnknownChannel(ctx context.Context, host *bridge.Bridge) error {
	_, err := host.Request(ctx, "no-such-channel", message.Request, nil)

	reqErr, ok := stderrors.AsType[*errors.RequestError](err)
	if !ok {
		return fmt.Errorf("want a request error, got %v", err)
	}

	payload, _ := reqErr.Payload()
	if payload.Type != "UnknownChannelError" {
		return fmt.Errorf("want UnknownChannelError, got %q", payload.Type)
	}

	return nil
}

func checkPlainText(ctx context.Context, host *bridge.Bridge) error {
	acks := make(chan string, 1)

	sub := host.SubscribePlain(func(text string) {
		select {
		case acks <- text:
		default:
		}
	})
	defer sub.Unsubscribe()

	if err := host.SendText(ctx, "hello"); err != nil {
		return err
	}

	select {
	case text := <-acks:
		if text != "ack: hello" {
			return fmt.Errorf("unexpected reply %q", text)
		}

		return nil
	case <-ctx.Done():
		return fmt.Errorf("no reply to plain text: %w", ctx.Err())
	}
}
