package subprocess

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/unity-bridge-go/internal/errors"
)

func TestStdioTransport_ReadAndWrite(t *testing.T) {
	input := "\"@UnityMessage@{\\\"id\\\":\\\"a\\\",\\\"type\\\":0}\"\n\nplain log line\n\"multi\\nline\"\n"

	var out bytes.Buffer

	tr := NewStdioTransport(slog.Default(), strings.NewReader(input), &out)
	require.NoError(t, tr.Start(context.Background()))
	require.True(t, tr.IsReady())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, errs := tr.ReadMessages(ctx)

	var got []string
	for msg := range msgs {
		got = append(got, msg)
	}

	require.NoError(t, <-errs)
	require.Equal(t, []string{`@UnityMessage@{"id":"a","type":0}`, "plain log line", "multi\nline"}, got)

	require.NoError(t, tr.SendMessage(ctx, "a<b>\nc"))
	require.Equal(t, "\"a<b>\\nc\"\n", out.String())
}

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true

	return nil
}

func TestStdioTransport_Lifecycle(t *testing.T) {
	w := &closeRecorder{}
	tr := NewStdioTransport(slog.Default(), strings.NewReader(""), w)

	require.ErrorIs(t, tr.SendMessage(context.Background(), "x"), errors.ErrTransportNotConnected)

	require.NoError(t, tr.Start(context.Background()))
	require.NoError(t, tr.EndInput())
	require.True(t, w.closed)
	require.False(t, tr.IsReady())
	require.ErrorIs(t, tr.SendMessage(context.Background(), "x"), errors.ErrStdinClosed)

	require.NoError(t, tr.Close())
	require.ErrorIs(t, tr.Start(context.Background()), errors.ErrTransportNotConnected)
}

func TestStdioTransport_CancelledContext(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	tr := NewStdioTransport(slog.Default(), r, io.Discard)
	require.NoError(t, tr.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, tr.SendMessage(ctx, "x"), context.Canceled)
}

// A host-side EngineTransport and an engine-side StdioTransport agree on
// framing.
func TestStdioTransport_MatchesEngineFraming(t *testing.T) {
	line, err := encodeLine("@UnityMessage@{\"id\":\"echo\",\"type\":9,\"uuid\":1}")
	require.NoError(t, err)

	tr := NewStdioTransport(slog.Default(), bytes.NewReader(line), io.Discard)
	require.NoError(t, tr.Start(context.Background()))

	msgs, errs := tr.ReadMessages(context.Background())
	require.Equal(t, "@UnityMessage@{\"id\":\"echo\",\"type\":9,\"uuid\":1}", <-msgs)

	for range msgs {
	}

	require.NoError(t, <-errs)
}
