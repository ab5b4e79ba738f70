package wsconn

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/unity-bridge-go/internal/errors"
	"github.com/wagiedev/unity-bridge-go/internal/message"
	"github.com/wagiedev/unity-bridge-go/internal/protocol"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// echoServer returns a server that writes every text frame back to the sender.
func echoServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()

	handler := NewHandler(slog.Default(), func(ctx context.Context, conn *Conn) {
		msgs, errs := conn.ReadMessages(ctx)

		for msg := range msgs {
			if err := conn.SendMessage(ctx, msg); err != nil {
				return
			}
		}

		<-errs
	}, opts...)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return srv
}

func TestConn_EchoRoundTrip(t *testing.T) {
	srv := echoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := Dial(slog.Default(), wsURL(srv))
	require.False(t, conn.IsReady())
	require.NoError(t, conn.Start(ctx))
	require.True(t, conn.IsReady())

	defer conn.Close()

	msgs, _ := conn.ReadMessages(ctx)

	for _, text := range []string{"hello", `@UnityMessage@{"id":"a","type":0}`, "line\nbreak"} {
		require.NoError(t, conn.SendMessage(ctx, text))

		select {
		case got := <-msgs:
			require.Equal(t, text, got)
		case <-ctx.Done():
			t.Fatal("timed out waiting for echo")
		}
	}
}

func TestConn_StartIsIdempotent(t *testing.T) {
	srv := echoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := Dial(slog.Default(), wsURL(srv))
	require.NoError(t, conn.Start(ctx))
	require.NoError(t, conn.Start(ctx))
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	require.ErrorIs(t, conn.Start(ctx), errors.ErrTransportNotConnected)
	require.False(t, conn.IsReady())
}

func TestConn_DialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := Dial(slog.Default(), "ws://127.0.0.1:1/none")
	err := conn.Start(ctx)
	require.Error(t, err)

	_, isConn := stderrors.AsType[*errors.ConnectionError](err)
	require.True(t, isConn, "expected ConnectionError, got %T", err)
}

func TestConn_NotStarted(t *testing.T) {
	conn := Dial(slog.Default(), "ws://127.0.0.1:1/none")

	err := conn.SendMessage(context.Background(), "x")
	require.ErrorIs(t, err, errors.ErrTransportNotConnected)

	msgs, errs := conn.ReadMessages(context.Background())
	_, open := <-msgs
	require.False(t, open)
	require.ErrorIs(t, <-errs, errors.ErrTransportNotConnected)
}

func TestConn_SendAfterClose(t *testing.T) {
	srv := echoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := Dial(slog.Default(), wsURL(srv))
	require.NoError(t, conn.Start(ctx))
	require.NoError(t, conn.EndInput())

	require.ErrorIs(t, conn.SendMessage(ctx, "late"), errors.ErrStdinClosed)
}

func TestConn_PeerCloseEndsReadingQuietly(t *testing.T) {
	handler := NewHandler(slog.Default(), func(ctx context.Context, conn *Conn) {
		_ = conn.SendMessage(ctx, "bye")
	})

	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := Dial(slog.Default(), wsURL(srv))
	require.NoError(t, conn.Start(ctx))

	defer conn.Close()

	msgs, errs := conn.ReadMessages(ctx)

	var got []string
	for msg := range msgs {
		got = append(got, msg)
	}

	require.Equal(t, []string{"bye"}, got)
	require.NoError(t, <-errs)
}

func TestHandler_ReadLimit(t *testing.T) {
	serverErr := make(chan error, 1)

	handler := NewHandler(slog.Default(), func(ctx context.Context, conn *Conn) {
		msgs, errs := conn.ReadMessages(ctx)
		for range msgs {
		}

		serverErr <- <-errs
	}, WithReadLimit(16))

	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := Dial(slog.Default(), wsURL(srv))
	require.NoError(t, conn.Start(ctx))

	defer conn.Close()

	_ = conn.SendMessage(ctx, strings.Repeat("x", 1024))

	select {
	case err := <-serverErr:
		require.Error(t, err)

		_, isConn := stderrors.AsType[*errors.ConnectionError](err)
		assert.True(t, isConn, "expected ConnectionError, got %T", err)
	case <-ctx.Done():
		t.Fatal("server never saw the oversized frame")
	}
}

// Two controllers talking over a real websocket.
func TestConn_ProtocolRequestRoundTrip(t *testing.T) {
	handler := NewHandler(slog.Default(), func(ctx context.Context, conn *Conn) {
		engine := protocol.NewController(slog.Default(), conn)
		defer engine.Close()

		engine.SubscribeFunc("echo", func(_ context.Context, h *protocol.Handle) error {
			return h.SendResponse(h.Message().Data)
		})

		msgs, errs := conn.ReadMessages(ctx)
		for msg := range msgs {
			engine.OnWireMessage(msg)
		}

		<-errs
	}, WithPingInterval(50*time.Millisecond))

	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := Dial(slog.Default(), wsURL(srv), WithPingInterval(50*time.Millisecond))
	require.NoError(t, conn.Start(ctx))

	defer conn.Close()

	host := protocol.NewController(slog.Default(), conn)
	defer host.Close()

	msgs, _ := conn.ReadMessages(ctx)

	go func() {
		for msg := range msgs {
			host.OnWireMessage(msg)
		}
	}()

	resp, err := host.Request(ctx, "echo", message.Request, map[string]int{"v": 7})
	require.NoError(t, err)
	require.Equal(t, message.Response, resp.Type)
	require.JSONEq(t, `{"v":7}`, string(resp.Data))
}
