package protocol

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/unity-bridge-go/internal/errors"
	"github.com/wagiedev/unity-bridge-go/internal/message"
)

func TestCancel_ContextCancelSendsCancel(t *testing.T) {
	sender := newRecordingSender()
	ctrl := NewController(slog.Default(), sender)

	defer ctrl.Close()

	ctx, cancel := context.WithCancel(context.Background())

	future, err := ctrl.SendRequest(ctx, "load", message.Request, nil)
	require.NoError(t, err)

	cancel()

	select {
	case <-future.Done():
	case <-time.After(time.Second):
		t.Fatal("future did not settle after context cancel")
	}

	_, err = future.Result()

	canceled, ok := stderrors.AsType[*errors.CanceledError](err)
	require.True(t, ok)
	assert.False(t, canceled.Remote)
	assert.ErrorIs(t, err, context.Canceled)

	require.Eventually(t, func() bool {
		return sender.count() == 2
	}, time.Second, 5*time.Millisecond)

	msgs := sender.messages(t)
	assert.True(t, msgs[0].IsRequest())
	assert.True(t, msgs[1].IsCancel())
	assert.Equal(t, future.UUID(), msgs[1].CorrelationID())
	assert.Equal(t, "load", msgs[1].ID)
	assert.Zero(t, ctrl.Stats().PendingRequests)
}

func TestCancel_ContextCauseIsPreserved(t *testing.T) {
	sender := newRecordingSender()
	ctrl := NewController(slog.Default(), sender)

	defer ctrl.Close()

	cause := stderrors.New("scene unloaded")
	ctx, cancel := context.WithCancelCause(context.Background())

	future, err := ctrl.SendRequest(ctx, "load", message.Request, nil)
	require.NoError(t, err)

	cancel(cause)
	<-future.Done()

	_, err = future.Result()
	require.ErrorIs(t, err, cause)
}

func TestCancel_AlreadyDoneContextSendsNothing(t *testing.T) {
	sender := newRecordingSender()
	ctrl := NewController(slog.Default(), sender)

	defer ctrl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	future, err := ctrl.SendRequest(ctx, "load", message.Request, nil)
	require.NoError(t, err)
	require.True(t, future.Settled())

	_, err = future.Result()
	require.ErrorIs(t, err, errors.ErrRequestCanceled)
	assert.Zero(t, sender.count())
	assert.Zero(t, ctrl.Stats().PendingRequests)
}

func TestCancel_FutureCancel(t *testing.T) {
	sender := newRecordingSender()
	ctrl := NewController(slog.Default(), sender)

	defer ctrl.Close()

	future, err := ctrl.SendRequest(context.Background(), "load", message.Request, nil)
	require.NoError(t, err)

	future.Cancel()
	future.Cancel()

	require.True(t, future.Settled())

	msgs := sender.messages(t)
	require.Len(t, msgs, 2, "one request and exactly one cancel")
	assert.True(t, msgs[1].IsCancel())
}

func TestCancel_LateResponseAfterCancel(t *testing.T) {
	sender := newRecordingSender()
	ctrl := NewController(slog.Default(), sender)

	defer ctrl.Close()

	future, err := ctrl.SendRequest(context.Background(), "load", message.Request, nil)
	require.NoError(t, err)

	future.Cancel()
	ctrl.OnWireMessage(wire(t, completionMsg("load", message.Response, future.UUID())))
	ctrl.OnWireMessage(wire(t, completionMsg("load", message.Canceled, future.UUID())))

	_, err = future.Result()

	canceled, ok := stderrors.AsType[*errors.CanceledError](err)
	require.True(t, ok)
	assert.False(t, canceled.Remote, "first outcome wins")
}

func TestCancel_ResponseBeforeCancelWins(t *testing.T) {
	sender := newRecordingSender()
	ctrl := NewController(slog.Default(), sender)

	defer ctrl.Close()

	future, err := ctrl.SendRequest(context.Background(), "load", message.Request, nil)
	require.NoError(t, err)

	ctrl.OnWireMessage(wire(t, completionMsg("load", message.Response, future.UUID())))
	future.Cancel()

	_, err = future.Result()
	require.NoError(t, err)
	assert.Len(t, sender.raw(), 1, "no cancel for a settled request")
}

func TestCancel_RemoteCanceled(t *testing.T) {
	unity, host := newLoopback(t)

	host.SubscribeFunc("load", func(_ context.Context, h *Handle) error {
		return h.SendCanceled()
	})

	_, err := unity.Request(context.Background(), "load", message.Request, nil)

	canceled, ok := stderrors.AsType[*errors.CanceledError](err)
	require.True(t, ok)
	assert.True(t, canceled.Remote)
}

func TestCancel_InboundCancelFlagsDeferredHandle(t *testing.T) {
	sender := newRecordingSender()
	ctrl := NewController(slog.Default(), sender)

	defer ctrl.Close()

	var d *Deferral

	ctrl.SubscribeFunc("load", func(_ context.Context, h *Handle) error {
		d = h.Defer()

		return nil
	})

	ctrl.OnWireMessage(wire(t, requestMsg("load", 7, "")))
	require.NotNil(t, d)

	h := d.Handle()
	assert.False(t, h.Canceled())

	ctrl.OnWireMessage(wire(t, completionMsg("load", message.Cancel, 7)))

	assert.True(t, h.Canceled())
	assert.ErrorIs(t, context.Cause(h.Context()), errors.ErrRequestCanceled)
	assert.Equal(t, 1, ctrl.Stats().InFlightRequests, "cancel never removes the handle")
	assert.Zero(t, sender.count())

	d.Complete()

	msgs := sender.messages(t)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsCanceled())
	assert.Equal(t, int64(7), msgs[0].CorrelationID())
	assert.Zero(t, ctrl.Stats().InFlightRequests)
}

func TestCancel_HandlerMayStillRespondAfterCancel(t *testing.T) {
	sender := newRecordingSender()
	ctrl := NewController(slog.Default(), sender)

	defer ctrl.Close()

	var d *Deferral

	ctrl.SubscribeFunc("load", func(_ context.Context, h *Handle) error {
		d = h.Defer()

		return nil
	})

	ctrl.OnWireMessage(wire(t, requestMsg("load", 7, "")))
	ctrl.OnWireMessage(wire(t, completionMsg("load", message.Cancel, 7)))

	require.NoError(t, d.Handle().SendResponse("finished anyway"))
	d.Complete()

	msgs := sender.messages(t)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsResponse())
}

func TestCancel_SynchronousHandlerObservesContext(t *testing.T) {
	sender := newRecordingSender()
	ctrl := NewController(slog.Default(), sender)

	defer ctrl.Close()

	ctrl.SubscribeFunc("load", func(ctx context.Context, _ *Handle) error {
		<-ctx.Done()

		return ctx.Err()
	})

	done := make(chan struct{})

	go func() {
		defer close(done)

		ctrl.OnWireMessage(wire(t, requestMsg("load", 3, "")))
	}()

	require.Eventually(t, func() bool {
		return ctrl.Stats().InFlightRequests == 1
	}, time.Second, time.Millisecond)

	ctrl.OnWireMessage(wire(t, completionMsg("load", message.Cancel, 3)))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not observe cancellation")
	}

	msgs := sender.messages(t)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsCanceled(), "a handler stopping on cancel is not a fault")
}

func TestCancel_CancelAfterCompletionIsIgnored(t *testing.T) {
	sender := newRecordingSender()
	ctrl := NewController(slog.Default(), sender)

	defer ctrl.Close()

	ctrl.SubscribeFunc("load", func(context.Context, *Handle) error { return nil })

	ctrl.OnWireMessage(wire(t, requestMsg("load", 1, "")))
	ctrl.OnWireMessage(wire(t, completionMsg("load", message.Cancel, 1)))

	msgs := sender.messages(t)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsResponse())
}

func TestCancel_AwaitTimeoutPropagatesToPeer(t *testing.T) {
	unity, host := newLoopback(t)

	handles := make(chan *Handle, 1)

	host.SubscribeFunc("load", func(_ context.Context, h *Handle) error {
		h.Defer()
		handles <- h

		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := unity.Request(ctx, "load", message.Request, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, errors.ErrRequestCanceled)

	h := <-handles

	require.Eventually(t, h.Canceled, time.Second, time.Millisecond)

	h.Defer().Complete()
	assert.Zero(t, host.Stats().InFlightRequests)
	assert.Zero(t, unity.Stats().PendingRequests)
}

func TestCancel_ResolveRace(t *testing.T) {
	for range 100 {
		sender := newRecordingSender()
		ctrl := NewController(slog.Default(), sender)

		future, err := ctrl.SendRequest(context.Background(), "load", message.Request, nil)
		require.NoError(t, err)

		response := wire(t, completionMsg("load", message.Response, future.UUID()))

		var wg sync.WaitGroup

		wg.Go(future.Cancel)
		wg.Go(func() { ctrl.OnWireMessage(response) })
		wg.Wait()

		require.True(t, future.Settled())

		msg, err := future.Result()
		if err != nil {
			require.ErrorIs(t, err, errors.ErrRequestCanceled)
			require.Len(t, sender.raw(), 2, "cancel sent once")
		} else {
			require.True(t, msg.IsResponse())
			require.Len(t, sender.raw(), 1, "no cancel after response")
		}

		require.Zero(t, ctrl.Stats().PendingRequests)
		ctrl.Close()
	}
}

// fragileSender mimics a stdin transport: a write abandoned because its context
// ended leaves the pipe closed for good.
type fragileSender struct {
	delay time.Duration

	mu     sync.Mutex
	broken bool
	sent   []string
}

func (s *fragileSender) SendMessage(ctx context.Context, msg string) error {
	s.mu.Lock()
	broken := s.broken
	s.mu.Unlock()

	if broken {
		return errors.ErrStdinClosed
	}

	select {
	case <-ctx.Done():
		s.mu.Lock()
		s.broken = true
		s.mu.Unlock()

		return ctx.Err()
	case <-time.After(s.delay):
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, msg)

	return nil
}

func (s *fragileSender) types(t *testing.T) []message.Type {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]message.Type, 0, len(s.sent))

	for _, raw := range s.sent {
		msg, ok, err := message.Decode(raw)
		require.NoError(t, err)
		require.True(t, ok)

		result = append(result, msg.Type)
	}

	return result
}

func (s *fragileSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sent)
}

func TestCancel_ContextEndingMidWriteKeepsTransportUsable(t *testing.T) {
	sender := &fragileSender{delay: 50 * time.Millisecond}
	ctrl := NewController(slog.Default(), sender)
	t.Cleanup(ctrl.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	future, err := ctrl.SendRequest(ctx, "load", message.Request, nil)
	require.NoError(t, err)

	_, err = future.Await(context.Background())
	require.ErrorIs(t, err, errors.ErrRequestCanceled)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, ctrl.Send(context.Background(), "ping", nil))

	require.Eventually(t, func() bool { return sender.count() == 3 }, time.Second, time.Millisecond)
	assert.ElementsMatch(t,
		[]message.Type{message.Request, message.Cancel, message.Default},
		sender.types(t),
	)
	assert.Zero(t, ctrl.Stats().PendingRequests)
}

func TestCancel_DoneContextIsNotWritten(t *testing.T) {
	sender := newRecordingSender()
	ctrl := NewController(slog.Default(), sender)
	t.Cleanup(ctrl.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, ctrl.Send(ctx, "ping", nil), context.Canceled)
	require.ErrorIs(t, ctrl.SendText(ctx, "hello"), context.Canceled)
	assert.Zero(t, sender.count())
}
