package protocol

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/unity-bridge-go/internal/errors"
	"github.com/wagiedev/unity-bridge-go/internal/message"
)

func TestFuture_SettlesOnce(t *testing.T) {
	cancels := 0
	f := newFuture(3, "echo", func(error) { cancels++ })

	assert.Equal(t, int64(3), f.UUID())
	assert.Equal(t, "echo", f.Channel())
	assert.False(t, f.Settled())

	_, err := f.Result()
	require.ErrorIs(t, err, errors.ErrRequestPending)

	f.onResponse(completionMsg("echo", message.Response, 3))
	f.onCanceled(true, nil)

	require.True(t, f.Settled())

	msg, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, message.Response, msg.Type)

	f.Cancel()
	assert.Equal(t, 1, cancels, "Cancel delegates to the controller, which ignores settled requests")
}

func TestFuture_ErrorOutcome(t *testing.T) {
	f := newFuture(5, "load", func(error) {})

	reply := completionMsg("load", message.Error, 5)
	reply.Data = []byte(`{"message":"missing level"}`)

	f.onError(reply)

	_, err := f.Await(context.Background())

	reqErr, ok := stderrors.AsType[*errors.RequestError](err)
	require.True(t, ok)
	assert.Equal(t, int64(5), reqErr.UUID)
	assert.Equal(t, `request 5 on "load" failed: missing level`, reqErr.Error())
}

func TestFuture_RemoteCanceledOutcome(t *testing.T) {
	f := newFuture(2, "load", func(error) {})
	f.onCanceled(true, nil)

	_, err := f.Result()
	require.ErrorIs(t, err, errors.ErrRequestCanceled)

	canceled, ok := stderrors.AsType[*errors.CanceledError](err)
	require.True(t, ok)
	assert.True(t, canceled.Remote)
}

func TestFuture_AwaitCancelsOnContextEnd(t *testing.T) {
	var f *Future

	f = newFuture(1, "load", func(cause error) {
		f.onCanceled(false, cause)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Await(ctx)

	canceled, ok := stderrors.AsType[*errors.CanceledError](err)
	require.True(t, ok)
	assert.False(t, canceled.Remote)
	assert.ErrorIs(t, err, context.Canceled)
}
