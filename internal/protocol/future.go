package protocol

import (
	"context"
	"sync"

	"github.com/wagiedev/unity-bridge-go/internal/errors"
	"github.com/wagiedev/unity-bridge-go/internal/message"
)

// Future is the pending outcome of an outgoing request. It settles exactly
// once with one of:
//
//   - the Response message and a nil error
//   - a *errors.RequestError when the peer replied with Error
//   - a *errors.CanceledError when either side cancelled
type Future struct {
	uuid    int64
	channel string
	cancel  func(cause error)

	once sync.Once
	done chan struct{}
	msg  message.Message
	err  error
}

func newFuture(uuid int64, channel string, cancel func(cause error)) *Future {
	return &Future{
		uuid:    uuid,
		channel: channel,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// UUID returns the correlation id of the request.
func (f *Future) UUID() int64 {
	return f.uuid
}

// Channel returns the channel the request was sent on.
func (f *Future) Channel() string {
	return f.channel
}

// Done is closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the outcome is known.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome, or errors.ErrRequestPending before it settles.
func (f *Future) Result() (message.Message, error) {
	if !f.Settled() {
		return message.Message{}, errors.ErrRequestPending
	}

	return f.msg, f.err
}

// Await blocks until the future settles. If ctx ends first the request is
// cancelled and the resulting *errors.CanceledError is returned.
func (f *Future) Await(ctx context.Context) (message.Message, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		f.cancel(context.Cause(ctx))
		<-f.done
	}

	return f.msg, f.err
}

// Cancel cancels the request locally and tells the peer. It has no effect
// once the future has settled.
func (f *Future) Cancel() {
	f.cancel(context.Canceled)
}

func (f *Future) settle(msg message.Message, err error) bool {
	settled := false

	f.once.Do(func() {
		f.msg = msg
		f.err = err
		settled = true

		close(f.done)
	})

	return settled
}

func (f *Future) onResponse(msg message.Message) {
	f.settle(msg, nil)
}

func (f *Future) onError(msg message.Message) {
	f.settle(msg, &errors.RequestError{Channel: f.channel, UUID: f.uuid, Data: msg.Data})
}

func (f *Future) onCanceled(remote bool, cause error) {
	f.settle(message.Message{}, &errors.CanceledError{
		Channel: f.channel,
		UUID:    f.uuid,
		Remote:  remote,
		Cause:   cause,
	})
}
