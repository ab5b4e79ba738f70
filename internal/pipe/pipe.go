// Package pipe provides a connected pair of in-memory transports.
//
// A string sent on one end is read, unchanged, from the other. Closing either
// end, or calling EndInput on it, ends reading on the peer once the already
// queued strings are drained.
package pipe

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wagiedev/unity-bridge-go/internal/config"
	"github.com/wagiedev/unity-bridge-go/internal/errors"
)

// DefaultBufferSize is the number of strings queued per direction before
// SendMessage blocks.
const DefaultBufferSize = 64

// End is one side of a pipe.
type End struct {
	log   *slog.Logger
	queue chan string
	peer  *End

	mu      sync.Mutex
	started bool
	closed  bool

	// eof is closed when this end stops writing.
	eof     chan struct{}
	eofOnce sync.Once

	// done is closed when this end is closed.
	done      chan struct{}
	closeOnce sync.Once
}

// Compile-time verification that End implements the Transport interface.
var _ config.Transport = (*End)(nil)

// Option configures a pipe.
type Option func(*settings)

type settings struct {
	log    *slog.Logger
	buffer int
}

// WithLogger sets the logger for both ends.
func WithLogger(log *slog.Logger) Option {
	return func(s *settings) {
		s.log = log
	}
}

// WithBufferSize sets the per-direction queue length.
func WithBufferSize(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.buffer = n
		}
	}
}

// Pair returns two connected ends named "a" and "b" in the logs.
func Pair(opts ...Option) (a, b *End) {
	s := settings{log: slog.New(slog.DiscardHandler), buffer: DefaultBufferSize}
	for _, opt := range opts {
		opt(&s)
	}

	a = newEnd(s, "a")
	b = newEnd(s, "b")
	a.peer, b.peer = b, a

	return a, b
}

func newEnd(s settings, name string) *End {
	return &End{
		log:   s.log.With("component", "pipe", "end", name),
		queue: make(chan string, s.buffer),
		eof:   make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start marks the end ready.
func (e *End) Start(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errors.ErrTransportNotConnected
	}

	e.started = true

	return nil
}

// ReadMessages delivers strings written by the peer. Only one reader per end
// is supported.
func (e *End) ReadMessages(ctx context.Context) (<-chan string, <-chan error) {
	messages := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(messages)
		defer close(errs)
		defer e.log.Debug("ReadMessages goroutine stopped")

		for {
			select {
			case msg := <-e.queue:
				if !e.deliver(ctx, messages, errs, msg) {
					return
				}

				continue
			default:
			}

			select {
			case msg := <-e.queue:
				if !e.deliver(ctx, messages, errs, msg) {
					return
				}
			case <-e.peer.eof:
				e.drain(ctx, messages, errs)

				return
			case <-e.done:
				return
			case <-ctx.Done():
				errs <- ctx.Err()

				return
			}
		}
	}()

	return messages, errs
}

func (e *End) deliver(ctx context.Context, messages chan<- string, errs chan<- error, msg string) bool {
	select {
	case messages <- msg:
		return true
	case <-e.done:
		return false
	case <-ctx.Done():
		errs <- ctx.Err()

		return false
	}
}

// drain delivers what the peer queued before it stopped writing.
func (e *End) drain(ctx context.Context, messages chan<- string, errs chan<- error) {
	for {
		select {
		case msg := <-e.queue:
			if !e.deliver(ctx, messages, errs, msg) {
				return
			}
		default:
			return
		}
	}
}

// SendMessage queues message for the peer, blocking while the queue is full.
func (e *End) SendMessage(ctx context.Context, message string) error {
	e.mu.Lock()
	started, closed := e.started, e.closed
	e.mu.Unlock()

	if !started {
		return errors.ErrTransportNotConnected
	}

	if closed || isClosed(e.eof) {
		return errors.ErrStdinClosed
	}

	select {
	case e.peer.queue <- message:
		return nil
	case <-e.peer.done:
		return errors.ErrTransportNotConnected
	case <-e.eof:
		return errors.ErrStdinClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsReady reports whether the end is started and open.
func (e *End) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.started && !e.closed
}

// EndInput stops writing. The peer reads what is queued, then sees EOF.
func (e *End) EndInput() error {
	e.eofOnce.Do(func() {
		close(e.eof)
	})

	return nil
}

// Close closes the end. Safe to call multiple times.
func (e *End) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.log.Debug("Closing pipe end")

		_ = e.EndInput()
		close(e.done)
	})

	return nil
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
