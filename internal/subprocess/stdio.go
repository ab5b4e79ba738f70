package subprocess

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/wagiedev/unity-bridge-go/internal/config"
	"github.com/wagiedev/unity-bridge-go/internal/errors"
)

// StdioTransport implements Transport over an existing reader and writer,
// using the same line framing as EngineTransport. It is the engine's side of
// the subprocess transport: a process started by EngineTransport wraps its
// own stdin and stdout with it.
type StdioTransport struct {
	log         *slog.Logger
	r           io.Reader
	w           io.Writer
	maxLineSize int

	mu          sync.Mutex
	started     bool
	closed      bool
	inputClosed bool
}

// Compile-time verification that StdioTransport implements the Transport interface.
var _ config.Transport = (*StdioTransport)(nil)

// NewStdioTransport reads framed lines from r and writes them to w.
func NewStdioTransport(log *slog.Logger, r io.Reader, w io.Writer) *StdioTransport {
	return &StdioTransport{
		log:         log.With("component", "stdio_transport"),
		r:           r,
		w:           w,
		maxLineSize: defaultMaxLineSize,
	}
}

// Start marks the transport ready.
func (t *StdioTransport) Start(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.ErrTransportNotConnected
	}

	t.started = true

	return nil
}

// ReadMessages reads until the reader reaches EOF or ctx ends.
func (t *StdioTransport) ReadMessages(ctx context.Context) (<-chan string, <-chan error) {
	messages := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(messages)
		defer close(errs)
		defer t.log.Debug("ReadMessages goroutine stopped")

		err := scanLines(ctx, t.r, t.maxLineSize, func(msg string) bool {
			select {
			case messages <- msg:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			errs <- err

			return
		}

		t.log.Debug("Input closed")
	}()

	return messages, errs
}

// SendMessage writes one framed line. Safe for concurrent use.
func (t *StdioTransport) SendMessage(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case !t.started:
		return errors.ErrTransportNotConnected
	case t.closed || t.inputClosed:
		return errors.ErrStdinClosed
	}

	data, err := encodeLine(message)
	if err != nil {
		return err
	}

	if _, err := t.w.Write(data); err != nil {
		return fmt.Errorf("write line: %w", err)
	}

	return nil
}

// IsReady reports whether the transport is started and open.
func (t *StdioTransport) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.started && !t.closed && !t.inputClosed
}

// EndInput closes the writer when it is an io.Closer.
func (t *StdioTransport) EndInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inputClosed {
		return nil
	}

	t.inputClosed = true

	if c, ok := t.w.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

// Close stops writing. The reader is left to the owner.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true

	return nil
}
