package wsconn

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/wagiedev/unity-bridge-go/internal/config"
	"github.com/wagiedev/unity-bridge-go/internal/errors"
)

// DefaultReadLimit caps a single incoming frame.
const DefaultReadLimit = 1 << 20 // 1MB

// Option configures a Conn or Handler.
type Option func(*settings)

type settings struct {
	readLimit      int64
	pingInterval   time.Duration
	originPatterns []string
}

// WithReadLimit caps the size of a single incoming frame. Values <= 0 keep
// DefaultReadLimit.
func WithReadLimit(n int64) Option {
	return func(s *settings) {
		if n > 0 {
			s.readLimit = n
		}
	}
}

// WithPingInterval sends keepalive pings while reading. Zero disables them.
func WithPingInterval(d time.Duration) Option {
	return func(s *settings) {
		s.pingInterval = d
	}
}

// WithOriginPatterns sets the origins a Handler accepts besides its own host.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *settings) {
		s.originPatterns = patterns
	}
}

func newSettings(opts []Option) settings {
	s := settings{readLimit: DefaultReadLimit}
	for _, opt := range opts {
		opt(&s)
	}

	return s
}

// Conn implements Transport over a websocket connection.
type Conn struct {
	log      *slog.Logger
	url      string
	settings settings

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Compile-time verification that Conn implements the Transport interface.
var _ config.Transport = (*Conn)(nil)

// Dial returns a transport that connects to url when started.
func Dial(log *slog.Logger, url string, opts ...Option) *Conn {
	return &Conn{
		log:      log.With("component", "ws_transport", "url", url),
		url:      url,
		settings: newSettings(opts),
	}
}

func accepted(log *slog.Logger, conn *websocket.Conn, s settings) *Conn {
	conn.SetReadLimit(s.readLimit)

	return &Conn{
		log:      log.With("component", "ws_transport"),
		settings: s,
		conn:     conn,
	}
}

// Start dials the peer. It is a no-op for accepted connections.
func (c *Conn) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrTransportNotConnected
	}

	if c.conn != nil {
		return nil
	}

	c.log.Info("Dialing websocket peer")

	//nolint:bodyclose // the response body is owned by the websocket connection
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		c.log.Error("Failed to dial websocket peer", "error", err)

		return &errors.ConnectionError{Err: fmt.Errorf("dial %s: %w", c.url, err)}
	}

	conn.SetReadLimit(c.settings.readLimit)
	c.conn = conn

	c.log.Info("Websocket connected")

	return nil
}

func (c *Conn) current() (*websocket.Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn, c.closed
}

// ReadMessages reads text frames until the connection closes or ctx ends.
// A normal closure by either side ends reading without an error.
func (c *Conn) ReadMessages(ctx context.Context) (<-chan string, <-chan error) {
	messages := make(chan string)
	errs := make(chan error, 1)

	conn, _ := c.current()
	if conn == nil {
		close(messages)
		errs <- errors.ErrTransportNotConnected
		close(errs)

		return messages, errs
	}

	readCtx, stop := context.WithCancel(ctx)

	if c.settings.pingInterval > 0 {
		go c.keepalive(readCtx, conn)
	}

	go func() {
		defer close(messages)
		defer close(errs)
		defer stop()
		defer c.log.Debug("ReadMessages goroutine stopped")

		for {
			typ, data, err := conn.Read(readCtx)
			if err != nil {
				if err := c.readError(ctx, err); err != nil {
					errs <- err
				}

				return
			}

			if typ != websocket.MessageText {
				c.log.Warn("Ignoring binary frame", "size", len(data))

				continue
			}

			select {
			case messages <- string(data):
			case <-ctx.Done():
				errs <- ctx.Err()

				return
			}
		}
	}()

	return messages, errs
}

// readError classifies a read failure. Expected shutdowns yield nil.
func (c *Conn) readError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	_, closed := c.current()
	if closed {
		c.log.Debug("Websocket closed locally")

		return nil
	}

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		c.log.Debug("Websocket closed by peer")

		return nil
	}

	c.log.Error("Websocket read failed", "error", err)

	return &errors.ConnectionError{Err: err}
}

func (c *Conn) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.settings.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()

			if err != nil {
				if ctx.Err() == nil {
					c.log.Warn("Websocket ping failed", "error", err)
				}

				return
			}
		}
	}
}

// SendMessage writes message as one text frame. Safe for concurrent use.
func (c *Conn) SendMessage(ctx context.Context, message string) error {
	conn, closed := c.current()
	if conn == nil {
		return errors.ErrTransportNotConnected
	}

	if closed {
		return errors.ErrStdinClosed
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(message)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// IsReady reports whether the connection is open.
func (c *Conn) IsReady() bool {
	conn, closed := c.current()

	return conn != nil && !closed
}

// EndInput closes the connection normally; a websocket has no half-close.
func (c *Conn) EndInput() error {
	return c.Close()
}

// Close closes the connection with a normal closure status. Safe to call
// multiple times.
func (c *Conn) Close() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return nil
	}

	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.log.Debug("Closing websocket")

	err := conn.Close(websocket.StatusNormalClosure, "")
	if err != nil && !isClosedError(err) {
		return fmt.Errorf("close websocket: %w", err)
	}

	return nil
}

func isClosedError(err error) bool {
	status := websocket.CloseStatus(err)

	return status == websocket.StatusNormalClosure ||
		status == websocket.StatusGoingAway ||
		stderrors.Is(err, context.Canceled)
}
