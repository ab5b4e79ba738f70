package unitybridge

import (
	"log/slog"
	"time"

	"github.com/wagiedev/unity-bridge-go/internal/config"
)

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options to an Options struct.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithPrefix overrides the structured message prefix. Both peers must use
// the same prefix.
func WithPrefix(prefix string) Option {
	return func(o *Options) {
		o.Prefix = prefix
	}
}

// WithRequestTimeout bounds requests whose context has no deadline.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.RequestTimeout = timeout
	}
}

// ===== Engine Subprocess =====

// WithEnginePath sets the explicit path to the engine binary.
// If not set, the engine is searched in PATH.
func WithEnginePath(path string) Option {
	return func(o *Options) {
		o.EnginePath = path
	}
}

// WithEngineArgs sets the arguments passed to the engine process.
func WithEngineArgs(args ...string) Option {
	return func(o *Options) {
		o.EngineArgs = args
	}
}

// WithEnv provides additional environment variables for the engine process.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		o.Env = env
	}
}

// WithCwd sets the working directory for the engine process.
func WithCwd(cwd string) Option {
	return func(o *Options) {
		o.Cwd = cwd
	}
}

// WithStderr sets a callback for engine stderr lines.
func WithStderr(handler func(string)) Option {
	return func(o *Options) {
		o.Stderr = handler
	}
}

// WithMaxBufferSize sets the maximum bytes for a single line of engine output.
func WithMaxBufferSize(size int) Option {
	return func(o *Options) {
		o.MaxBufferSize = &size
	}
}

// ===== Websocket =====

// WithWebSocketURL connects to the engine over a websocket instead of
// spawning it.
func WithWebSocketURL(url string) Option {
	return func(o *Options) {
		o.WebSocketURL = url
	}
}

// WithReadLimit caps the size of a single incoming websocket frame.
func WithReadLimit(limit int64) Option {
	return func(o *Options) {
		o.ReadLimit = limit
	}
}

// ===== Advanced Configuration =====

// WithTransport injects a custom transport implementation.
// The transport must implement the Transport interface.
// Takes precedence over the websocket and engine settings.
func WithTransport(transport config.Transport) Option {
	return func(o *Options) {
		o.Transport = transport
	}
}
