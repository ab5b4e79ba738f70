package config

import (
	"log/slog"
	"time"
)

// Options configures a bridge and its default transports.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// EnginePath is the explicit path to the engine binary.
	// If empty, the engine is searched in PATH.
	EnginePath string

	// EngineArgs are passed to the engine process.
	EngineArgs []string

	// Env provides additional environment variables for the engine process.
	Env map[string]string

	// Cwd sets the working directory for the engine process.
	Cwd string

	// Stderr is a callback function for handling engine stderr output.
	Stderr func(string)

	// MaxBufferSize sets the maximum bytes for a single stdout line.
	// If nil, uses the default.
	MaxBufferSize *int

	// WebSocketURL selects the websocket transport when set.
	// Takes precedence over the engine subprocess.
	WebSocketURL string

	// ReadLimit caps the size of a single websocket frame in bytes.
	// Zero keeps the transport default.
	ReadLimit int64

	// Prefix overrides the structured message prefix. Both peers must agree.
	Prefix string

	// RequestTimeout bounds requests issued without a context deadline.
	// Zero means no bound.
	RequestTimeout time.Duration

	// Transport allows injecting a custom transport implementation.
	// If nil, a transport is chosen from WebSocketURL or the engine settings.
	// This field is not serialized to JSON.
	Transport Transport `json:"-"`
}
