// Package config provides configuration types for the bridge.
package config

import "context"

// Transport defines the interface for moving wire strings between the two
// peers. Implement this to provide custom transports for testing, mocking,
// or alternative carriers.
//
// The default implementation is EngineTransport, which spawns the engine as
// a subprocess. Custom transports can be injected via Options.Transport.
type Transport interface {
	// Start initializes the transport and prepares it for communication.
	// This is called before any messages are sent or received.
	Start(ctx context.Context) error

	// ReadMessages returns channels for receiving wire strings and errors.
	// Each string is delivered exactly as the peer sent it.
	// Both channels are closed when reading completes or an error occurs.
	ReadMessages(ctx context.Context) (<-chan string, <-chan error)

	// SendMessage sends one wire string to the peer.
	// This method must be safe for concurrent use.
	SendMessage(ctx context.Context, message string) error

	// Close terminates the transport and releases resources.
	// It's safe to call Close multiple times.
	Close() error

	// IsReady returns true if the transport is ready for communication.
	IsReady() bool

	// EndInput signals that no more input will be sent.
	// For process-based transports, this typically closes stdin.
	EndInput() error
}
