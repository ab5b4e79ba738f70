// Package subprocess provides the stdio transports between host and engine.
//
// This package implements the Transport interface by spawning the engine as
// a child process and communicating via stdin/stdout. Each wire string is
// written as one line holding a JSON string literal, which keeps embedded
// newlines from splitting a message. Incoming lines that are not JSON string
// literals, such as engine log output, are delivered verbatim as plain text.
//
// StdioTransport is the engine's end: it applies the same framing to the
// process's own stdin and stdout.
package subprocess
