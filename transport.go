package unitybridge

import (
	"github.com/wagiedev/unity-bridge-go/internal/config"
	"github.com/wagiedev/unity-bridge-go/internal/pipe"
)

// Transport defines the interface for moving wire strings between the host
// and the engine. Implement this to provide custom transports for testing,
// mocking, or alternative carriers.
//
// The default implementation spawns the engine as a subprocess. Custom
// transports can be injected via WithTransport.
type Transport = config.Transport

// NewPipe returns two connected in-memory transports. A string sent on one
// is read from the other.
func NewPipe() (Transport, Transport) {
	a, b := pipe.Pair()

	return a, b
}
