package unitybridge

import (
	"github.com/wagiedev/unity-bridge-go/internal/mcp"
)

// ToolServer exposes a bridge as Model Context Protocol tools.
type ToolServer = mcp.ToolServer

// NewToolServer creates a tool server offering bridge_send, bridge_request
// and bridge_stats against b. Use Run to serve it over stdio or Server to
// attach it to another MCP transport.
func NewToolServer(b Bridge, name, version string) *ToolServer {
	log := NopLogger()
	if w, ok := b.(*bridgeWrapper); ok && w.impl.Options().Logger != nil {
		log = w.impl.Options().Logger
	}

	s := mcp.NewToolServer(log, name, version)
	mcp.RegisterBridgeTools(s, b)

	return s
}
