// Package mcp exposes a running bridge as Model Context Protocol tools.
//
// ToolServer keeps its own tool registry so tools can be listed and called
// programmatically, and builds an *mcp.Server from the same registry for
// transport-based clients.
package mcp
