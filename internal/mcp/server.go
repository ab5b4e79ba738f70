package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema,omitempty"`
}

// ToolServer is a registry of MCP tools.
type ToolServer struct {
	log     *slog.Logger
	name    string
	version string
	mu      sync.RWMutex
	tools   map[string]*registeredTool
}

type registeredTool struct {
	tool    *mcp.Tool
	handler mcp.ToolHandler
}

// NewToolServer creates an empty tool server.
func NewToolServer(log *slog.Logger, name, version string) *ToolServer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &ToolServer{
		log:     log.With("component", "mcp"),
		name:    name,
		version: version,
		tools:   make(map[string]*registeredTool, 4),
	}
}

// Name returns the server name.
func (s *ToolServer) Name() string {
	return s.name
}

// Version returns the server version.
func (s *ToolServer) Version() string {
	return s.version
}

// AddTool registers a tool, replacing any tool with the same name.
func (s *ToolServer) AddTool(tool *mcp.Tool, handler mcp.ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools[tool.Name] = &registeredTool{tool: tool, handler: handler}
}

// ListTools returns the registered tools sorted by name.
func (s *ToolServer) ListTools() []ToolInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ToolInfo, 0, len(s.tools))
	for _, t := range s.tools {
		result = append(result, ToolInfo{
			Name:        t.tool.Name,
			Description: t.tool.Description,
			InputSchema: asSchema(t.tool.InputSchema),
		})
	}

	slices.SortFunc(result, func(a, b ToolInfo) int {
		return strings.Compare(a.Name, b.Name)
	})

	return result
}

// asSchema converts a tool's input schema, whatever its static type, into a
// *jsonschema.Schema.
func asSchema(v any) *jsonschema.Schema {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return nil
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil
	}

	return &schema
}

// CallTool runs the named tool with input. Tool failures are reported in
// the result with IsError set; the error return is reserved for inputs that
// cannot be encoded.
func (s *ToolServer) CallTool(ctx context.Context, name string, input map[string]any) (*mcp.CallToolResult, error) {
	s.mu.RLock()
	t, exists := s.tools[name]
	s.mu.RUnlock()

	if !exists {
		return ErrorResult("Tool not found: " + name), nil
	}

	args, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal arguments for %q: %w", name, err)
	}

	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: name, Arguments: args},
	}

	result, err := t.handler(ctx, req)
	if err != nil {
		s.log.Warn("Tool failed", "tool", name, "error", err)

		return ErrorResult("Tool execution failed: " + err.Error()), nil
	}

	return result, nil
}

// Server builds an MCP server exposing every registered tool.
func (s *ToolServer) Server() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: s.name, Version: s.version}, nil)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tools {
		server.AddTool(t.tool, t.handler)
	}

	return server
}

// Run serves the registered tools over stdio until ctx ends or the client
// disconnects.
func (s *ToolServer) Run(ctx context.Context) error {
	s.log.Info("Serving MCP tools over stdio", "tools", len(s.ListTools()))

	if err := s.Server().Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("run mcp server: %w", err)
	}

	return nil
}

// TextResult creates a result with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// ErrorResult creates a result flagged as an error.
func ErrorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}
}

// JSONResult creates a text result holding v as indented JSON.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}

	return TextResult(string(data)), nil
}

// ResultText joins the text content of result.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}

	var b strings.Builder

	for _, c := range result.Content {
		if text, ok := c.(*mcp.TextContent); ok {
			if b.Len() > 0 {
				b.WriteString("\n")
			}

			b.WriteString(text.Text)
		}
	}

	return b.String()
}

// typedTool builds a tool whose arguments decode into In. The input schema
// is inferred from In and arguments are validated against it.
func typedTool[In any](
	name, description string,
	fn func(ctx context.Context, in In) (*mcp.CallToolResult, error),
) (*mcp.Tool, mcp.ToolHandler) {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		panic(fmt.Sprintf("infer schema for tool %q: %v", name, err))
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("resolve schema for tool %q: %v", name, err))
	}

	tool := &mcp.Tool{Name: name, Description: description, InputSchema: schema}

	handler := func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw json.RawMessage
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}

		if len(raw) == 0 || string(raw) == "null" {
			raw = json.RawMessage("{}")
		}

		var instance any
		if err := json.Unmarshal(raw, &instance); err != nil {
			return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		if err := resolved.Validate(instance); err != nil {
			return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		var in In
		if err := json.Unmarshal(raw, &in); err != nil {
			return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		return fn(ctx, in)
	}

	return tool, handler
}
