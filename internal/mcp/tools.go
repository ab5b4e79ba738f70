package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/unity-bridge-go/internal/errors"
	"github.com/wagiedev/unity-bridge-go/internal/message"
	"github.com/wagiedev/unity-bridge-go/internal/protocol"
)

// Tool names.
const (
	ToolSend    = "bridge_send"
	ToolRequest = "bridge_request"
	ToolStats   = "bridge_stats"
)

// defaultToolTimeout bounds bridge_request when no timeout_ms is given.
const defaultToolTimeout = 30 * time.Second

// Bridge is the subset of a bridge the tools drive.
type Bridge interface {
	SendTyped(ctx context.Context, channel string, typ message.Type, data any) error
	Request(ctx context.Context, channel string, typ message.Type, data any) (message.Message, error)
	Stats() protocol.Stats
}

type sendArgs struct {
	ID   string `json:"id" jsonschema:"channel the message is addressed to"`
	Data any    `json:"data,omitempty" jsonschema:"JSON payload"`
	Type *int   `json:"type,omitempty" jsonschema:"message type, 0 or at least 9; defaults to 0"`
}

type requestArgs struct {
	ID        string `json:"id" jsonschema:"channel the request is addressed to"`
	Data      any    `json:"data,omitempty" jsonschema:"JSON payload"`
	Type      *int   `json:"type,omitempty" jsonschema:"request type, at least 9; defaults to 9"`
	TimeoutMS *int   `json:"timeout_ms,omitempty" jsonschema:"give up and cancel after this many milliseconds"`
}

type statsArgs struct{}

// RequestResult is the bridge_request output for a successful request.
type RequestResult struct {
	Type int             `json:"type"`
	UUID int64           `json:"uuid"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RegisterBridgeTools adds bridge_send, bridge_request and bridge_stats to s.
func RegisterBridgeTools(s *ToolServer, b Bridge) {
	s.AddTool(typedTool(ToolSend,
		"Send a fire-and-forget message to the engine.",
		func(ctx context.Context, in sendArgs) (*mcp.CallToolResult, error) {
			typ := message.Default
			if in.Type != nil {
				typ = message.Type(*in.Type)
			}

			if err := b.SendTyped(ctx, in.ID, typ, in.Data); err != nil {
				return ErrorResult(fmt.Sprintf("send failed: %v", err)), nil
			}

			return TextResult(fmt.Sprintf("sent %s message on %q", typ, in.ID)), nil
		}))

	s.AddTool(typedTool(ToolRequest,
		"Send a request to the engine and wait for its response.",
		func(ctx context.Context, in requestArgs) (*mcp.CallToolResult, error) {
			typ := message.Request
			if in.Type != nil {
				typ = message.Type(*in.Type)
			}

			timeout := defaultToolTimeout
			if in.TimeoutMS != nil && *in.TimeoutMS > 0 {
				timeout = time.Duration(*in.TimeoutMS) * time.Millisecond
			}

			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			resp, err := b.Request(ctx, in.ID, typ, in.Data)
			if err != nil {
				return ErrorResult(describeRequestError(err)), nil
			}

			return JSONResult(RequestResult{
				Type: int(resp.Type),
				UUID: resp.CorrelationID(),
				Data: resp.Data,
			})
		}))

	s.AddTool(typedTool(ToolStats,
		"Report the bridge's pending requests, in-flight handlers and subscriptions.",
		func(_ context.Context, _ statsArgs) (*mcp.CallToolResult, error) {
			return JSONResult(b.Stats())
		}))
}

func describeRequestError(err error) string {
	if reqErr, ok := stderrors.AsType[*errors.RequestError](err); ok {
		if p, ok := reqErr.Payload(); ok && p.Message != "" {
			return fmt.Sprintf("engine returned an error: %s", p.Message)
		}

		return fmt.Sprintf("engine returned an error: %s", string(reqErr.Data))
	}

	if stderrors.Is(err, errors.ErrRequestCanceled) {
		return fmt.Sprintf("request canceled: %v", err)
	}

	return fmt.Sprintf("request failed: %v", err)
}
