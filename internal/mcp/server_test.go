package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mcpgo "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	bridgeerrors "github.com/wagiedev/unity-bridge-go/internal/errors"
	"github.com/wagiedev/unity-bridge-go/internal/message"
	"github.com/wagiedev/unity-bridge-go/internal/protocol"
)

type sentMessage struct {
	channel string
	typ     message.Type
	data    any
}

// fakeBridge implements Bridge for testing.
type fakeBridge struct {
	mu      sync.Mutex
	sent    []sentMessage
	reply   message.Message
	err     error
	waitCtx bool
}

func (f *fakeBridge) SendTyped(_ context.Context, channel string, typ message.Type, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.sent = append(f.sent, sentMessage{channel: channel, typ: typ, data: data})

	return nil
}

func (f *fakeBridge) Request(ctx context.Context, channel string, typ message.Type, data any) (message.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{channel: channel, typ: typ, data: data})
	waitCtx, reply, err := f.waitCtx, f.reply, f.err
	f.mu.Unlock()

	if waitCtx {
		<-ctx.Done()

		return message.Message{}, &bridgeerrors.CanceledError{Channel: channel, UUID: 1, Cause: context.Cause(ctx)}
	}

	return reply, err
}

func (f *fakeBridge) Stats() protocol.Stats {
	return protocol.Stats{ID: "01TEST", PendingRequests: 2, LastUUID: 7}
}

func newTestServer(b Bridge) *ToolServer {
	s := NewToolServer(nil, "unity-bridge", "1.0.0")
	RegisterBridgeTools(s, b)

	return s
}

func TestToolServer_ListTools(t *testing.T) {
	s := newTestServer(&fakeBridge{})

	require.Equal(t, "unity-bridge", s.Name())
	require.Equal(t, "1.0.0", s.Version())

	tools := s.ListTools()
	require.Len(t, tools, 3)
	require.Equal(t, ToolSend, tools[0].Name)
	require.Equal(t, ToolRequest, tools[1].Name)
	require.Equal(t, ToolStats, tools[2].Name)

	require.NotNil(t, tools[1].InputSchema)
	require.Equal(t, "object", tools[1].InputSchema.Type)
	require.Contains(t, tools[1].InputSchema.Properties, "timeout_ms")
	require.Equal(t, []string{"id"}, tools[1].InputSchema.Required)
}

func TestToolServer_Send(t *testing.T) {
	b := &fakeBridge{}
	s := newTestServer(b)

	result, err := s.CallTool(context.Background(), ToolSend, map[string]any{
		"id":   "hud",
		"type": 12,
		"data": map[string]any{"score": 3},
	})
	require.NoError(t, err)
	require.False(t, result.IsError, ResultText(result))

	require.Len(t, b.sent, 1)
	require.Equal(t, "hud", b.sent[0].channel)
	require.Equal(t, message.Type(12), b.sent[0].typ)
	require.Equal(t, map[string]any{"score": float64(3)}, b.sent[0].data)
}

func TestToolServer_SendFailure(t *testing.T) {
	s := newTestServer(&fakeBridge{err: bridgeerrors.ErrReservedType})

	result, err := s.CallTool(context.Background(), ToolSend, map[string]any{"id": "x", "type": 4})
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Contains(t, ResultText(result), "reserved message type")
}

func TestToolServer_Request(t *testing.T) {
	reply := message.Message{ID: "echo", Type: message.Response, Data: json.RawMessage(`{"v":1}`)}.Correlated(5)
	b := &fakeBridge{reply: reply}
	s := newTestServer(b)

	result, err := s.CallTool(context.Background(), ToolRequest, map[string]any{"id": "echo", "data": map[string]any{"v": 1}})
	require.NoError(t, err)
	require.False(t, result.IsError, ResultText(result))
	require.JSONEq(t, `{"type":1,"uuid":5,"data":{"v":1}}`, ResultText(result))
	require.Equal(t, message.Request, b.sent[0].typ)
}

func TestToolServer_RequestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "engine error payload",
			err:  &bridgeerrors.RequestError{Channel: "scene", UUID: 1, Data: json.RawMessage(`{"message":"no such scene"}`)},
			want: "engine returned an error: no such scene",
		},
		{
			name: "canceled by peer",
			err:  &bridgeerrors.CanceledError{Channel: "scene", UUID: 1, Remote: true},
			want: "request canceled",
		},
		{
			name: "other failure",
			err:  errors.New("pipe broken"),
			want: "request failed: pipe broken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeBridge{err: tt.err})

			result, err := s.CallTool(context.Background(), ToolRequest, map[string]any{"id": "scene"})
			require.NoError(t, err)
			require.True(t, result.IsError)
			require.Contains(t, ResultText(result), tt.want)
		})
	}
}

func TestToolServer_RequestTimeout(t *testing.T) {
	s := newTestServer(&fakeBridge{waitCtx: true})

	start := time.Now()
	result, err := s.CallTool(context.Background(), ToolRequest, map[string]any{"id": "slow", "timeout_ms": 20})
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Contains(t, ResultText(result), "request canceled")
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestToolServer_InvalidArguments(t *testing.T) {
	s := newTestServer(&fakeBridge{})

	result, err := s.CallTool(context.Background(), ToolSend, map[string]any{"type": 0})
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Contains(t, ResultText(result), "invalid arguments")

	result, err = s.CallTool(context.Background(), ToolSend, map[string]any{"id": 5})
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestToolServer_UnknownTool(t *testing.T) {
	s := newTestServer(&fakeBridge{})

	result, err := s.CallTool(context.Background(), "nope", nil)
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Equal(t, "Tool not found: nope", ResultText(result))
}

func TestToolServer_Stats(t *testing.T) {
	s := newTestServer(&fakeBridge{})

	result, err := s.CallTool(context.Background(), ToolStats, map[string]any{})
	require.NoError(t, err)

	var stats protocol.Stats
	require.NoError(t, json.Unmarshal([]byte(ResultText(result)), &stats))
	require.Equal(t, "01TEST", stats.ID)
	require.Equal(t, 2, stats.PendingRequests)
	require.Equal(t, int64(7), stats.LastUUID)
}

func TestToolServer_OverMCPSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply := message.Message{ID: "echo", Type: message.Response, Data: json.RawMessage(`"pong"`)}.Correlated(1)
	s := newTestServer(&fakeBridge{reply: reply})

	serverTransport, clientTransport := mcpgo.NewInMemoryTransports()

	serverSession, err := s.Server().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	defer serverSession.Close()

	client := mcpgo.NewClient(&mcpgo.Implementation{Name: "test-client", Version: "1.0.0"}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	defer session.Close()

	listed, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Len(t, listed.Tools, 3)

	result, err := session.CallTool(ctx, &mcpgo.CallToolParams{
		Name:      ToolRequest,
		Arguments: map[string]any{"id": "echo", "data": "ping"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError, ResultText(result))
	require.JSONEq(t, `{"type":1,"uuid":1,"data":"pong"}`, ResultText(result))
}

func TestResultHelpers(t *testing.T) {
	require.False(t, TextResult("ok").IsError)
	require.True(t, ErrorResult("bad").IsError)
	require.Equal(t, "bad", ResultText(ErrorResult("bad")))
	require.Empty(t, ResultText(nil))

	result, err := JSONResult(map[string]int{"a": 1})
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, ResultText(result))
}
