package protocol

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/unity-bridge-go/internal/message"
)

// recordingSender implements Sender for testing.
type recordingSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make([]string, 0, 10)}
}

func (s *recordingSender) SendMessage(_ context.Context, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.sent = append(s.sent, msg)

	return nil
}

func (s *recordingSender) raw() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]string, len(s.sent))
	copy(result, s.sent)

	return result
}

func (s *recordingSender) messages(t *testing.T) []message.Message {
	t.Helper()

	raw := s.raw()
	result := make([]message.Message, 0, len(raw))

	for _, r := range raw {
		msg, ok, err := message.Decode(r)
		require.NoError(t, err)
		require.True(t, ok, "expected structured message, got %q", r)

		result = append(result, msg)
	}

	return result
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sent)
}

// newLoopback returns two controllers whose senders deliver synchronously to
// each other, so replies re-enter OnWireMessage before SendMessage returns.
func newLoopback(t *testing.T) (unity, host *Controller) {
	t.Helper()

	unity = NewController(slog.Default(), SenderFunc(func(_ context.Context, msg string) error {
		host.OnWireMessage(msg)

		return nil
	}))
	host = NewController(slog.Default(), SenderFunc(func(_ context.Context, msg string) error {
		unity.OnWireMessage(msg)

		return nil
	}))

	t.Cleanup(func() {
		unity.Close()
		host.Close()
	})

	return unity, host
}

func wire(t *testing.T, msg message.Message) string {
	t.Helper()

	s, err := message.Encode(msg)
	require.NoError(t, err)

	return s
}

func requestMsg(channel string, uuid int64, data string) message.Message {
	msg := message.Message{ID: channel, Type: message.Request}
	if data != "" {
		msg.Data = json.RawMessage(data)
	}

	return msg.Correlated(uuid)
}

func completionMsg(channel string, typ message.Type, uuid int64) message.Message {
	return message.Message{ID: channel, Type: typ}.Correlated(uuid)
}
