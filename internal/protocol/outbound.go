package protocol

import (
	"time"

	"github.com/wagiedev/unity-bridge-go/internal/message"
)

// completionSink receives the single outcome of an outgoing request.
type completionSink interface {
	onResponse(msg message.Message)
	onError(msg message.Message)
	onCanceled(remote bool, cause error)
}

// pendingRequest tracks an outgoing request awaiting its completion.
type pendingRequest struct {
	channel string
	sink    completionSink
	sentAt  time.Time

	// stop detaches the caller's context binding. Nil until bound.
	stop func() bool
}

// outboundTable holds outgoing requests by correlation id. take is the only
// way out of the table, so whichever of resolve and cancel takes an entry
// first decides the outcome.
type outboundTable struct {
	pending map[int64]*pendingRequest
}

func newOutboundTable() *outboundTable {
	return &outboundTable{pending: make(map[int64]*pendingRequest, 16)}
}

func (t *outboundTable) register(uuid int64, p *pendingRequest) {
	t.pending[uuid] = p
}

func (t *outboundTable) lookup(uuid int64) (*pendingRequest, bool) {
	p, ok := t.pending[uuid]

	return p, ok
}

func (t *outboundTable) take(uuid int64) (*pendingRequest, bool) {
	p, ok := t.pending[uuid]
	if ok {
		delete(t.pending, uuid)
	}

	return p, ok
}

func (t *outboundTable) drain() map[int64]*pendingRequest {
	drained := t.pending
	t.pending = make(map[int64]*pendingRequest)

	return drained
}

func (t *outboundTable) len() int {
	return len(t.pending)
}
