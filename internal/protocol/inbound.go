package protocol

// inboundTable holds incoming requests that have not been closed, keyed by
// the peer's correlation id. Cancellation only flags a handle; the handle
// leaves the table when it closes.
type inboundTable struct {
	handles map[int64]*Handle
}

func newInboundTable() *inboundTable {
	return &inboundTable{handles: make(map[int64]*Handle, 16)}
}

func (t *inboundTable) track(uuid int64, h *Handle) {
	t.handles[uuid] = h
}

func (t *inboundTable) lookup(uuid int64) (*Handle, bool) {
	h, ok := t.handles[uuid]

	return h, ok
}

// remove drops h. A newer handle reusing the same id is left alone.
func (t *inboundTable) remove(uuid int64, h *Handle) {
	if t.handles[uuid] == h {
		delete(t.handles, uuid)
	}
}

func (t *inboundTable) drain() []*Handle {
	handles := make([]*Handle, 0, len(t.handles))
	for _, h := range t.handles {
		handles = append(handles, h)
	}

	t.handles = make(map[int64]*Handle)

	return handles
}

func (t *inboundTable) len() int {
	return len(t.handles)
}
