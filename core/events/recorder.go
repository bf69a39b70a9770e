package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"tokenmart/core/types"
	"tokenmart/storage"
)

// Carrier is implemented by emitted events that carry a full typed payload in
// addition to their type string.
type Carrier interface {
	Event() *types.Event
}

type storedEvent struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Recorder keeps the append-only log of observable marketplace events. The
// log is ordered by emission and, when a backing store is supplied, each
// entry is also persisted so history survives restarts.
type Recorder struct {
	mu    sync.Mutex
	seq   uint64
	log   []types.Event
	store storage.KVStore
}

// NewRecorder constructs a recorder. The store may be nil, in which case the
// log is held in memory only.
func NewRecorder(store storage.KVStore) *Recorder {
	return &Recorder{store: store}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	payload := types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	if carrier, ok := evt.(Carrier); ok {
		if inner := carrier.Event(); inner != nil {
			payload.Type = inner.Type
			for k, v := range inner.Attributes {
				payload.Attributes[k] = v
			}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.log = append(r.log, payload)
	if r.store != nil {
		encoded, err := json.Marshal(storedEvent{Sequence: r.seq, Type: payload.Type, Attributes: payload.Attributes})
		if err != nil {
			return
		}
		_ = r.store.Put(eventKey(r.seq), encoded)
	}
}

// Events returns a snapshot of the recorded log in emission order.
func (r *Recorder) Events() []types.Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Event, 0, len(r.log))
	for _, evt := range r.log {
		attrs := make(map[string]string, len(evt.Attributes))
		for k, v := range evt.Attributes {
			attrs[k] = v
		}
		out = append(out, types.Event{Type: evt.Type, Attributes: attrs})
	}
	return out
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("events/%016d", seq))
}
