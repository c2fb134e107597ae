package transport

import (
	"sync"

	"github.com/optionagent/agent/internal/domain"
)

// Hub fans JobProgress updates out to any websocket subscribers for a
// run. Mirrors the subscribe/per-connection-channel/non-blocking-send
// shape used for the dashboard's event stream, adapted to one channel per
// run instead of one global bus. It implements run.ProgressSink, so a
// single Hub instance is shared between the run.Controller (as publisher)
// and the Server (as the websocket stream's source).
type Hub struct {
	mu   sync.Mutex
	subs map[string][]chan domain.JobProgress
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: map[string][]chan domain.JobProgress{}}
}

// Publish implements run.ProgressSink.
func (h *Hub) Publish(runID string, p domain.JobProgress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[runID] {
		select {
		case ch <- p:
		default:
			// subscriber too slow, drop the update rather than block the run
		}
	}
}

// subscribe registers a new channel for runID and returns it plus an
// unsubscribe func.
func (h *Hub) subscribe(runID string) (chan domain.JobProgress, func()) {
	ch := make(chan domain.JobProgress, 32)
	h.mu.Lock()
	h.subs[runID] = append(h.subs[runID], ch)
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		list := h.subs[runID]
		for i, c := range list {
			if c == ch {
				h.subs[runID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, unsubscribe
}
