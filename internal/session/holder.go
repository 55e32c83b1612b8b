package session

import (
	"context"
	"sync"

	"github.com/signalsfoundry/commodity-pathsim/internal/engine"
)

// Holder owns at most one session on behalf of a single consumer and
// replaces it when it stops being live. It does not serialize use of the
// session it hands out.
type Holder struct {
	manager Manager

	mu      sync.Mutex
	current engine.Session
}

// NewHolder returns an empty holder backed by m.
func NewHolder(m Manager) *Holder {
	return &Holder{manager: m}
}

// Session returns the held session when it is still live and acquires a
// new one otherwise. A dead handle is dropped without being terminated.
func (h *Holder) Session(ctx context.Context) (engine.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.manager.IsLive(h.current) {
		return h.current, nil
	}
	s, err := h.manager.Acquire(ctx)
	if err != nil {
		h.current = nil
		return nil, err
	}
	h.current = s
	return s, nil
}

// Close terminates the held session, if any, and empties the holder.
func (h *Holder) Close(ctx context.Context) TerminateResult {
	h.mu.Lock()
	s := h.current
	h.current = nil
	h.mu.Unlock()
	return h.manager.Terminate(ctx, s)
}
