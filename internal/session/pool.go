package session

import (
	"context"
	"sync"

	"github.com/signalsfoundry/commodity-pathsim/internal/engine"
)

// Pool owns a fixed set of Holders and lends each one to a single caller at
// a time, so parallel callers never drive the same session.
type Pool struct {
	holders []*Holder
	free    chan *Holder
}

// NewPool returns a pool of size holders backed by m; sizes below 1 use 1.
// Holders acquire their sessions lazily on first lease.
func NewPool(m Manager, size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		holders: make([]*Holder, size),
		free:    make(chan *Holder, size),
	}
	for i := range p.holders {
		h := NewHolder(m)
		p.holders[i] = h
		p.free <- h
	}
	return p
}

// Size returns the number of holders, which bounds concurrent leases.
func (p *Pool) Size() int { return len(p.holders) }

// Lease waits for a free holder and returns it with a live session.
func (p *Pool) Lease(ctx context.Context) (*Lease, error) {
	var h *Holder
	select {
	case h = <-p.free:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s, err := h.Session(ctx)
	if err != nil {
		p.free <- h
		return nil, err
	}
	return &Lease{pool: p, holder: h, session: s}, nil
}

// Close terminates the session of every holder, leased or not.
func (p *Pool) Close(ctx context.Context) []TerminateResult {
	results := make([]TerminateResult, 0, len(p.holders))
	for _, h := range p.holders {
		results = append(results, h.Close(ctx))
	}
	return results
}

// Lease is exclusive use of one holder's session until Release.
type Lease struct {
	pool    *Pool
	holder  *Holder
	session engine.Session
	once    sync.Once
}

// Session returns the leased session.
func (l *Lease) Session() engine.Session { return l.session }

// Release returns the holder to the pool. Calls after the first are no-ops.
func (l *Lease) Release() {
	l.once.Do(func() { l.pool.free <- l.holder })
}
