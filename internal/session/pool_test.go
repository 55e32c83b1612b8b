package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/commodity-pathsim/internal/engine"
	"github.com/signalsfoundry/commodity-pathsim/internal/engine/enginetest"
	"github.com/signalsfoundry/commodity-pathsim/internal/session"
)

func TestPoolLeasesDistinctSessions(t *testing.T) {
	backend := enginetest.NewBackend()
	p := session.NewPool(session.NewManager(enginetest.NewConnector(backend), session.Config{}), 2)
	t.Cleanup(func() { p.Close(context.Background()) })

	a, err := p.Lease(context.Background())
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	b, err := p.Lease(context.Background())
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if a.Session().ID() == b.Session().ID() {
		t.Fatalf("two leases share engine %q", a.Session().ID())
	}
	if backend.Running() != 2 {
		t.Fatalf("Running() = %d, want one engine per lease", backend.Running())
	}
}

func TestPoolLeaseWaitsForRelease(t *testing.T) {
	backend := enginetest.NewBackend()
	p := session.NewPool(session.NewManager(enginetest.NewConnector(backend), session.Config{}), 1)
	t.Cleanup(func() { p.Close(context.Background()) })

	first, err := p.Lease(context.Background())
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Lease(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Lease() while the only holder is out error = %v, want DeadlineExceeded", err)
	}

	first.Release()
	first.Release()
	second, err := p.Lease(context.Background())
	if err != nil {
		t.Fatalf("Lease after Release: %v", err)
	}
	if second.Session() != first.Session() {
		t.Fatalf("Lease() after Release returned a new handle, want the held one")
	}
	if got := len(backend.ConnectCalls()); got != 1 {
		t.Fatalf("connect calls = %d, want 1", got)
	}
}

func TestPoolLeaseReturnsHolderOnConnectionError(t *testing.T) {
	backend := enginetest.NewBackend()
	fail := true
	backend.ConnectErr = func(engine.ConnectOptions) error {
		if fail {
			return errors.New("engine host down")
		}
		return nil
	}
	p := session.NewPool(session.NewManager(enginetest.NewConnector(backend), session.Config{}), 1)
	t.Cleanup(func() { p.Close(context.Background()) })

	if _, err := p.Lease(context.Background()); !errors.Is(err, session.ErrConnection) {
		t.Fatalf("Lease() error = %v, want ErrConnection", err)
	}
	fail = false
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := p.Lease(ctx); err != nil {
		t.Fatalf("Lease after a failed connect: %v", err)
	}
}

func TestPoolCloseTerminatesEveryHolder(t *testing.T) {
	backend := enginetest.NewBackend()
	p := session.NewPool(session.NewManager(enginetest.NewConnector(backend), session.Config{}), 2)

	a, err := p.Lease(context.Background())
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if _, err := p.Lease(context.Background()); err != nil {
		t.Fatalf("Lease: %v", err)
	}
	a.Release()

	results := p.Close(context.Background())
	if len(results) != 2 || !results[0].Attempted || !results[1].Attempted {
		t.Fatalf("Close() = %+v, want both holders terminated", results)
	}
	if backend.Running() != 0 {
		t.Fatalf("Running() = %d after Close, want 0", backend.Running())
	}
}
