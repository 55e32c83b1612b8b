package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/commodity-pathsim/internal/engine"
	"github.com/signalsfoundry/commodity-pathsim/model"
)

// Connector hands out in-process sessions bound to Backend.
type Connector struct {
	Backend *Backend
}

// NewConnector wraps b (a fresh Backend when nil).
func NewConnector(b *Backend) *Connector {
	if b == nil {
		b = NewBackend()
	}
	return &Connector{Backend: b}
}

func (c *Connector) Connect(ctx context.Context, opts engine.ConnectOptions) (engine.Session, error) {
	id, err := c.Backend.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Session{backend: c.Backend, id: id, connected: true}, nil
}

// Session is an in-process engine.Session. Counters expose how often the
// lifecycle methods were called.
type Session struct {
	backend *Backend
	id      string

	mu          sync.Mutex
	connected   bool
	disconnects int
	exits       int

	// DisconnectResult overrides the value Disconnect reports when set.
	DisconnectResult *bool
}

func (s *Session) ID() string { return s.id }

func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return engine.ErrSessionClosed
	}
	return nil
}

func (s *Session) Eval(ctx context.Context, command string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.backend.Eval(ctx, s.id, command)
}

func (s *Session) PutMatrix(ctx context.Context, name string, m model.Matrix) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.backend.PutMatrix(ctx, s.id, name, m)
}

func (s *Session) GetMatrix(ctx context.Context, name string) (model.Matrix, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.backend.GetMatrix(ctx, s.id, name)
}

// IsConnected also checks that the backend still runs the process, so a
// process exited behind the session's back reads as disconnected.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return false
	}
	if alive, err := s.backend.IsAlive(context.Background(), s.id); err != nil || !alive {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		return false
	}
	return true
}

func (s *Session) Disconnect() bool {
	s.mu.Lock()
	s.disconnects++
	wasConnected := s.connected
	s.connected = false
	override := s.DisconnectResult
	s.mu.Unlock()

	ok := true
	if wasConnected {
		detached, err := s.backend.Disconnect(context.Background(), s.id)
		ok = err == nil && detached
	}
	if override != nil {
		return *override
	}
	return ok
}

func (s *Session) Exit(ctx context.Context) error {
	s.mu.Lock()
	s.exits++
	s.connected = false
	s.mu.Unlock()
	if err := s.backend.Exit(ctx, s.id); err != nil {
		return fmt.Errorf("engine exit failed: %w", err)
	}
	return nil
}

// Drop simulates the client connection going away underneath the session.
// The engine process keeps running and becomes available for reuse.
func (s *Session) Drop() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	_, _ = s.backend.Disconnect(context.Background(), s.id)
}

// Disconnects returns how many times Disconnect was called.
func (s *Session) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

// Exits returns how many times Exit was called.
func (s *Session) Exits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exits
}

var (
	_ engine.Connector = (*Connector)(nil)
	_ engine.Session   = (*Session)(nil)
)
