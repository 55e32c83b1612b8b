// Package enginetest provides an in-memory engine for tests: a Backend that
// records every command it receives and a Session/Connector pair that talks
// to it without a network hop.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/commodity-pathsim/internal/engine"
	"github.com/signalsfoundry/commodity-pathsim/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Process is one simulated engine process.
type Process struct {
	ID       string
	Options  engine.ConnectOptions
	Attached bool
	Vars     map[string]model.Matrix
	Evals    []string
}

// Backend is an in-memory engine.Backend. Commands are recorded, not
// interpreted; GetMatrix serves variables set with PutMatrix first and
// falls back to Results.
type Backend struct {
	mu        sync.Mutex
	processes map[string]*Process
	order     []string
	nextID    int

	// Results are served for variables no client has assigned.
	Results map[string]model.Matrix
	// ConnectErr, when set, decides per call whether Connect fails.
	ConnectErr func(opts engine.ConnectOptions) error
	// EvalErr, when set, decides per command whether Eval fails.
	EvalErr func(command string) error
	// ExitErr is returned by Exit when set.
	ExitErr error

	connectCalls []engine.ConnectOptions
}

// NewBackend constructs an empty engine.
func NewBackend() *Backend {
	return &Backend{
		processes: make(map[string]*Process),
		Results:   make(map[string]model.Matrix),
	}
}

// Connect attaches to the most recently started process nobody is attached
// to when reuse is requested, and starts a new process otherwise.
func (b *Backend) Connect(_ context.Context, opts engine.ConnectOptions) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.connectCalls = append(b.connectCalls, opts)
	if b.ConnectErr != nil {
		if err := b.ConnectErr(opts); err != nil {
			return "", err
		}
	}

	if opts.ReusePreviousSession {
		for i := len(b.order) - 1; i >= 0; i-- {
			if p := b.processes[b.order[i]]; !p.Attached {
				p.Attached = true
				return p.ID, nil
			}
		}
	}

	b.nextID++
	p := &Process{
		ID:       fmt.Sprintf("engine-%d", b.nextID),
		Options:  opts,
		Attached: true,
		Vars:     make(map[string]model.Matrix),
	}
	b.processes[p.ID] = p
	b.order = append(b.order, p.ID)
	return p.ID, nil
}

func (b *Backend) process(id string) (*Process, error) {
	p, ok := b.processes[id]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no engine process %q", id)
	}
	return p, nil
}

func (b *Backend) Eval(_ context.Context, sessionID, command string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.process(sessionID)
	if err != nil {
		return err
	}
	p.Evals = append(p.Evals, command)
	if b.EvalErr != nil {
		return b.EvalErr(command)
	}
	return nil
}

func (b *Backend) PutMatrix(_ context.Context, sessionID, name string, m model.Matrix) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.process(sessionID)
	if err != nil {
		return err
	}
	p.Vars[name] = m.Clone()
	return nil
}

func (b *Backend) GetMatrix(_ context.Context, sessionID, name string) (model.Matrix, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.process(sessionID)
	if err != nil {
		return nil, err
	}
	if m, ok := p.Vars[name]; ok {
		return m.Clone(), nil
	}
	if m, ok := b.Results[name]; ok {
		return m.Clone(), nil
	}
	return nil, status.Errorf(codes.NotFound, "undefined variable %q", name)
}

func (b *Backend) Disconnect(_ context.Context, sessionID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.process(sessionID)
	if err != nil {
		return false, err
	}
	p.Attached = false
	return true, nil
}

func (b *Backend) Exit(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ExitErr != nil {
		return b.ExitErr
	}
	if _, err := b.process(sessionID); err != nil {
		return err
	}
	delete(b.processes, sessionID)
	for i, id := range b.order {
		if id == sessionID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// IsAlive reports whether the process is still running.
func (b *Backend) IsAlive(_ context.Context, sessionID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.processes[sessionID]
	return ok, nil
}

// Process returns a snapshot of the named process.
func (b *Backend) Process(id string) (Process, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.processes[id]
	if !ok {
		return Process{}, false
	}
	snapshot := *p
	snapshot.Evals = append([]string(nil), p.Evals...)
	snapshot.Vars = make(map[string]model.Matrix, len(p.Vars))
	for k, v := range p.Vars {
		snapshot.Vars[k] = v.Clone()
	}
	return snapshot, true
}

// Running returns the number of live engine processes.
func (b *Backend) Running() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.processes)
}

// ConnectCalls returns the options of every Connect call in order.
func (b *Backend) ConnectCalls() []engine.ConnectOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]engine.ConnectOptions(nil), b.connectCalls...)
}

var _ engine.Backend = (*Backend)(nil)
