// Package engine defines the contract with the external simulation engine
// and its gRPC transport.
//
// The engine is an opaque, stateful, single-threaded process. A Session is a
// live connection to one engine process; callers must not drive a Session
// from two goroutines at once.
package engine

import (
	"context"
	"errors"

	"github.com/signalsfoundry/commodity-pathsim/model"
)

// ErrSessionClosed is returned when a disconnected session is used.
var ErrSessionClosed = errors.New("engine session closed")

// ConnectOptions control how a session to the engine is established.
type ConnectOptions struct {
	// ReusePreviousSession attaches to an already running engine process
	// when one exists instead of starting a fresh one.
	ReusePreviousSession bool
	// Hidden suppresses the engine's splash/desktop on startup.
	Hidden bool
	// StartDir is the engine's working directory for freshly started processes.
	StartDir string
}

// Session is a live handle to one engine process.
type Session interface {
	// ID identifies the engine process behind the session.
	ID() string
	// Eval runs a command in the engine workspace.
	Eval(ctx context.Context, command string) error
	// PutMatrix assigns a numeric variable in the engine workspace.
	PutMatrix(ctx context.Context, name string, m model.Matrix) error
	// GetMatrix reads a numeric variable from the engine workspace.
	GetMatrix(ctx context.Context, name string) (model.Matrix, error)
	// IsConnected reports whether the session can still be used.
	IsConnected() bool
	// Disconnect detaches from the engine process, leaving it running.
	Disconnect() bool
	// Exit asks the engine process to terminate.
	Exit(ctx context.Context) error
}

// Connector establishes sessions.
type Connector interface {
	Connect(ctx context.Context, opts ConnectOptions) (Session, error)
}
