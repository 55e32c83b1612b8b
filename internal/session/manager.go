// Package session acquires and releases engine sessions. Acquisition tries
// to reuse an already-running engine first and starts a fresh one only when
// that fails; there is no third attempt.
package session

import (
	"context"

	"github.com/signalsfoundry/commodity-pathsim/internal/engine"
	"github.com/signalsfoundry/commodity-pathsim/internal/logging"
	"github.com/signalsfoundry/commodity-pathsim/internal/observability"
)

// Manager hands out engine sessions and tears them down.
type Manager interface {
	// Acquire returns a connected session or a *ConnectionError.
	Acquire(ctx context.Context) (engine.Session, error)
	// Disconnect detaches from s, leaving the engine running. A nil session
	// counts as already disconnected.
	Disconnect(s engine.Session) bool
	// Terminate detaches from s if needed and asks the engine to exit.
	Terminate(ctx context.Context, s engine.Session) TerminateResult
	// IsLive reports whether s is non-nil and still connected.
	IsLive(s engine.Session) bool
}

// TerminateResult reports the two halves of Terminate independently.
type TerminateResult struct {
	// Attempted is false when there was no session to terminate.
	Attempted bool
	// Disconnected is true when the session ended up detached.
	Disconnected bool
	// ExitErr is the engine's answer to the exit request.
	ExitErr error
}

// MetricsRecorder receives session lifecycle outcomes.
type MetricsRecorder interface {
	ObserveAcquisition(outcome string)
	ObserveDisconnect(ok bool)
}

// Config selects the options for both connection attempts.
type Config struct {
	// Hidden starts engines without a visible desktop.
	Hidden bool
	// StartDir is the engine working directory; it must hold the model scripts.
	StartDir string
}

// DefaultStartDir is where the stock engine image keeps its model scripts.
const DefaultStartDir = "/var/engine/startdir"

// DefaultManager implements Manager on top of an engine.Connector.
type DefaultManager struct {
	connector engine.Connector
	primary   engine.ConnectOptions
	fallback  engine.ConnectOptions
	log       logging.Logger
	metrics   MetricsRecorder
}

// Option customises a DefaultManager.
type Option func(*DefaultManager)

// WithLogger sets the manager's logger.
func WithLogger(l logging.Logger) Option {
	return func(m *DefaultManager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetrics sets the recorder for acquisition and disconnect outcomes.
func WithMetrics(r MetricsRecorder) Option {
	return func(m *DefaultManager) { m.metrics = r }
}

// NewManager builds a DefaultManager. The primary attempt reuses a running
// engine; the fallback always starts a new one.
func NewManager(connector engine.Connector, cfg Config, opts ...Option) *DefaultManager {
	if cfg.StartDir == "" {
		cfg.StartDir = DefaultStartDir
	}
	m := &DefaultManager{
		connector: connector,
		primary: engine.ConnectOptions{
			ReusePreviousSession: true,
			Hidden:               cfg.Hidden,
			StartDir:             cfg.StartDir,
		},
		fallback: engine.ConnectOptions{
			ReusePreviousSession: false,
			Hidden:               cfg.Hidden,
			StartDir:             cfg.StartDir,
		},
		log: logging.Noop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *DefaultManager) Acquire(ctx context.Context) (engine.Session, error) {
	s, primaryErr := m.connect(ctx, m.primary)
	if primaryErr == nil {
		m.observeAcquisition(observability.AcquisitionPrimary)
		m.log.Debug(ctx, "engine session acquired", logging.String("session_id", s.ID()), logging.Bool("reused", true))
		return s, nil
	}
	m.log.Error(ctx, "engine reuse connect failed; starting a new engine session", logging.Err(primaryErr))

	s, fallbackErr := m.connect(ctx, m.fallback)
	if fallbackErr == nil {
		m.observeAcquisition(observability.AcquisitionFallback)
		m.log.Info(ctx, "engine session acquired on fallback", logging.String("session_id", s.ID()), logging.Bool("reused", false))
		return s, nil
	}

	m.observeAcquisition(observability.AcquisitionFailed)
	m.log.Error(ctx, "engine new session connect failed", logging.Err(fallbackErr))
	return nil, &ConnectionError{Primary: primaryErr, Fallback: fallbackErr}
}

func (m *DefaultManager) connect(ctx context.Context, opts engine.ConnectOptions) (engine.Session, error) {
	s, err := m.connector.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, engine.ErrSessionClosed
	}
	return s, nil
}

func (m *DefaultManager) Disconnect(s engine.Session) bool {
	if s == nil {
		m.log.Warn(context.Background(), "disconnect requested without a session")
		return true
	}
	ok := s.Disconnect()
	if m.metrics != nil {
		m.metrics.ObserveDisconnect(ok)
	}
	if !ok {
		m.log.Warn(context.Background(), "engine session disconnect failed", logging.String("session_id", s.ID()))
	}
	return ok
}

func (m *DefaultManager) Terminate(ctx context.Context, s engine.Session) TerminateResult {
	if s == nil {
		return TerminateResult{}
	}
	res := TerminateResult{Attempted: true, Disconnected: true}
	if s.IsConnected() {
		res.Disconnected = m.Disconnect(s)
	}
	if err := s.Exit(ctx); err != nil {
		res.ExitErr = err
		m.log.Error(ctx, "engine exit failed", logging.String("session_id", s.ID()), logging.Err(err))
	}
	return res
}

func (m *DefaultManager) IsLive(s engine.Session) bool {
	return s != nil && s.IsConnected()
}

func (m *DefaultManager) observeAcquisition(outcome string) {
	if m.metrics != nil {
		m.metrics.ObserveAcquisition(outcome)
	}
}

var _ Manager = (*DefaultManager)(nil)
