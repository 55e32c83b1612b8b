package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/signalsfoundry/commodity-pathsim/internal/engine"
	"github.com/signalsfoundry/commodity-pathsim/internal/engine/enginetest"
	"github.com/signalsfoundry/commodity-pathsim/internal/logging"
	"github.com/signalsfoundry/commodity-pathsim/internal/observability"
	"github.com/signalsfoundry/commodity-pathsim/internal/session"
)

type record struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	records *[]record
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{records: &[]record{}}
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, record{level: level, msg: msg})
}

func (l *recordingLogger) With(...logging.Field) logging.Logger { return l }
func (l *recordingLogger) Debug(_ context.Context, msg string, _ ...logging.Field) {
	l.add("debug", msg)
}
func (l *recordingLogger) Info(_ context.Context, msg string, _ ...logging.Field) { l.add("info", msg) }
func (l *recordingLogger) Warn(_ context.Context, msg string, _ ...logging.Field) { l.add("warn", msg) }
func (l *recordingLogger) Error(_ context.Context, msg string, _ ...logging.Field) {
	l.add("error", msg)
}

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range *l.records {
		if r.level == level {
			n++
		}
	}
	return n
}

type recordingMetrics struct {
	acquisitions []string
	disconnects  []bool
}

func (r *recordingMetrics) ObserveAcquisition(outcome string) {
	r.acquisitions = append(r.acquisitions, outcome)
}
func (r *recordingMetrics) ObserveDisconnect(ok bool) { r.disconnects = append(r.disconnects, ok) }

// panicConnector fails the test loudly if any connection is attempted.
type panicConnector struct{}

func (panicConnector) Connect(context.Context, engine.ConnectOptions) (engine.Session, error) {
	panic("Connect called")
}

func TestAcquireUsesReuseFirst(t *testing.T) {
	backend := enginetest.NewBackend()
	metrics := &recordingMetrics{}
	m := session.NewManager(enginetest.NewConnector(backend), session.Config{Hidden: true, StartDir: "/opt/model"},
		session.WithMetrics(metrics))

	s, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !m.IsLive(s) {
		t.Fatalf("IsLive(acquired) = false")
	}

	calls := backend.ConnectCalls()
	if len(calls) != 1 {
		t.Fatalf("connect calls = %d, want 1", len(calls))
	}
	want := engine.ConnectOptions{ReusePreviousSession: true, Hidden: true, StartDir: "/opt/model"}
	if calls[0] != want {
		t.Fatalf("primary options = %+v, want %+v", calls[0], want)
	}
	if len(metrics.acquisitions) != 1 || metrics.acquisitions[0] != observability.AcquisitionPrimary {
		t.Fatalf("acquisitions = %v, want [primary]", metrics.acquisitions)
	}
}

func TestAcquireFallsBackToNewSession(t *testing.T) {
	backend := enginetest.NewBackend()
	reuseErr := errors.New("no shared engine")
	backend.ConnectErr = func(opts engine.ConnectOptions) error {
		if opts.ReusePreviousSession {
			return reuseErr
		}
		return nil
	}
	log := newRecordingLogger()
	metrics := &recordingMetrics{}
	m := session.NewManager(enginetest.NewConnector(backend), session.Config{},
		session.WithLogger(log), session.WithMetrics(metrics))

	s, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if s == nil || !s.IsConnected() {
		t.Fatalf("Acquire returned %v, want a connected session", s)
	}

	calls := backend.ConnectCalls()
	if len(calls) != 2 || !calls[0].ReusePreviousSession || calls[1].ReusePreviousSession {
		t.Fatalf("connect calls = %+v, want reuse then new", calls)
	}
	if calls[1].StartDir != session.DefaultStartDir {
		t.Fatalf("fallback start dir = %q, want %q", calls[1].StartDir, session.DefaultStartDir)
	}
	if log.count("error") != 1 || log.count("info") != 1 {
		t.Fatalf("log records error=%d info=%d, want 1 and 1", log.count("error"), log.count("info"))
	}
	if len(metrics.acquisitions) != 1 || metrics.acquisitions[0] != observability.AcquisitionFallback {
		t.Fatalf("acquisitions = %v, want [fallback]", metrics.acquisitions)
	}
}

func TestAcquireFailsAfterTwoAttempts(t *testing.T) {
	backend := enginetest.NewBackend()
	reuseErr := errors.New("no shared engine")
	newErr := errors.New("license unavailable")
	backend.ConnectErr = func(opts engine.ConnectOptions) error {
		if opts.ReusePreviousSession {
			return reuseErr
		}
		return newErr
	}
	metrics := &recordingMetrics{}
	m := session.NewManager(enginetest.NewConnector(backend), session.Config{}, session.WithMetrics(metrics))

	s, err := m.Acquire(context.Background())
	if s != nil {
		t.Fatalf("Acquire returned session %v on failure", s)
	}
	if !errors.Is(err, session.ErrConnection) {
		t.Fatalf("Acquire error = %v, want ErrConnection", err)
	}
	if !errors.Is(err, reuseErr) || !errors.Is(err, newErr) {
		t.Fatalf("Acquire error = %v, want both causes", err)
	}
	var connErr *session.ConnectionError
	if !errors.As(err, &connErr) || connErr.Primary != reuseErr || connErr.Fallback != newErr {
		t.Fatalf("ConnectionError = %+v", connErr)
	}
	if got := len(backend.ConnectCalls()); got != 2 {
		t.Fatalf("connect calls = %d, want exactly 2", got)
	}
	if len(metrics.acquisitions) != 1 || metrics.acquisitions[0] != observability.AcquisitionFailed {
		t.Fatalf("acquisitions = %v, want [failed]", metrics.acquisitions)
	}
}

func TestDisconnectNilMakesNoRemoteCall(t *testing.T) {
	log := newRecordingLogger()
	metrics := &recordingMetrics{}
	m := session.NewManager(panicConnector{}, session.Config{}, session.WithLogger(log), session.WithMetrics(metrics))

	if !m.Disconnect(nil) {
		t.Fatalf("Disconnect(nil) = false, want true")
	}
	if log.count("warn") != 1 {
		t.Fatalf("warn records = %d, want 1", log.count("warn"))
	}
	if len(metrics.disconnects) != 0 {
		t.Fatalf("disconnect metrics recorded for a nil session: %v", metrics.disconnects)
	}
	if m.IsLive(nil) {
		t.Fatalf("IsLive(nil) = true")
	}
	if res := m.Terminate(context.Background(), nil); res.Attempted || res.Disconnected || res.ExitErr != nil {
		t.Fatalf("Terminate(nil) = %+v, want zero result", res)
	}
}

func TestDisconnectReportsSessionOutcome(t *testing.T) {
	connector := enginetest.NewConnector(nil)
	metrics := &recordingMetrics{}
	m := session.NewManager(connector, session.Config{}, session.WithMetrics(metrics))

	s, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	fail := false
	s.(*enginetest.Session).DisconnectResult = &fail

	if m.Disconnect(s) {
		t.Fatalf("Disconnect() = true, want the session's false")
	}
	if len(metrics.disconnects) != 1 || metrics.disconnects[0] {
		t.Fatalf("disconnect metrics = %v, want [false]", metrics.disconnects)
	}
}

func TestTerminateDisconnectsThenExits(t *testing.T) {
	backend := enginetest.NewBackend()
	m := session.NewManager(enginetest.NewConnector(backend), session.Config{})

	s, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	res := m.Terminate(context.Background(), s)
	if !res.Attempted || !res.Disconnected || res.ExitErr != nil {
		t.Fatalf("Terminate() = %+v, want attempted, disconnected, no exit error", res)
	}
	es := s.(*enginetest.Session)
	if es.Disconnects() != 1 || es.Exits() != 1 {
		t.Fatalf("disconnects=%d exits=%d, want 1 and 1", es.Disconnects(), es.Exits())
	}
	if backend.Running() != 0 {
		t.Fatalf("Running() = %d after Terminate, want 0", backend.Running())
	}
}

func TestTerminateSkipsDisconnectWhenAlreadyDetached(t *testing.T) {
	m := session.NewManager(enginetest.NewConnector(nil), session.Config{})
	s, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	es := s.(*enginetest.Session)
	es.Drop()

	res := m.Terminate(context.Background(), s)
	if !res.Disconnected || res.ExitErr != nil {
		t.Fatalf("Terminate() = %+v", res)
	}
	if es.Disconnects() != 0 || es.Exits() != 1 {
		t.Fatalf("disconnects=%d exits=%d, want 0 and 1", es.Disconnects(), es.Exits())
	}
}

func TestTerminateReportsExitFailureIndependently(t *testing.T) {
	backend := enginetest.NewBackend()
	backend.ExitErr = errors.New("engine refused to quit")
	log := newRecordingLogger()
	m := session.NewManager(enginetest.NewConnector(backend), session.Config{}, session.WithLogger(log))

	s, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	res := m.Terminate(context.Background(), s)
	if !res.Disconnected {
		t.Fatalf("Terminate().Disconnected = false, want exit failure not to affect it")
	}
	if !errors.Is(res.ExitErr, backend.ExitErr) {
		t.Fatalf("Terminate().ExitErr = %v, want %v", res.ExitErr, backend.ExitErr)
	}
	if log.count("error") != 1 {
		t.Fatalf("error records = %d, want 1", log.count("error"))
	}
}

func TestManagerOverGRPC(t *testing.T) {
	srv, err := enginetest.NewServer(nil)
	if err != nil {
		t.Fatalf("enginetest.NewServer: %v", err)
	}
	t.Cleanup(srv.Close)
	srv.Backend.ConnectErr = func(opts engine.ConnectOptions) error {
		if opts.ReusePreviousSession {
			return errors.New("nothing to attach to")
		}
		return nil
	}

	m := session.NewManager(engine.NewGRPCConnector(srv.Addr), session.Config{Hidden: true})
	s, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !m.IsLive(s) {
		t.Fatalf("IsLive() = false for a fresh gRPC session")
	}
	res := m.Terminate(context.Background(), s)
	if !res.Disconnected || res.ExitErr != nil {
		t.Fatalf("Terminate() = %+v", res)
	}
	if srv.Backend.Running() != 0 {
		t.Fatalf("Running() = %d, want 0", srv.Backend.Running())
	}
}
