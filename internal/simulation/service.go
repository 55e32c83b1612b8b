package simulation

import (
	"context"
	"time"

	"github.com/signalsfoundry/commodity-pathsim/internal/logging"
	"github.com/signalsfoundry/commodity-pathsim/internal/session"
	"github.com/signalsfoundry/commodity-pathsim/model"
)

// Service turns simulation requests into tasks. Each task leases a session
// from the pool for the length of its run, so tasks running in parallel
// always drive different engines.
type Service struct {
	pool    *session.Pool
	runner  *Runner
	script  Script
	log     logging.Logger
	metrics Recorder
	timeout time.Duration
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithServiceScript sets the engine commands used by every task.
func WithServiceScript(s Script) ServiceOption {
	return func(svc *Service) { svc.script = s }
}

// WithServiceLogger sets the logger handed to every task.
func WithServiceLogger(l logging.Logger) ServiceOption {
	return func(svc *Service) {
		if l != nil {
			svc.log = l
		}
	}
}

// WithServiceRecorder sets the recorder handed to every task.
func WithServiceRecorder(r Recorder) ServiceOption {
	return func(svc *Service) { svc.metrics = r }
}

// WithTaskTimeout bounds each run started by Submit. Zero disables it.
func WithTaskTimeout(d time.Duration) ServiceOption {
	return func(svc *Service) { svc.timeout = d }
}

// NewService builds a Service. A nil runner gets one slot per pool session.
func NewService(p *session.Pool, r *Runner, opts ...ServiceOption) *Service {
	if r == nil {
		r = NewRunner(int64(p.Size()))
	}
	svc := &Service{
		pool:   p,
		runner: r,
		script: DefaultScript(),
		log:    logging.Noop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// NewTask validates in, leases a live session and returns an unstarted task
// bound to it. It blocks while every pool session is leased. The lease ends
// when the task finishes, so the task must be run, directly or through a
// Runner.
func (s *Service) NewTask(ctx context.Context, in Inputs) (*Task, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	lease, err := s.pool.Lease(ctx)
	if err != nil {
		return nil, err
	}
	t, err := NewTask(lease.Session(), in,
		WithScript(s.script),
		WithTaskLogger(logging.LoggerFromContextOr(ctx, s.log)),
		WithRecorder(s.metrics),
	)
	if err != nil {
		lease.Release()
		return nil, err
	}
	t.release = lease.Release
	return t, nil
}

// Submit builds a task for in and hands it to the runner.
func (s *Service) Submit(ctx context.Context, in Inputs) (*Task, *Future, error) {
	t, err := s.NewTask(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	if s.timeout <= 0 {
		return t, s.runner.Submit(ctx, t), nil
	}
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	f := s.runner.Submit(runCtx, t)
	go func() {
		<-f.Done()
		cancel()
	}()
	return t, f, nil
}

// Simulate runs one task to completion.
func (s *Service) Simulate(ctx context.Context, in Inputs) (*model.SimulatedPath, error) {
	_, f, err := s.Submit(ctx, in)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// Close terminates every pooled session.
func (s *Service) Close(ctx context.Context) []session.TerminateResult {
	results := s.pool.Close(ctx)
	for _, res := range results {
		if res.Attempted {
			s.log.Info(ctx, "engine session terminated",
				logging.Bool("disconnected", res.Disconnected),
				logging.Err(res.ExitErr),
			)
		}
	}
	return results
}
