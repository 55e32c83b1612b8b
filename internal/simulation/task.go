// Package simulation drives one engine session through the fixed command
// sequence that produces a simulated price path, and decodes the result.
package simulation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/commodity-pathsim/internal/codec"
	"github.com/signalsfoundry/commodity-pathsim/internal/engine"
	"github.com/signalsfoundry/commodity-pathsim/internal/logging"
	"github.com/signalsfoundry/commodity-pathsim/internal/observability"
	"github.com/signalsfoundry/commodity-pathsim/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Step names one stage of a task run.
type Step string

const (
	StepReseed        Step = "reseed"
	StepLoadConstants Step = "load-constants"
	StepSetParameters Step = "set-parameters"
	StepGeneratePaths Step = "generate-paths"
	StepPostProcess   Step = "post-process"
	StepFetchResult   Step = "fetch-result"
	StepDecode        Step = "decode"
)

// Steps lists every stage in execution order.
var Steps = []Step{
	StepReseed,
	StepLoadConstants,
	StepSetParameters,
	StepGeneratePaths,
	StepPostProcess,
	StepFetchResult,
	StepDecode,
}

// State is the lifecycle position of a Task.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Inputs are the caller-supplied initial conditions and model parameters.
type Inputs struct {
	InitialSpot             float64
	InitialConvenienceYield float64
	Parameters              model.ModelParameters
	IncludeTermStructure    bool
}

// Validate rejects non-finite initial conditions. Parameters are passed to
// the engine as given.
func (in Inputs) Validate() error {
	if math.IsNaN(in.InitialSpot) || math.IsInf(in.InitialSpot, 0) {
		return fmt.Errorf("%w: initial spot %v is not finite", ErrInvalidInputs, in.InitialSpot)
	}
	if math.IsNaN(in.InitialConvenienceYield) || math.IsInf(in.InitialConvenienceYield, 0) {
		return fmt.Errorf("%w: initial convenience yield %v is not finite", ErrInvalidInputs, in.InitialConvenienceYield)
	}
	return nil
}

// Recorder receives task run outcomes.
type Recorder interface {
	TaskStarted()
	TaskFinished(d time.Duration, failedStep string)
}

// Task binds one engine session to one set of inputs. It runs at most once.
type Task struct {
	ID string

	session engine.Session
	inputs  Inputs
	script  Script
	log     logging.Logger
	metrics Recorder
	// release runs once the task is finished with its session.
	release func()

	mu     sync.Mutex
	state  State
	result *model.SimulatedPath
	err    error
}

// TaskOption customises a Task.
type TaskOption func(*Task)

// WithScript overrides the default engine commands.
func WithScript(s Script) TaskOption {
	return func(t *Task) { t.script = s }
}

// WithTaskLogger sets the task's logger.
func WithTaskLogger(l logging.Logger) TaskOption {
	return func(t *Task) {
		if l != nil {
			t.log = l
		}
	}
}

// WithRecorder sets the recorder for run outcomes.
func WithRecorder(r Recorder) TaskOption {
	return func(t *Task) { t.metrics = r }
}

// NewTask returns a task in StateCreated. The caller must not share s with
// another running task.
func NewTask(s engine.Session, in Inputs, opts ...TaskOption) (*Task, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	t := &Task{
		ID:      uuid.NewString(),
		session: s,
		inputs:  in,
		script:  DefaultScript(),
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With(logging.String("task_id", t.ID), logging.String("session_id", s.ID()))
	return t, nil
}

// Inputs returns the inputs the task was built with.
func (t *Task) Inputs() Inputs { return t.inputs }

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Result returns the outcome of a finished run. Before the run finishes it
// returns nil and a nil error.
func (t *Task) Result() (*model.SimulatedPath, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Run drives the engine through every step and decodes the result. The
// first failing step aborts the run with a *RemoteInvocationError naming
// it. A cancelled ctx fails the step that was about to start.
func (t *Task) Run(ctx context.Context) (*model.SimulatedPath, error) {
	t.mu.Lock()
	if t.state != StateCreated {
		t.mu.Unlock()
		return nil, ErrTaskAlreadyStarted
	}
	t.state = StateRunning
	t.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, "simulation.task",
		attribute.String("task_id", t.ID),
		attribute.String("session_id", t.session.ID()),
		attribute.Bool("include_term_structure", t.inputs.IncludeTermStructure),
	)
	defer span.End()

	if t.metrics != nil {
		t.metrics.TaskStarted()
	}
	start := time.Now()
	t.log.Debug(ctx, "simulation task started")

	path, err := t.run(ctx)

	t.mu.Lock()
	if err != nil {
		t.state = StateFailed
		t.err = err
	} else {
		t.state = StateSucceeded
		t.result = path
	}
	t.mu.Unlock()
	t.releaseSession()

	elapsed := time.Since(start)
	if t.metrics != nil {
		t.metrics.TaskFinished(elapsed, string(FailedStep(err)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.log.Error(ctx, "simulation task failed",
			logging.String("step", string(FailedStep(err))),
			logging.String("parameters", t.inputs.Parameters.String()),
			logging.Err(err),
		)
		return nil, err
	}
	t.log.Info(ctx, "simulation task succeeded",
		logging.Int("steps", path.Len()),
		logging.Any("duration", elapsed),
	)
	return path, nil
}

// abandon fails a task that never started and gives up its session.
func (t *Task) abandon(err error) {
	t.mu.Lock()
	if t.state != StateCreated {
		t.mu.Unlock()
		return
	}
	t.state = StateFailed
	t.err = err
	t.mu.Unlock()
	t.releaseSession()
}

func (t *Task) releaseSession() {
	if t.release != nil {
		t.release()
	}
}

func (t *Task) run(ctx context.Context) (*model.SimulatedPath, error) {
	var (
		raw  model.Matrix
		path *model.SimulatedPath
	)
	stages := []struct {
		step Step
		fn   func(context.Context) error
	}{
		{StepReseed, func(ctx context.Context) error {
			return t.session.Eval(ctx, t.script.Reseed)
		}},
		{StepLoadConstants, func(ctx context.Context) error {
			return t.session.Eval(ctx, t.script.LoadConstants)
		}},
		{StepSetParameters, t.setParameters},
		{StepGeneratePaths, func(ctx context.Context) error {
			return t.session.Eval(ctx, t.script.RenderGeneratePaths(t.inputs.InitialSpot, t.inputs.InitialConvenienceYield))
		}},
		{StepPostProcess, func(ctx context.Context) error {
			return t.session.Eval(ctx, t.script.RenderPostProcess(t.inputs.IncludeTermStructure))
		}},
		{StepFetchResult, func(ctx context.Context) error {
			m, err := t.session.GetMatrix(ctx, t.script.ResultVariable)
			raw = m
			return err
		}},
		{StepDecode, func(context.Context) error {
			p, err := codec.DecodePath(raw)
			path = p
			return err
		}},
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, &RemoteInvocationError{Step: stage.step, Err: err}
		}
		stepCtx, span := observability.StartSpan(ctx, "simulation.step."+string(stage.step))
		err := stage.fn(stepCtx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if err != nil {
			return nil, &RemoteInvocationError{Step: stage.step, Err: err}
		}
	}
	return path, nil
}

func (t *Task) setParameters(ctx context.Context) error {
	if err := t.session.PutMatrix(ctx, t.script.ParameterVariable, codec.EncodeParameters(t.inputs.Parameters)); err != nil {
		return err
	}
	for _, cmd := range t.script.PrepareParameters {
		if err := t.session.Eval(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}
