package simulation

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteInvocation matches every *RemoteInvocationError.
	ErrRemoteInvocation = errors.New("remote invocation failed")
	// ErrTaskAlreadyStarted is returned by a second Run on the same task.
	ErrTaskAlreadyStarted = errors.New("simulation task already started")
	// ErrInvalidInputs reports inputs the engine cannot be asked to simulate.
	ErrInvalidInputs = errors.New("invalid simulation inputs")
	// ErrNoSession is returned when a task is built without a session.
	ErrNoSession = errors.New("no engine session")
)

// RemoteInvocationError identifies the task step that failed.
type RemoteInvocationError struct {
	Step Step
	Err  error
}

func (e *RemoteInvocationError) Error() string {
	return fmt.Sprintf("simulation step %s: %v", e.Step, e.Err)
}

func (e *RemoteInvocationError) Unwrap() []error {
	return []error{ErrRemoteInvocation, e.Err}
}

// FailedStep returns the step recorded in err, or "" when err carries none.
func FailedStep(err error) Step {
	var rie *RemoteInvocationError
	if errors.As(err, &rie) {
		return rie.Step
	}
	return ""
}
