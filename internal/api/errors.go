package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/signalsfoundry/commodity-pathsim/internal/codec"
	"github.com/signalsfoundry/commodity-pathsim/internal/session"
	"github.com/signalsfoundry/commodity-pathsim/internal/simulation"
)

// errBadRequest marks request binding failures.
var errBadRequest = errors.New("bad request")

// statusFromError maps service errors onto HTTP status codes. A failed task
// step outranks the cause it wraps, so an engine result that does not
// decode is a gateway failure rather than a client error.
func statusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, simulation.ErrRemoteInvocation):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrConnection):
		return http.StatusServiceUnavailable
	case errors.Is(err, errBadRequest),
		errors.Is(err, simulation.ErrInvalidInputs),
		errors.Is(err, codec.ErrShape):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		// client closed request
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Step      string `json:"step,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}
