// Package api exposes path simulation over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/signalsfoundry/commodity-pathsim/internal/logging"
	"github.com/signalsfoundry/commodity-pathsim/internal/simulation"
	"golang.org/x/time/rate"
)

// Simulator is the part of simulation.Service the handlers need.
type Simulator interface {
	Submit(ctx context.Context, in simulation.Inputs) (*simulation.Task, *simulation.Future, error)
}

// Config tunes the router.
type Config struct {
	// RequestsPerSecond and Burst bound simulation requests; zero disables
	// the limit.
	RequestsPerSecond float64
	Burst             int
}

// Handler serves the simulation endpoints.
type Handler struct {
	sim Simulator
	log logging.Logger
}

// NewRouter builds the gin engine with all middleware and routes.
func NewRouter(sim Simulator, cfg Config, log logging.Logger) *gin.Engine {
	if log == nil {
		log = logging.Noop()
	}
	h := &Handler{sim: sim, log: log}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(log), Tracing(), AccessLog())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1", RateLimit(limiter))
	v1.GET("/paths", h.getPaths)
	v1.POST("/paths", h.postPaths)
	return router
}

func (h *Handler) getPaths(c *gin.Context) {
	var req PathRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	h.simulate(c, req)
}

func (h *Handler) postPaths(c *gin.Context) {
	var req PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	h.simulate(c, req)
}

func (h *Handler) simulate(c *gin.Context, req PathRequest) {
	ctx := c.Request.Context()
	task, future, err := h.sim.Submit(ctx, req.Inputs())
	if err != nil {
		h.fail(c, err)
		return
	}
	path, err := future.Wait(ctx)
	if err != nil {
		future.Cancel()
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, NewPathResponse(task.ID, path))
}

func (h *Handler) fail(c *gin.Context, err error) {
	ctx := c.Request.Context()
	code := statusFromError(err)
	log := logging.LoggerFromContextOr(ctx, h.log)
	if code >= http.StatusInternalServerError {
		log.Error(ctx, "simulation request failed", logging.Int("status", code), logging.Err(err))
	} else {
		log.Warn(ctx, "simulation request rejected", logging.Int("status", code), logging.Err(err))
	}
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:     err.Error(),
		Step:      string(simulation.FailedStep(err)),
		RequestID: logging.RequestIDFromContext(ctx),
	})
}
