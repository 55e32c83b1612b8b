package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Acquisition outcomes reported by the session manager.
const (
	AcquisitionPrimary  = "primary"
	AcquisitionFallback = "fallback"
	AcquisitionFailed   = "failed"
)

// EngineCollector bundles Prometheus metrics for the engine connection: RPC
// traffic seen by the client interceptor and session lifecycle outcomes.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	SessionAcquisitions *prometheus.CounterVec
	SessionDisconnects  *prometheus.CounterVec
}

// NewEngineCollector registers engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_rpc_requests_total",
		Help: "Total number of engine RPCs issued, labeled by method and gRPC status code.",
	}, []string{"method", "code"})
	requests, err := registerCounterVec(reg, requests, "engine_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engine_rpc_duration_seconds",
		Help:    "Engine RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"method"})
	durations, err = registerHistogramVec(reg, durations, "engine_rpc_duration_seconds")
	if err != nil {
		return nil, err
	}

	acquisitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_session_acquisitions_total",
		Help: "Engine session acquisitions, labeled by outcome (primary, fallback, failed).",
	}, []string{"outcome"})
	acquisitions, err = registerCounterVec(reg, acquisitions, "engine_session_acquisitions_total")
	if err != nil {
		return nil, err
	}

	disconnects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_session_disconnects_total",
		Help: "Engine session disconnects, labeled by result (ok, failed).",
	}, []string{"result"})
	disconnects, err = registerCounterVec(reg, disconnects, "engine_session_disconnects_total")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:            gatherer,
		RPCRequests:         requests,
		RPCDurations:        durations,
		SessionAcquisitions: acquisitions,
		SessionDisconnects:  disconnects,
	}, nil
}

// UnaryClientInterceptor records request counts and durations for engine RPCs.
func (c *EngineCollector) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, fullMethod string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, fullMethod, req, reply, cc, opts...)

		if c == nil {
			return err
		}

		_, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(method).Observe(time.Since(start).Seconds())
		}
		return err
	}
}

// ObserveAcquisition counts one session acquisition with the given outcome.
func (c *EngineCollector) ObserveAcquisition(outcome string) {
	if c == nil || c.SessionAcquisitions == nil {
		return
	}
	c.SessionAcquisitions.WithLabelValues(outcome).Inc()
}

// ObserveDisconnect counts one session disconnect.
func (c *EngineCollector) ObserveDisconnect(ok bool) {
	if c == nil || c.SessionDisconnects == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.SessionDisconnects.WithLabelValues(result).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
