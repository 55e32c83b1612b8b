package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/signalsfoundry/commodity-pathsim/internal/api"
	"github.com/signalsfoundry/commodity-pathsim/internal/config"
	"github.com/signalsfoundry/commodity-pathsim/internal/engine"
	"github.com/signalsfoundry/commodity-pathsim/internal/logging"
	"github.com/signalsfoundry/commodity-pathsim/internal/observability"
	"github.com/signalsfoundry/commodity-pathsim/internal/session"
	"github.com/signalsfoundry/commodity-pathsim/internal/simulation"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

func main() {
	configPath := flag.String("config", "configs/pathsim.yaml", "Path to the YAML configuration file")
	flag.Parse()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	ctx := context.Background()
	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.NewFromEnv().Error(ctx, "failed to load configuration", logging.String("path", *configPath), logging.Err(err))
		os.Exit(1)
	}
	log := logging.New(cfg.Logging)

	lis, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.Server.HTTPAddr), logging.Err(err))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, lis); err != nil {
		log.Error(ctx, "pathsim server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the simulation API on lis until ctx is cancelled, then shuts
// down the HTTP servers and terminates the engine session.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	if log == nil {
		log = logging.Noop()
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics, err := observability.NewEngineCollector(reg)
	if err != nil {
		return err
	}
	taskMetrics, err := observability.NewTaskCollector(reg)
	if err != nil {
		return err
	}

	connector := engine.NewGRPCConnector(cfg.Engine.Addr,
		grpc.WithChainUnaryInterceptor(engineMetrics.UnaryClientInterceptor()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	connector.CallTimeout = cfg.Engine.CallTimeout
	connector.ConnectTimeout = cfg.Engine.ConnectTimeout

	manager := session.NewManager(connector, cfg.Engine.Session(),
		session.WithLogger(log.With(logging.String("component", "session"))),
		session.WithMetrics(engineMetrics),
	)
	svc := simulation.NewService(
		session.NewPool(manager, int(cfg.Runner.MaxConcurrent)),
		simulation.NewRunner(cfg.Runner.MaxConcurrent),
		simulation.WithServiceScript(cfg.Script),
		simulation.WithServiceLogger(log.With(logging.String("component", "simulation"))),
		simulation.WithServiceRecorder(taskMetrics),
		simulation.WithTaskTimeout(cfg.Runner.TaskTimeout),
	)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(svc, api.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, log)
	httpSrv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, engineMetrics, log)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.Serve(lis)
	}()
	log.Info(ctx, "starting pathsim HTTP server",
		logging.String("addr", lis.Addr().String()),
		logging.String("engine", cfg.Engine.Addr),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	log.Info(context.Background(), "shutting down pathsim server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "HTTP server shutdown failed", logging.Err(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	svc.Close(shutdownCtx)
	return runErr
}

func serveMetrics(addr string, collector *observability.EngineCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
