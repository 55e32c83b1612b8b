// Package config loads the pathsim YAML configuration and applies
// environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/commodity-pathsim/internal/logging"
	"github.com/signalsfoundry/commodity-pathsim/internal/observability"
	"github.com/signalsfoundry/commodity-pathsim/internal/session"
	"github.com/signalsfoundry/commodity-pathsim/internal/simulation"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvEngineAddr  = "PATHSIM_ENGINE_ADDR"
	EnvHTTPAddr    = "PATHSIM_HTTP_ADDR"
	EnvMetricsAddr = "PATHSIM_METRICS_ADDR"
	EnvLogLevel    = "LOG_LEVEL"
	EnvLogFormat   = "LOG_FORMAT"

	EnvTracingEnabled     = "PATHSIM_TRACING_ENABLED"
	EnvTracingExporter    = "PATHSIM_TRACING_EXPORTER"
	EnvTracingServiceName = "PATHSIM_TRACING_SERVICE_NAME"
	EnvTracingSampleRatio = "PATHSIM_TRACING_SAMPLE_RATIO"
	EnvOTLPEndpoint       = "PATHSIM_OTLP_ENDPOINT"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig                `yaml:"server"`
	Engine    EngineConfig                `yaml:"engine"`
	Script    simulation.Script           `yaml:"script"`
	Runner    RunnerConfig                `yaml:"runner"`
	Logging   logging.Config              `yaml:"logging"`
	Tracing   observability.TracingConfig `yaml:"tracing"`
	RateLimit RateLimitConfig             `yaml:"ratelimit"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type EngineConfig struct {
	Addr           string        `yaml:"addr"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	StartDir       string        `yaml:"start_dir"`
	// Hidden is a pointer so an absent key keeps the default of true.
	Hidden *bool `yaml:"hidden"`
}

// Session returns the session manager settings.
func (e EngineConfig) Session() session.Config {
	hidden := true
	if e.Hidden != nil {
		hidden = *e.Hidden
	}
	return session.Config{Hidden: hidden, StartDir: e.StartDir}
}

type RunnerConfig struct {
	// MaxConcurrent is both the number of parallel tasks and the number of
	// engine sessions kept, one per task slot.
	MaxConcurrent int64 `yaml:"max_concurrent"`
	// TaskTimeout bounds one simulation run; zero means no bound.
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = ":9090"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Engine.Addr == "" {
		c.Engine.Addr = "localhost:50061"
	}
	if c.Engine.ConnectTimeout == 0 {
		c.Engine.ConnectTimeout = 2 * time.Minute
	}
	if c.Engine.CallTimeout == 0 {
		c.Engine.CallTimeout = 5 * time.Minute
	}
	if c.Engine.StartDir == "" {
		c.Engine.StartDir = session.DefaultStartDir
	}
	c.Script.ApplyDefaults()
	if c.Runner.MaxConcurrent == 0 {
		c.Runner.MaxConcurrent = simulation.DefaultMaxConcurrent
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "pathsim"
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = observability.ExporterStdout
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Engine.Addr == "" {
		return errors.New("config: engine.addr must be set")
	}
	if c.Engine.ConnectTimeout < 0 || c.Engine.CallTimeout < 0 {
		return errors.New("config: engine timeouts must not be negative")
	}
	if c.Runner.MaxConcurrent < 1 {
		return fmt.Errorf("config: runner.max_concurrent must be at least 1, got %d", c.Runner.MaxConcurrent)
	}
	if c.Runner.TaskTimeout < 0 {
		return errors.New("config: runner.task_timeout must not be negative")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("config: ratelimit values must not be negative")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("config: tracing.sample_ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "stdout", "otlp", "otlpgrpc":
	default:
		return fmt.Errorf("config: unsupported tracing.exporter %q", c.Tracing.Exporter)
	}
	if err := c.Script.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Load reads path (an empty path or a missing file yields the defaults),
// applies environment overrides, fills defaults and validates.
func Load(path string) (Config, error) {
	var c Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &c); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvEngineAddr); v != "" {
		c.Engine.Addr = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.Server.MetricsAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvTracingEnabled); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvTracingEnabled, err)
		}
		c.Tracing.Enabled = enabled
	}
	if v := os.Getenv(EnvTracingExporter); v != "" {
		c.Tracing.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv(EnvTracingServiceName); v != "" {
		c.Tracing.ServiceName = v
	}
	if v := os.Getenv(EnvTracingSampleRatio); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvTracingSampleRatio, err)
		}
		c.Tracing.SampleRatio = ratio
	}
	if v := os.Getenv(EnvOTLPEndpoint); v != "" {
		c.Tracing.Endpoint = v
	}
	return nil
}
