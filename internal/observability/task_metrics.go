package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TaskCollector exposes simulation task metrics.
type TaskCollector struct {
	gatherer prometheus.Gatherer

	TaskDuration  *prometheus.HistogramVec
	TasksInflight prometheus.Gauge
	StepFailures  *prometheus.CounterVec
}

// NewTaskCollector registers task metrics against the provided registerer.
func NewTaskCollector(reg prometheus.Registerer) (*TaskCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "simulation_task_duration_seconds",
		Help:    "Wall-clock duration of simulation task runs, labeled by outcome.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"outcome"})
	duration, err := registerHistogramVec(reg, duration, "simulation_task_duration_seconds")
	if err != nil {
		return nil, err
	}

	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simulation_tasks_inflight",
		Help: "Number of simulation tasks currently running.",
	})
	inflight, err = registerGauge(reg, inflight, "simulation_tasks_inflight")
	if err != nil {
		return nil, err
	}

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simulation_task_failures_total",
		Help: "Failed simulation tasks, labeled by the step that failed.",
	}, []string{"step"})
	failures, err = registerCounterVec(reg, failures, "simulation_task_failures_total")
	if err != nil {
		return nil, err
	}

	return &TaskCollector{
		gatherer:      gatherer,
		TaskDuration:  duration,
		TasksInflight: inflight,
		StepFailures:  failures,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *TaskCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// TaskStarted bumps the in-flight gauge.
func (c *TaskCollector) TaskStarted() {
	if c == nil || c.TasksInflight == nil {
		return
	}
	c.TasksInflight.Inc()
}

// TaskFinished records the run duration and releases the in-flight slot.
// failedStep is empty for a successful run.
func (c *TaskCollector) TaskFinished(d time.Duration, failedStep string) {
	if c == nil {
		return
	}
	if c.TasksInflight != nil {
		c.TasksInflight.Dec()
	}
	outcome := "succeeded"
	if failedStep != "" {
		outcome = "failed"
		if c.StepFailures != nil {
			c.StepFailures.WithLabelValues(failedStep).Inc()
		}
	}
	if c.TaskDuration != nil {
		c.TaskDuration.WithLabelValues(outcome).Observe(d.Seconds())
	}
}
