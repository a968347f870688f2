package observability

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/radio-towers/core"
)

// Solve outcome label values.
const (
	OutcomeOK           = "ok"
	OutcomeInvalid      = "invalid_instance"
	OutcomeInconsistent = "inconsistent_state"
	OutcomeTimeout      = "timeout"
	OutcomeCanceled     = "canceled"
	OutcomeError        = "error"
)

// SolverCollector exposes coverage-solver Prometheus metrics. It satisfies
// core.SolveMetricsRecorder.
type SolverCollector struct {
	gatherer prometheus.Gatherer

	Solves                *prometheus.CounterVec
	SolveDuration         prometheus.Histogram
	GreedySteps           prometheus.Histogram
	TransmittersIncreased prometheus.Histogram
	InitialCoverageRatio  prometheus.Histogram
}

// NewSolverCollector registers solver metrics against the provided registerer.
func NewSolverCollector(reg prometheus.Registerer) (*SolverCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	solves, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coverage_solves_total",
		Help: "Number of coverage solves, labeled by outcome.",
	}, []string{"outcome"}), "coverage_solves_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coverage_solve_duration_seconds",
		Help:    "Wall-clock duration of coverage solves.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}), "coverage_solve_duration_seconds")
	if err != nil {
		return nil, err
	}

	steps, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coverage_greedy_steps",
		Help:    "Number of power increases applied per successful solve.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}), "coverage_greedy_steps")
	if err != nil {
		return nil, err
	}

	increased, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coverage_transmitters_increased",
		Help:    "Number of distinct transmitters whose power grew per successful solve.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}), "coverage_transmitters_increased")
	if err != nil {
		return nil, err
	}

	ratio, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coverage_initial_coverage_ratio",
		Help:    "Fraction of receivers already covered at initial power per successful solve.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	}), "coverage_initial_coverage_ratio")
	if err != nil {
		return nil, err
	}

	return &SolverCollector{
		gatherer:              gatherer,
		Solves:                solves,
		SolveDuration:         duration,
		GreedySteps:           steps,
		TransmittersIncreased: increased,
		InitialCoverageRatio:  ratio,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SolverCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes the collector's registry over HTTP.
func (c *SolverCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

// RecordSolve implements core.SolveMetricsRecorder.
func (c *SolverCollector) RecordSolve(stats core.SolveStats) {
	if c == nil {
		return
	}
	outcome := Outcome(stats.Err)
	if c.Solves != nil {
		c.Solves.WithLabelValues(outcome).Inc()
	}
	if c.SolveDuration != nil {
		c.SolveDuration.Observe(stats.Duration.Seconds())
	}
	if outcome != OutcomeOK {
		return
	}
	if c.GreedySteps != nil {
		c.GreedySteps.Observe(float64(stats.Steps))
	}
	if c.TransmittersIncreased != nil {
		c.TransmittersIncreased.Observe(float64(stats.TransmittersIncreased))
	}
	if c.InitialCoverageRatio != nil && stats.TotalReceivers > 0 {
		c.InitialCoverageRatio.Observe(float64(stats.InitiallyCovered) / float64(stats.TotalReceivers))
	}
}

// Outcome classifies a solve error into a metric label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, core.ErrInvalidInstance):
		return OutcomeInvalid
	case errors.Is(err, core.ErrInconsistentState):
		return OutcomeInconsistent
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
