// Package coverage hosts the solve service shared by the CLI and the gRPC
// server, together with its gRPC surface.
package coverage

import (
	"context"
	"time"

	"github.com/signalsfoundry/radio-towers/core"
	"github.com/signalsfoundry/radio-towers/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Service validates instances and runs the solver under a span, a timeout
// and request-scoped logging.
type Service struct {
	solver  *core.Solver
	log     logging.Logger
	timeout time.Duration
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithTimeout bounds every solve. Zero disables the bound.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.timeout = d
	}
}

// NewService constructs a Service around solver. A nil solver gets the
// defaults of core.NewSolver.
func NewService(solver *core.Solver, log logging.Logger, opts ...ServiceOption) *Service {
	if solver == nil {
		solver = core.NewSolver()
	}
	if log == nil {
		log = logging.Noop()
	}
	s := &Service{solver: solver, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Solve validates inst and solves it. opts override the service solver's
// settings for this call only.
func (s *Service) Solve(ctx context.Context, inst *core.Instance, opts ...core.SolverOption) (*core.Solution, error) {
	log := logging.FromContext(ctx, s.log)

	solver := s.solver
	if len(opts) > 0 {
		solver = solver.With(opts...)
	}

	ctx, span := StartChildSpan(ctx, "coverage.Solve",
		attribute.String("tie_break", solver.TieBreak().String()),
	)
	defer span.End()

	if err := inst.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid instance")
		log.Warn(ctx, "rejecting invalid instance", logging.Err(err))
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("transmitters", len(inst.Transmitters)),
		attribute.Int("receivers", len(inst.Receivers)),
	)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	sol, err := solver.Solve(ctx, inst)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "solve failed")
		log.Error(ctx, "solve failed", logging.Err(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("receivers_with_initial_signal", sol.ReceiversWithInitialSignal),
		attribute.Int("steps", len(sol.Steps)),
		attribute.Int("transmitters_increased", len(sol.PowerIncreases)),
	)
	log.Info(ctx, "solve complete",
		logging.Int("receivers", sol.TotalReceivers),
		logging.Int("initially_covered", sol.ReceiversWithInitialSignal),
		logging.Int("steps", len(sol.Steps)),
		logging.Int("transmitters_increased", len(sol.PowerIncreases)),
		logging.String("duration", time.Since(start).String()),
	)
	return sol, nil
}
