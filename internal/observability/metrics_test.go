package observability

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/signalsfoundry/radio-towers/core"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewServerCollector(reg)
	if err != nil {
		t.Fatalf("NewServerCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/radiotowers.coverage.v1.CoverageService/Solve"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("CoverageService", "Solve", "OK")); got != 1 {
		t.Fatalf("coverage_rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "coverage_rpc_duration_seconds", map[string]string{
		"service": "CoverageService",
		"method":  "Solve",
	}); count != 1 {
		t.Fatalf("coverage_rpc_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewServerCollector(reg)
	if err != nil {
		t.Fatalf("NewServerCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/radiotowers.coverage.v1.CoverageService/Solve"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("CoverageService", "Solve", "InvalidArgument")); got != 1 {
		t.Fatalf("coverage_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestCollectorsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewServerCollector(reg); err != nil {
		t.Fatalf("NewServerCollector: %v", err)
	}
	// Registering twice reuses the existing collectors.
	if _, err := NewServerCollector(reg); err != nil {
		t.Fatalf("second NewServerCollector: %v", err)
	}
	if _, err := NewSolverCollector(reg); err != nil {
		t.Fatalf("NewSolverCollector: %v", err)
	}
	if _, err := NewSolverCollector(reg); err != nil {
		t.Fatalf("second NewSolverCollector: %v", err)
	}
}

func TestSolverCollectorRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSolverCollector(reg)
	if err != nil {
		t.Fatalf("NewSolverCollector: %v", err)
	}

	collector.RecordSolve(core.SolveStats{
		Duration:              2 * time.Millisecond,
		Steps:                 2,
		TotalReceivers:        4,
		InitiallyCovered:      1,
		TransmittersIncreased: 2,
	})
	collector.RecordSolve(core.SolveStats{Err: fmt.Errorf("wrapped: %w", core.ErrInvalidInstance)})
	collector.RecordSolve(core.SolveStats{Err: fmt.Errorf("solve aborted: %w", context.DeadlineExceeded)})

	for outcome, want := range map[string]float64{
		OutcomeOK:      1,
		OutcomeInvalid: 1,
		OutcomeTimeout: 1,
	} {
		if got := testutil.ToFloat64(collector.Solves.WithLabelValues(outcome)); got != want {
			t.Fatalf("coverage_solves_total{outcome=%q} = %v, want %v", outcome, got, want)
		}
	}
	if count := histogramSampleCount(t, reg, "coverage_solve_duration_seconds", nil); count != 3 {
		t.Fatalf("coverage_solve_duration_seconds sample_count = %d, want 3", count)
	}
	// Only successful solves feed the shape histograms.
	if count := histogramSampleCount(t, reg, "coverage_greedy_steps", nil); count != 1 {
		t.Fatalf("coverage_greedy_steps sample_count = %d, want 1", count)
	}
	if count := histogramSampleCount(t, reg, "coverage_initial_coverage_ratio", nil); count != 1 {
		t.Fatalf("coverage_initial_coverage_ratio sample_count = %d, want 1", count)
	}
}

func TestSolverCollectorAsSolverRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSolverCollector(reg)
	if err != nil {
		t.Fatalf("NewSolverCollector: %v", err)
	}
	solver := core.NewSolver(core.WithMetricsRecorder(collector))
	inst := &core.Instance{
		Island: core.Island{Width: 6, Height: 6},
		Transmitters: []core.Transmitter{
			{ID: 1, Position: core.Position{X: 1, Y: 4}, Power: 1},
			{ID: 2, Position: core.Position{X: 3, Y: 4}, Power: 1},
		},
		Receivers: []core.Receiver{
			{ID: 1, Position: core.Position{X: 2, Y: 2}},
			{ID: 2, Position: core.Position{X: 4, Y: 2}},
		},
	}
	if _, err := solver.Solve(context.Background(), inst); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got := testutil.ToFloat64(collector.Solves.WithLabelValues(OutcomeOK)); got != 1 {
		t.Fatalf("coverage_solves_total{outcome=ok} = %v, want 1", got)
	}
}

func TestOutcome(t *testing.T) {
	for err, want := range map[error]string{
		nil:                       OutcomeOK,
		core.ErrInconsistentState: OutcomeInconsistent,
		context.Canceled:          OutcomeCanceled,
		fmt.Errorf("other"):       OutcomeError,
	} {
		if got := Outcome(err); got != want {
			t.Errorf("Outcome(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	server, err := NewServerCollector(reg)
	if err != nil {
		t.Fatalf("NewServerCollector: %v", err)
	}
	solver, err := NewSolverCollector(reg)
	if err != nil {
		t.Fatalf("NewSolverCollector: %v", err)
	}
	server.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	server.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)
	solver.RecordSolve(core.SolveStats{Steps: 1, TotalReceivers: 1})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"coverage_rpc_requests_total",
		"coverage_rpc_duration_seconds",
		"coverage_solves_total",
		"coverage_solve_duration_seconds",
		"coverage_greedy_steps",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		in                  string
		wantSvc, wantMethod string
	}{
		{"/radiotowers.coverage.v1.CoverageService/Solve", "CoverageService", "Solve"},
		{"CoverageService/Solve", "CoverageService", "Solve"},
		{"", "unknown", "unknown"},
		{"/Solve", "unknown", "unknown"},
	}
	for _, tc := range tests {
		svc, method := SplitMethod(tc.in)
		if svc != tc.wantSvc || method != tc.wantMethod {
			t.Errorf("SplitMethod(%q) = %q, %q; want %q, %q", tc.in, svc, method, tc.wantSvc, tc.wantMethod)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
