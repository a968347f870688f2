package coverage

import (
	"context"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/radio-towers/core"
	"github.com/signalsfoundry/radio-towers/internal/logging"
	"github.com/signalsfoundry/radio-towers/internal/observability"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type coverageTestEnv struct {
	ctx       context.Context
	client    *CoverageClient
	collector *observability.ServerCollector
}

func newCoverageTestEnv(t *testing.T) *coverageTestEnv {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	reg := prometheus.NewRegistry()
	collector, err := observability.NewServerCollector(reg)
	if err != nil {
		t.Fatalf("NewServerCollector: %v", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(logging.Noop()),
			collector.UnaryServerInterceptor(),
			TracingUnaryServerInterceptor(),
		),
	)
	RegisterCoverageServer(server, NewGRPCServer(NewService(nil, logging.Noop()), logging.Noop()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		server.GracefulStop()
		if err := <-serveErr; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})

	return &coverageTestEnv{
		ctx:       ctx,
		client:    NewCoverageClient(conn),
		collector: collector,
	}
}

func TestCoverageServiceEndToEnd(t *testing.T) {
	env := newCoverageTestEnv(t)

	tests := []struct {
		name        string
		input       string
		wantInitial int
		wantTotal   int
		wantInc     map[int]int
	}{
		{
			name:        "example",
			input:       exampleInput,
			wantInitial: 2,
			wantTotal:   3,
			wantInc:     map[int]int{4: 5},
		},
		{
			name:        "smallest increase wins",
			input:       "10 10\n1 1 6 1\n2 7 6 2\n1 4 8\n2 4 4\n",
			wantInitial: 0,
			wantTotal:   2,
			wantInc:     map[int]int{2: 3},
		},
		{
			name:        "more receivers wins on equal increase",
			input:       "6 6\n1 1 4 1\n2 3 4 1\n1 2 2\n2 4 2\n",
			wantInitial: 0,
			wantTotal:   2,
			wantInc:     map[int]int{2: 2},
		},
		{
			name:        "two increases",
			input:       "10 10\n1 1 4 1\n2 3 4 1\n3 6 3 1\n1 2 2\n2 4 2\n3 9 0\n",
			wantInitial: 0,
			wantTotal:   3,
			wantInc:     map[int]int{2: 2, 3: 3},
		},
		{
			name:        "already covered",
			input:       "5 5\n1 2 2 1\n1 3 3\n",
			wantInitial: 1,
			wantTotal:   1,
			wantInc:     map[int]int{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sol, err := env.client.SolveText(env.ctx, tc.input, "")
			if err != nil {
				t.Fatalf("SolveText: %v", err)
			}
			if sol.ReceiversWithInitialSignal != tc.wantInitial || sol.TotalReceivers != tc.wantTotal {
				t.Fatalf("coverage = %d/%d, want %d/%d",
					sol.ReceiversWithInitialSignal, sol.TotalReceivers, tc.wantInitial, tc.wantTotal)
			}
			if got := sol.Increases(); !reflect.DeepEqual(got, tc.wantInc) {
				t.Fatalf("increases = %v, want %v", got, tc.wantInc)
			}
		})
	}

	if got := testutil.ToFloat64(env.collector.RPCRequests.WithLabelValues("CoverageService", "Solve", codes.OK.String())); got != float64(len(tests)) {
		t.Fatalf("ok request count = %v, want %d", got, len(tests))
	}
}

func TestCoverageServiceSolveInstanceTieBreak(t *testing.T) {
	env := newCoverageTestEnv(t)

	sol, err := env.client.SolveInstance(env.ctx, tieInstance(), "first-seen")
	if err != nil {
		t.Fatalf("SolveInstance: %v", err)
	}
	if len(sol.Steps) == 0 || sol.Steps[0].TransmitterID != 2 {
		t.Fatalf("steps = %+v, want transmitter 2 raised first", sol.Steps)
	}
	want := []core.PowerIncrease{{TransmitterID: 1, NewPower: 1}, {TransmitterID: 2, NewPower: 1}}
	if !reflect.DeepEqual(sol.PowerIncreases, want) {
		t.Fatalf("PowerIncreases = %+v, want %+v", sol.PowerIncreases, want)
	}
}

func TestCoverageServiceInvalidInput(t *testing.T) {
	env := newCoverageTestEnv(t)

	_, err := env.client.SolveText(env.ctx, "10 10\n2 1 1 1\n1 2 2\n", "")
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Fatalf("SolveText code = %v (%v), want InvalidArgument", code, err)
	}

	_, err = env.client.SolveText(env.ctx, exampleInput, "coin-flip")
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Fatalf("SolveText(tie-break) code = %v (%v), want InvalidArgument", code, err)
	}

	if got := testutil.ToFloat64(env.collector.RPCRequests.WithLabelValues("CoverageService", "Solve", codes.InvalidArgument.String())); got != 2 {
		t.Fatalf("InvalidArgument request count = %v, want 2", got)
	}
}

func TestCoverageServiceEchoesRequestID(t *testing.T) {
	env := newCoverageTestEnv(t)

	ctx := metadata.AppendToOutgoingContext(env.ctx, requestIDMetadataKey, "req-42")
	var header metadata.MD
	if _, err := env.client.SolveText(ctx, exampleInput, "", grpc.Header(&header)); err != nil {
		t.Fatalf("SolveText: %v", err)
	}
	if got := header.Get(requestIDMetadataKey); len(got) != 1 || got[0] != "req-42" {
		t.Fatalf("response %s = %v, want [req-42]", requestIDMetadataKey, got)
	}
}
