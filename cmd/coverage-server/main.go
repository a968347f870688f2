// Command coverage-server exposes the coverage solver over gRPC and serves
// Prometheus metrics over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/signalsfoundry/radio-towers/core"
	"github.com/signalsfoundry/radio-towers/internal/config"
	"github.com/signalsfoundry/radio-towers/internal/coverage"
	"github.com/signalsfoundry/radio-towers/internal/logging"
	"github.com/signalsfoundry/radio-towers/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	grpcAddr := flag.String("grpc-addr", "", "TCP address the coverage gRPC server listens on (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coverage-server: %v\n", err)
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddr = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}

	log := logging.New(cfg.LoggerConfig())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "coverage server failed", logging.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then stops the gRPC and metrics servers.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingSettings(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	server, metrics, err := buildServer(cfg, log, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, metrics, log)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()
	log.Info(ctx, "starting coverage gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.String("tie_break", cfg.Solver.TieBreak),
	)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down coverage server")
		server.GracefulStop()
		<-serveErr
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = fmt.Errorf("serve gRPC: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

// buildServer wires the solver, collectors and interceptors onto a new gRPC
// server. The returned handler serves every metric registered on reg.
func buildServer(cfg config.Config, log logging.Logger, reg *prometheus.Registry) (*grpc.Server, http.Handler, error) {
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, nil, fmt.Errorf("register go collector: %w", err)
	}

	rpcCollector, err := observability.NewServerCollector(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise rpc metrics: %w", err)
	}
	solverCollector, err := observability.NewSolverCollector(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise solver metrics: %w", err)
	}

	solver := core.NewSolver(
		core.WithLogger(log),
		core.WithTieBreak(cfg.TieBreak()),
		core.WithMetricsRecorder(solverCollector),
	)
	svc := coverage.NewService(solver, log, coverage.WithTimeout(cfg.Solver.Timeout))

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			coverage.RequestIDUnaryServerInterceptor(log),
			rpcCollector.UnaryServerInterceptor(),
			coverage.TracingUnaryServerInterceptor(),
		),
	)
	coverage.RegisterCoverageServer(server, coverage.NewGRPCServer(svc, log))

	return server, rpcCollector.Handler(), nil
}

func serveMetrics(addr string, handler http.Handler, log logging.Logger) *http.Server {
	if addr == "" || handler == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
