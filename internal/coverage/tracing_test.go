package coverage

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
)

func TestTracingUnaryServerInterceptorCreatesSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	interceptor := TracingUnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: SolveMethod}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		_, child := StartChildSpan(ctx, "coverage.Solve", attribute.Int("receivers", 3))
		child.End()
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	child, server := spans[0], spans[1]
	if server.Name() != "Coverage/CoverageService/Solve" {
		t.Fatalf("server span name = %q", server.Name())
	}
	if child.Parent().SpanID() != server.SpanContext().SpanID() {
		t.Fatalf("child span is not parented to the server span")
	}
}
