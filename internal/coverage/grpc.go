package coverage

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/radio-towers/core"
	"github.com/signalsfoundry/radio-towers/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "radiotowers.coverage.v1.CoverageService"
	// SolveMethod is the full method name of the Solve RPC.
	SolveMethod = "/" + ServiceName + "/Solve"
)

// CoverageServer is the server API for the coverage service. Requests and
// responses are google.protobuf.Struct documents; see DecodeSolveRequest and
// EncodeSolution for their shape.
type CoverageServer interface {
	Solve(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// CoverageServiceDesc describes the coverage service for grpc.ServiceRegistrar.
var CoverageServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CoverageServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Solve",
			Handler:    solveHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterCoverageServer registers srv on s.
func RegisterCoverageServer(s grpc.ServiceRegistrar, srv CoverageServer) {
	s.RegisterService(&CoverageServiceDesc, srv)
}

func solveHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoverageServer).Solve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: SolveMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CoverageServer).Solve(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCServer adapts a Service to CoverageServer.
type GRPCServer struct {
	svc *Service
	log logging.Logger
}

// NewGRPCServer constructs the gRPC adapter for svc.
func NewGRPCServer(svc *Service, log logging.Logger) *GRPCServer {
	if svc == nil {
		svc = NewService(nil, log)
	}
	if log == nil {
		log = logging.Noop()
	}
	return &GRPCServer{svc: svc, log: log}
}

// Solve decodes the request, solves it and encodes the solution. Errors are
// returned as gRPC status errors.
func (s *GRPCServer) Solve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := logging.FromContext(ctx, s.log)

	req, err := DecodeSolveRequest(in)
	if err != nil {
		log.Warn(ctx, "rejecting solve request", logging.Err(err))
		return nil, ToStatusError(err)
	}

	var opts []core.SolverOption
	if req.TieBreak != "" {
		tb, err := core.ParseTieBreak(req.TieBreak)
		if err != nil {
			return nil, ToStatusError(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		}
		opts = append(opts, core.WithTieBreak(tb))
	}

	sol, err := s.svc.Solve(ctx, req.Instance, opts...)
	if err != nil {
		return nil, ToStatusError(err)
	}

	out, err := EncodeSolution(sol)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// CoverageClient calls the coverage service over a gRPC connection.
type CoverageClient struct {
	cc grpc.ClientConnInterface
}

// NewCoverageClient wraps cc.
func NewCoverageClient(cc grpc.ClientConnInterface) *CoverageClient {
	return &CoverageClient{cc: cc}
}

// SolveStruct issues the raw Solve RPC.
func (c *CoverageClient) SolveStruct(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SolveMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Solve encodes req, issues the RPC and decodes the solution.
func (c *CoverageClient) Solve(ctx context.Context, req *SolveRequest, opts ...grpc.CallOption) (*core.Solution, error) {
	in, err := EncodeSolveRequest(req)
	if err != nil {
		return nil, err
	}
	out, err := c.SolveStruct(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return DecodeSolution(out)
}

// SolveInstance solves an in-memory instance remotely.
func (c *CoverageClient) SolveInstance(ctx context.Context, inst *core.Instance, tieBreak string, opts ...grpc.CallOption) (*core.Solution, error) {
	return c.Solve(ctx, &SolveRequest{Instance: inst, TieBreak: tieBreak}, opts...)
}

// SolveText solves an instance given in the text input format.
func (c *CoverageClient) SolveText(ctx context.Context, input, tieBreak string, opts ...grpc.CallOption) (*core.Solution, error) {
	return c.Solve(ctx, &SolveRequest{Input: input, TieBreak: tieBreak}, opts...)
}
