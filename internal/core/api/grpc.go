package api

import (
	"context"
	"encoding/json"

	"github.com/solatis/tidegate/internal/action"
	"github.com/solatis/tidegate/internal/core/auth"
	"github.com/solatis/tidegate/internal/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

/*
 * The privileged Decide RPC carries the same JSON documents as the HTTP
 * endpoint. Messages are encoded with a "json" codec selected by the
 * application/grpc+json content subtype; the service descriptor is declared
 * by hand.
 */

const (
	// DecisionAPIServiceName is the fully qualified gRPC service name.
	DecisionAPIServiceName = "tidegate.v1.DecisionAPI"
	// DecideMethod is the full method name of Decide.
	DecideMethod = "/" + DecisionAPIServiceName + "/Decide"
	// CodecName is the content subtype clients must request.
	CodecName = "json"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

// DecisionAPIServer is the server API for the DecisionAPI service.
type DecisionAPIServer interface {
	Decide(ctx context.Context, in *types.DecisionInput) (*types.DecisionOutput, error)
}

// GRPCHandler implements DecisionAPIServer over a DecisionService.
type GRPCHandler struct {
	service *DecisionService
}

// NewGRPCHandler creates the gRPC handler.
func NewGRPCHandler(service *DecisionService) *GRPCHandler {
	return &GRPCHandler{service: service}
}

// Decide serves the privileged decision. The auth interceptor has already
// placed the site id in ctx.
func (h *GRPCHandler) Decide(ctx context.Context, in *types.DecisionInput) (*types.DecisionOutput, error) {
	siteID := auth.SiteIDFromContext(ctx)
	if siteID == "" {
		return nil, status.Error(codes.Internal, "missing site_id in context")
	}
	if in == nil {
		in = &types.DecisionInput{}
	}

	out, err := h.service.Decide(ctx, Request{
		Input:  *in,
		Caller: action.CallerPrivileged,
		SiteID: siteID,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return &out, nil
}

func decideHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(types.DecisionInput)
	if err := dec(in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if interceptor == nil {
		return srv.(DecisionAPIServer).Decide(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DecideMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DecisionAPIServer).Decide(ctx, req.(*types.DecisionInput))
	}
	return interceptor(ctx, in, info, handler)
}

// DecisionAPIServiceDesc is the grpc.ServiceDesc for the DecisionAPI service.
var DecisionAPIServiceDesc = grpc.ServiceDesc{
	ServiceName: DecisionAPIServiceName,
	HandlerType: (*DecisionAPIServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Decide",
			Handler:    decideHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tidegate/v1/decision_api",
}

// RegisterDecisionAPIServer registers srv on s.
func RegisterDecisionAPIServer(s grpc.ServiceRegistrar, srv DecisionAPIServer) {
	s.RegisterService(&DecisionAPIServiceDesc, srv)
}

// DecisionAPIClient calls Decide on a remote server.
type DecisionAPIClient struct {
	cc grpc.ClientConnInterface
}

// NewDecisionAPIClient creates a client over cc.
func NewDecisionAPIClient(cc grpc.ClientConnInterface) *DecisionAPIClient {
	return &DecisionAPIClient{cc: cc}
}

// Decide invokes the RPC with the JSON codec.
func (c *DecisionAPIClient) Decide(ctx context.Context, in *types.DecisionInput, opts ...grpc.CallOption) (*types.DecisionOutput, error) {
	out := new(types.DecisionOutput)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, DecideMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
