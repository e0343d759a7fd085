package render

import (
	"context"

	"github.com/ashureev/pjsk-cards/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type rendererServer interface {
	RenderCard(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error)
}

type rendererAdapter struct {
	r domain.Renderer
}

func (a rendererAdapter) RenderCard(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error) {
	img, err := a.r.Render(ctx, decodeState(req))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "render: %v", err)
	}
	return wrapperspb.Bytes(img), nil
}

var rendererServiceDesc = grpc.ServiceDesc{
	ServiceName: "pjsk.render.v1.Renderer",
	HandlerType: (*rendererServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RenderCard",
			Handler:    renderCardHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pjsk/render/v1/renderer.proto",
}

func renderCardHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(rendererServer).RenderCard(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RenderCardMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(rendererServer).RenderCard(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Register exposes r as the card rendering service on s.
func Register(s grpc.ServiceRegistrar, r domain.Renderer) {
	s.RegisterService(&rendererServiceDesc, rendererAdapter{r: r})
}
