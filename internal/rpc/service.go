package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

// serviceName matches the shape of "jobworker.v1.JobWorkerService"
// fully-qualified name, substituting this spec's domain.
const serviceName = "parallelrun.v1.PoolControl"

// PoolControlClient is the client API for the PoolControl service.
type PoolControlClient interface {
	Submit(ctx context.Context, in *SubmitRequest, opts ...grpc.CallOption) (*SubmitResponse, error)
	Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error)
	Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*ShutdownResponse, error)
	Kill(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type poolControlClient struct {
	cc grpc.ClientConnInterface
}

// NewPoolControlClient wraps a grpc.ClientConnInterface as a PoolControlClient.
func NewPoolControlClient(cc grpc.ClientConnInterface) PoolControlClient {
	return &poolControlClient{cc}
}

func (c *poolControlClient) Submit(ctx context.Context, in *SubmitRequest, opts ...grpc.CallOption) (*SubmitResponse, error) {
	out := new(SubmitResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Submit", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *poolControlClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Status", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *poolControlClient) Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*ShutdownResponse, error) {
	out := new(ShutdownResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Shutdown", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *poolControlClient) Kill(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Kill", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// PoolControlServer is the server API for the PoolControl service.
type PoolControlServer interface {
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Shutdown(context.Context, *emptypb.Empty) (*ShutdownResponse, error)
	Kill(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// RegisterPoolControlServer registers srv with s under the PoolControl
// ServiceDesc, the hand-authored stand-in for protoc-gen-go-grpc's
// generated registration call.
func RegisterPoolControlServer(s grpc.ServiceRegistrar, srv PoolControlServer) {
	s.RegisterService(&poolControlServiceDesc, srv)
}

func _PoolControl_Submit_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SubmitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PoolControlServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Submit"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PoolControlServer).Submit(ctx, req.(*SubmitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PoolControl_Status_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PoolControlServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Status"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PoolControlServer).Status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PoolControl_Shutdown_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PoolControlServer).Shutdown(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Shutdown"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PoolControlServer).Shutdown(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _PoolControl_Kill_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PoolControlServer).Kill(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Kill"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PoolControlServer).Kill(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// poolControlServiceDesc is the grpc.ServiceDesc for PoolControl, hand-built
// in place of protoc-gen-go-grpc's generated equivalent (see package doc).
var poolControlServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PoolControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: _PoolControl_Submit_Handler},
		{MethodName: "Status", Handler: _PoolControl_Status_Handler},
		{MethodName: "Shutdown", Handler: _PoolControl_Shutdown_Handler},
		{MethodName: "Kill", Handler: _PoolControl_Kill_Handler},
	},
	Metadata: "internal/rpc/service.go",
}
