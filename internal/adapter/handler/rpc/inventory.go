// Package rpc defines the inventory gRPC service. Messages are plain structs
// carried by a JSON codec instead of generated protobuf types.
package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "inventory.v1.InventoryService"

type MutationRequest struct {
	StoreID      string `json:"storeId"`
	ProductID    string `json:"productId"`
	Quantity     int32  `json:"quantity"`
	PublishEvent bool   `json:"publishEvent"`
}

type GetRequest struct {
	StoreID   string `json:"storeId"`
	ProductID string `json:"productId"`
}

type InventoryReply struct {
	StoreID        string    `json:"storeId"`
	ProductID      string    `json:"productId"`
	Quantity       int32     `json:"quantity"`
	LastUpdated    time.Time `json:"lastUpdated"`
	EventPublished bool      `json:"eventPublished"`
}

type InventoryServiceServer interface {
	Increment(context.Context, *MutationRequest) (*InventoryReply, error)
	Decrement(context.Context, *MutationRequest) (*InventoryReply, error)
	SetQuantity(context.Context, *MutationRequest) (*InventoryReply, error)
	Get(context.Context, *GetRequest) (*InventoryReply, error)
}

// UnimplementedInventoryServiceServer can be embedded to keep servers
// forward compatible.
type UnimplementedInventoryServiceServer struct{}

func (UnimplementedInventoryServiceServer) Increment(context.Context, *MutationRequest) (*InventoryReply, error) {
	return nil, status.Error(codes.Unimplemented, "method Increment not implemented")
}

func (UnimplementedInventoryServiceServer) Decrement(context.Context, *MutationRequest) (*InventoryReply, error) {
	return nil, status.Error(codes.Unimplemented, "method Decrement not implemented")
}

func (UnimplementedInventoryServiceServer) SetQuantity(context.Context, *MutationRequest) (*InventoryReply, error) {
	return nil, status.Error(codes.Unimplemented, "method SetQuantity not implemented")
}

func (UnimplementedInventoryServiceServer) Get(context.Context, *GetRequest) (*InventoryReply, error) {
	return nil, status.Error(codes.Unimplemented, "method Get not implemented")
}

func RegisterInventoryServiceServer(s grpc.ServiceRegistrar, srv InventoryServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InventoryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Increment", Handler: mutationHandler("Increment", InventoryServiceServer.Increment)},
		{MethodName: "Decrement", Handler: mutationHandler("Decrement", InventoryServiceServer.Decrement)},
		{MethodName: "SetQuantity", Handler: mutationHandler("SetQuantity", InventoryServiceServer.SetQuantity)},
		{MethodName: "Get", Handler: getHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inventory/v1/inventory.json",
}

type mutationMethod func(InventoryServiceServer, context.Context, *MutationRequest) (*InventoryReply, error)

func mutationHandler(name string, call mutationMethod) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(MutationRequest)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InventoryServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InventoryServiceServer), ctx, req.(*MutationRequest))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServiceServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Get"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServiceServer).Get(ctx, req.(*GetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type InventoryServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewInventoryServiceClient(cc grpc.ClientConnInterface) *InventoryServiceClient {
	return &InventoryServiceClient{cc: cc}
}

func (c *InventoryServiceClient) Increment(ctx context.Context, in *MutationRequest, opts ...grpc.CallOption) (*InventoryReply, error) {
	return c.invoke(ctx, "Increment", in, opts)
}

func (c *InventoryServiceClient) Decrement(ctx context.Context, in *MutationRequest, opts ...grpc.CallOption) (*InventoryReply, error) {
	return c.invoke(ctx, "Decrement", in, opts)
}

func (c *InventoryServiceClient) SetQuantity(ctx context.Context, in *MutationRequest, opts ...grpc.CallOption) (*InventoryReply, error) {
	return c.invoke(ctx, "SetQuantity", in, opts)
}

func (c *InventoryServiceClient) Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*InventoryReply, error) {
	return c.invoke(ctx, "Get", in, opts)
}

func (c *InventoryServiceClient) invoke(ctx context.Context, method string, in any, opts []grpc.CallOption) (*InventoryReply, error) {
	out := new(InventoryReply)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
