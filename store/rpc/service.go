package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The service is described by hand
// and its messages are protobuf well-known types,
// so no generated code is needed.
const serviceName = "cncp.Store"

// Metadata keys.
const (
	blobIDKey = "cncp-blob-id"
	tokenKey  = "cncp-write-token"
)

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

type unaryFunc func(*Server, context.Context, proto.Message) (proto.Message, error)

func unary(method string, newReq func() proto.Message, call unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(s, ctx, req.(proto.Message))
			})
		},
	}
}

func newEmpty() proto.Message  { return new(emptypb.Empty) }
func newBytes() proto.Message  { return new(wrapperspb.BytesValue) }
func newStruct() proto.Message { return new(structpb.Struct) }

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		unary("Create", newStruct, func(s *Server, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Create(ctx, in.(*structpb.Struct))
		}),
		unary("Blob", newEmpty, func(s *Server, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Blob(ctx, in.(*emptypb.Empty))
		}),
		unary("Write", newBytes, func(s *Server, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Write(ctx, in.(*wrapperspb.BytesValue))
		}),
		unary("Read", newEmpty, func(s *Server, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Read(ctx, in.(*emptypb.Empty))
		}),
		unary("Exists", newEmpty, func(s *Server, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Exists(ctx, in.(*emptypb.Empty))
		}),
		unary("Delete", newEmpty, func(s *Server, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.Delete(ctx, in.(*emptypb.Empty))
		}),
		unary("BeginDirectWrite", newEmpty, func(s *Server, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.BeginDirectWrite(ctx, in.(*emptypb.Empty))
		}),
		unary("EndDirectWrite", newBytes, func(s *Server, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.EndDirectWrite(ctx, in.(*wrapperspb.BytesValue))
		}),
		unary("BeginDirectRead", newEmpty, func(s *Server, ctx context.Context, in proto.Message) (proto.Message, error) {
			return s.BeginDirectRead(ctx, in.(*emptypb.Empty))
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cncp/store",
}

// Register registers srv with the gRPC server gs.
func Register(gs *grpc.Server, srv *Server) {
	gs.RegisterService(&serviceDesc, srv)
}
