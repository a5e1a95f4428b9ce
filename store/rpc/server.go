package rpc

import (
	"context"
	stderrs "errors"
	"io"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"k8s.io/klog/v2"

	"github.com/bobg/cncp"
)

// Server exposes a cncp.Store over gRPC.
// The store's signing secret stays on the server:
// clients receive tokens from BeginDirectWrite
// and hand them back with the staged bytes in EndDirectWrite.
type Server struct {
	s cncp.Store
}

// NewServer produces a Server for s.
// Use Register to attach it to a *grpc.Server.
func NewServer(s cncp.Store) *Server {
	return &Server{s: s}
}

func incoming(ctx context.Context, key string) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	vals := md.Get(key)
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

func blobID(ctx context.Context) (cncp.Identifier, error) {
	s, ok := incoming(ctx, blobIDKey)
	if !ok {
		return cncp.Identifier{}, status.Errorf(codes.InvalidArgument, "missing %s", blobIDKey)
	}
	id, err := cncp.ParseIdentifier(s)
	if err != nil {
		return cncp.Identifier{}, status.Error(codes.InvalidArgument, err.Error())
	}
	return id, nil
}

// toStatus converts a store error to a gRPC status error.
func toStatus(ctx context.Context, method string, err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	switch {
	case stderrs.Is(err, cncp.ErrNotFound):
		code = codes.NotFound
	case stderrs.Is(err, cncp.ErrInvalidIdentifier):
		code = codes.InvalidArgument
	case stderrs.Is(err, cncp.ErrInvalidToken):
		code = codes.PermissionDenied
	case stderrs.Is(err, cncp.ErrMismatch):
		code = codes.FailedPrecondition
	case stderrs.Is(err, cncp.ErrSigning):
		code = codes.Unauthenticated
	default:
		klog.FromContext(ctx).Error(err, "Store call failed", "method", method)
	}
	return status.Error(code, err.Error())
}

// Create implements the Create call.
// The request carries string fields "name" and "length".
func (s *Server) Create(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	fields := req.GetFields()
	name := fields["name"].GetStringValue()
	length, err := strconv.ParseInt(fields["length"].GetStringValue(), 10, 64)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "parsing length: %s", err)
	}
	blob, err := s.s.Create(ctx, name, length)
	if err != nil {
		return nil, toStatus(ctx, "Create", err)
	}
	return wrapperspb.String(blob.ID().String()), nil
}

// Blob implements the Blob call.
func (s *Server) Blob(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	id, err := blobID(ctx)
	if err != nil {
		return nil, err
	}
	if _, err = s.s.Blob(ctx, id); err != nil {
		return nil, toStatus(ctx, "Blob", err)
	}
	return &emptypb.Empty{}, nil
}

// Write implements the Write call.
func (s *Server) Write(ctx context.Context, req *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	id, err := blobID(ctx)
	if err != nil {
		return nil, err
	}
	if err = s.s.Write(ctx, id, req.GetValue()); err != nil {
		return nil, toStatus(ctx, "Write", err)
	}
	return &emptypb.Empty{}, nil
}

// Read implements the Read call.
func (s *Server) Read(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	id, err := blobID(ctx)
	if err != nil {
		return nil, err
	}
	data, err := s.s.Read(ctx, id)
	if err != nil {
		return nil, toStatus(ctx, "Read", err)
	}
	return wrapperspb.Bytes(data), nil
}

// Exists implements the Exists call.
func (s *Server) Exists(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	id, err := blobID(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := s.s.Exists(ctx, id)
	if err != nil {
		return nil, toStatus(ctx, "Exists", err)
	}
	return wrapperspb.Bool(ok), nil
}

// Delete implements the Delete call.
func (s *Server) Delete(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	id, err := blobID(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := s.s.Delete(ctx, id)
	if err != nil {
		return nil, toStatus(ctx, "Delete", err)
	}
	return wrapperspb.Bool(ok), nil
}

// BeginDirectWrite implements the BeginDirectWrite call.
// The response is the signed token.
func (s *Server) BeginDirectWrite(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	id, err := blobID(ctx)
	if err != nil {
		return nil, err
	}
	wc, err := s.s.BeginDirectWrite(ctx, id)
	if err != nil {
		return nil, toStatus(ctx, "BeginDirectWrite", err)
	}
	return wrapperspb.String(wc.Token()), nil
}

// EndDirectWrite implements the EndDirectWrite call.
// The request is the staged bytes; the token travels in metadata.
func (s *Server) EndDirectWrite(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	id, err := blobID(ctx)
	if err != nil {
		return nil, err
	}
	token, _ := incoming(ctx, tokenKey)

	wc := cncp.NewWriteContext(token, id.Len())
	if _, err = wc.Write(req.GetValue()); err != nil {
		return nil, toStatus(ctx, "EndDirectWrite", err)
	}
	ok, err := s.s.EndDirectWrite(ctx, id, wc)
	if err != nil {
		return nil, toStatus(ctx, "EndDirectWrite", err)
	}
	return wrapperspb.Bool(ok), nil
}

// BeginDirectRead implements the BeginDirectRead call.
func (s *Server) BeginDirectRead(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	id, err := blobID(ctx)
	if err != nil {
		return nil, err
	}
	rc, err := s.s.BeginDirectRead(ctx, id)
	if err != nil {
		return nil, toStatus(ctx, "BeginDirectRead", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, toStatus(ctx, "BeginDirectRead", err)
	}
	return wrapperspb.Bytes(data), nil
}
