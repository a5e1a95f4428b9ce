// Package rpc implements a blob store served over gRPC.
//
// Server exposes any cncp.Store;
// Client is a cncp.Store that forwards every operation to a Server.
package rpc

import (
	"context"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/store"
)

var _ cncp.Store = &Client{}

// Client is a cncp.Store backed by a remote Server.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient produces a Client using the connection cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, id cncp.Identifier, in, out proto.Message) error {
	if !id.IsZero() {
		ctx = metadata.AppendToOutgoingContext(ctx, blobIDKey, id.String())
	}
	return fromStatus(c.cc.Invoke(ctx, fullMethod(method), in, out), method)
}

// fromStatus converts a gRPC status error back to a store error.
func fromStatus(err error, method string) error {
	if err == nil {
		return nil
	}
	st := status.Convert(err)
	switch st.Code() {
	case codes.NotFound:
		return errors.Wrap(cncp.ErrNotFound, st.Message())
	case codes.InvalidArgument:
		return errors.Wrap(cncp.ErrInvalidIdentifier, st.Message())
	case codes.PermissionDenied:
		return errors.Wrap(cncp.ErrInvalidToken, st.Message())
	case codes.FailedPrecondition:
		return errors.Wrap(cncp.ErrMismatch, st.Message())
	case codes.Unauthenticated:
		return errors.Wrap(cncp.ErrSigning, st.Message())
	}
	return errors.Wrapf(err, "calling %s", method)
}

// Create implements cncp.Store.Create.
func (c *Client) Create(ctx context.Context, name string, length int64) (*cncp.Blob, error) {
	req := &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"name":   structpb.NewStringValue(name),
			"length": structpb.NewStringValue(strconv.FormatInt(length, 10)),
		},
	}
	var resp wrapperspb.StringValue
	if err := c.invoke(ctx, "Create", cncp.Identifier{}, req, &resp); err != nil {
		return nil, err
	}
	id, err := cncp.ParseIdentifier(resp.GetValue())
	if err != nil {
		return nil, errors.Wrap(err, "parsing identifier from server")
	}
	return cncp.NewBlob(c, id), nil
}

// Blob implements cncp.Store.Blob.
func (c *Client) Blob(ctx context.Context, id cncp.Identifier) (*cncp.Blob, error) {
	if err := c.invoke(ctx, "Blob", id, &emptypb.Empty{}, &emptypb.Empty{}); err != nil {
		return nil, err
	}
	return cncp.NewBlob(c, id), nil
}

// Write implements cncp.Store.Write.
func (c *Client) Write(ctx context.Context, id cncp.Identifier, data []byte) error {
	return c.invoke(ctx, "Write", id, wrapperspb.Bytes(data), &emptypb.Empty{})
}

// Read implements cncp.Store.Read.
func (c *Client) Read(ctx context.Context, id cncp.Identifier) ([]byte, error) {
	var resp wrapperspb.BytesValue
	if err := c.invoke(ctx, "Read", id, &emptypb.Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.GetValue(), nil
}

// Exists implements cncp.Store.Exists.
func (c *Client) Exists(ctx context.Context, id cncp.Identifier) (bool, error) {
	var resp wrapperspb.BoolValue
	err := c.invoke(ctx, "Exists", id, &emptypb.Empty{}, &resp)
	return resp.GetValue(), err
}

// Delete implements cncp.Store.Delete.
func (c *Client) Delete(ctx context.Context, id cncp.Identifier) (bool, error) {
	var resp wrapperspb.BoolValue
	err := c.invoke(ctx, "Delete", id, &emptypb.Empty{}, &resp)
	return resp.GetValue(), err
}

// BeginDirectWrite implements cncp.Store.BeginDirectWrite.
// The token is minted and signed by the server.
func (c *Client) BeginDirectWrite(ctx context.Context, id cncp.Identifier) (*cncp.WriteContext, error) {
	var resp wrapperspb.StringValue
	if err := c.invoke(ctx, "BeginDirectWrite", id, &emptypb.Empty{}, &resp); err != nil {
		return nil, err
	}
	return cncp.NewWriteContext(resp.GetValue(), id.Len()), nil
}

// EndDirectWrite implements cncp.Store.EndDirectWrite.
// The staged bytes and the token go to the server,
// which verifies the token before committing anything.
func (c *Client) EndDirectWrite(ctx context.Context, id cncp.Identifier, wc *cncp.WriteContext) (bool, error) {
	if wc == nil {
		return false, errors.Wrap(cncp.ErrInvalidToken, "no write context")
	}
	ctx = metadata.AppendToOutgoingContext(ctx, tokenKey, wc.Token())

	var resp wrapperspb.BoolValue
	if err := c.invoke(ctx, "EndDirectWrite", id, wrapperspb.Bytes(wc.Bytes()), &resp); err != nil {
		return false, err
	}
	return resp.GetValue(), nil
}

// BeginDirectRead implements cncp.Store.BeginDirectRead.
func (c *Client) BeginDirectRead(ctx context.Context, id cncp.Identifier) (*cncp.ReadContext, error) {
	var resp wrapperspb.BytesValue
	if err := c.invoke(ctx, "BeginDirectRead", id, &emptypb.Empty{}, &resp); err != nil {
		return nil, err
	}
	return cncp.NewReadContext(resp.GetValue()), nil
}

// Dial connects to a Server at addr.
// Unless plaintext is true the connection uses TLS,
// verified against the host's root certificates.
// The connection is closed when the returned closer is.
func Dial(addr string, plaintext bool) (*Client, io.Closer, error) {
	creds := credentials.NewTLS(nil)
	if plaintext {
		creds = insecure.NewCredentials()
	}
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "connecting to %s", addr)
	}
	return NewClient(cc), cc, nil
}

func init() {
	store.Register("rpc", func(_ context.Context, conf map[string]interface{}) (cncp.Store, error) {
		addr, ok := conf["addr"].(string)
		if !ok {
			return nil, errors.New(`missing "addr" parameter`)
		}
		plaintext, _ := conf["insecure"].(bool)
		c, _, err := Dial(addr, plaintext)
		return c, err
	})
}
