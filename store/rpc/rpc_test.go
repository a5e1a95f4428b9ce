package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/store/mem"
	"github.com/bobg/cncp/testutil"
)

func withClient(t *testing.T, f func(context.Context, *Client)) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	grpcSrv := grpc.NewServer()
	Register(grpcSrv, NewServer(mem.New([]byte("server secret"))))
	defer grpcSrv.Stop()

	l := bufconn.Listen(1 << 20)

	go grpcSrv.Serve(l)

	options := []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			return l.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}

	cc, err := grpc.NewClient("passthrough:///bufnet", options...)
	if err != nil {
		t.Fatal(err)
	}
	defer cc.Close()

	f(ctx, NewClient(cc))
}

func TestRPC(t *testing.T) {
	withClient(t, func(ctx context.Context, c *Client) {
		testutil.Store(ctx, t, c)
	})
}

func TestForgedToken(t *testing.T) {
	withClient(t, func(ctx context.Context, c *Client) {
		blob, err := c.Create(ctx, "forged", 1)
		if err != nil {
			t.Fatal(err)
		}

		// A token signed with a secret other than the server's.
		wc, err := cncp.BeginDirectWrite(blob.ID(), []byte("client secret"))
		if err != nil {
			t.Fatal(err)
		}
		wc.Write([]byte("x"))

		ok, err := blob.EndDirectWrite(ctx, wc)
		if ok {
			t.Error("server accepted a token it did not sign")
		}
		if !errors.Is(err, cncp.ErrInvalidToken) {
			t.Errorf("got error %v, want ErrInvalidToken", err)
		}
		if exists, err := blob.Exists(ctx); err != nil {
			t.Fatal(err)
		} else if exists {
			t.Error("forged direct write created a payload")
		}
	})
}

func TestMissingBlobID(t *testing.T) {
	withClient(t, func(ctx context.Context, c *Client) {
		err := c.cc.Invoke(ctx, fullMethod("Exists"), &emptypb.Empty{}, &emptypb.Empty{})
		if !errors.Is(fromStatus(err, "Exists"), cncp.ErrInvalidIdentifier) {
			t.Errorf("got error %v, want ErrInvalidIdentifier", err)
		}

		ctx = metadata.AppendToOutgoingContext(ctx, blobIDKey, "not an identifier")
		err = c.cc.Invoke(ctx, fullMethod("Exists"), &emptypb.Empty{}, &emptypb.Empty{})
		if !errors.Is(fromStatus(err, "Exists"), cncp.ErrInvalidIdentifier) {
			t.Errorf("got error %v, want ErrInvalidIdentifier", err)
		}
	})
}

func TestDial(t *testing.T) {
	for _, plaintext := range []bool{false, true} {
		t.Run(fmt.Sprintf("plaintext=%v", plaintext), func(t *testing.T) {
			c, closer, err := Dial("localhost:0", plaintext)
			if err != nil {
				t.Fatal(err)
			}
			if c == nil {
				t.Fatal("nil client")
			}
			if err = closer.Close(); err != nil {
				t.Error(err)
			}
		})
	}
}
