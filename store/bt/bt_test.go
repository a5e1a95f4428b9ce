package bt

import (
	"context"
	"testing"

	"cloud.google.com/go/bigtable"
	"cloud.google.com/go/bigtable/bttest"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/testutil"
)

func withTestStore(t *testing.T, f func(context.Context, *Store)) {
	ctx := context.Background()

	srv, err := bttest.NewServer("localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	const (
		project  = "project"
		instance = "instance"
		table    = "blobs"
	)

	admin, err := bigtable.NewAdminClient(ctx, project, instance, option.WithGRPCConn(conn))
	if err != nil {
		t.Fatal(err)
	}
	if err = CreateTable(ctx, admin, table); err != nil {
		t.Fatal(err)
	}

	client, err := bigtable.NewClient(ctx, project, instance, option.WithGRPCConn(conn))
	if err != nil {
		t.Fatal(err)
	}

	f(ctx, New(client.Open(table), []byte("secret")))
}

func TestStore(t *testing.T) {
	withTestStore(t, func(ctx context.Context, s *Store) {
		testutil.Store(ctx, t, s)
	})
}

func TestIdentifiers(t *testing.T) {
	withTestStore(t, func(ctx context.Context, s *Store) {
		var want []string
		for _, name := range []string{"x", "y", "z"} {
			blob, err := s.Create(ctx, name, 0)
			if err != nil {
				t.Fatal(err)
			}
			want = append(want, blob.ID().String())
		}

		var got []string
		err := s.Identifiers(ctx, func(id cncp.Identifier) error {
			got = append(got, id.String())
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
			t.Errorf("identifiers mismatch (-want +got):\n%s", diff)
		}
	})
}
