package datastore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/testutil"
)

func withTestStore(t *testing.T, kind string, f func(context.Context, *Store)) {
	d, err := Open(kind, filepath.Join(t.TempDir(), "ds"))
	if err != nil {
		t.Fatal(err)
	}
	s := New(d, []byte("secret"))
	defer s.Close()

	f(context.Background(), s)
}

func TestStore(t *testing.T) {
	for _, kind := range []string{"map", "flatfs", "leveldb"} {
		t.Run(kind, func(t *testing.T) {
			withTestStore(t, kind, func(ctx context.Context, s *Store) {
				testutil.Store(ctx, t, s)
			})
		})
	}
}

func TestIdentifiers(t *testing.T) {
	withTestStore(t, "flatfs", func(ctx context.Context, s *Store) {
		var want []string
		for _, name := range []string{"a", "b", "c"} {
			blob, err := s.Create(ctx, name, 1)
			if err != nil {
				t.Fatal(err)
			}
			if err = blob.Write(ctx, []byte(name)); err != nil {
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

func TestOpenUnknown(t *testing.T) {
	if _, err := Open("nonesuch", t.TempDir()); err == nil {
		t.Error("opening an unknown kind of datastore succeeded")
	}
}

func TestRaces(t *testing.T) {
	for _, kind := range []string{"map", "flatfs"} {
		t.Run(kind, func(t *testing.T) {
			withTestStore(t, kind, func(ctx context.Context, s *Store) {
				testutil.DeleteRace(ctx, t, s, 16)
				testutil.WriteDeleteRace(ctx, t, s, 50)
			})
		})
	}
}
