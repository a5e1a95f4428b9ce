package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/testutil"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	err := withTestStore(ctx, func(s *Store) error {
		testutil.Store(ctx, t, s)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestIdentifiers(t *testing.T) {
	ctx := context.Background()
	err := withTestStore(ctx, func(s *Store) error {
		var want []string
		for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
			blob, err := s.Create(ctx, name, 0)
			if err != nil {
				return err
			}
			want = append(want, blob.ID().String())
		}
		if _, err := s.Delete(ctx, mustParse(t, want[1])); err != nil {
			return err
		}
		want = append(want[:1], want[2:]...)

		var got []string
		err := s.Identifiers(ctx, func(id cncp.Identifier) error {
			got = append(got, id.String())
			return nil
		})
		if err != nil {
			return err
		}

		if diff := cmp.Diff(want, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
			t.Errorf("identifiers mismatch (-want +got):\n%s", diff)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func mustParse(t *testing.T, s string) cncp.Identifier {
	id, err := cncp.ParseIdentifier(s)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func withTestStore(ctx context.Context, fn func(*Store) error) error {
	f, err := os.CreateTemp("", "cncpsqlite3test")
	if err != nil {
		return err
	}

	tmpfile := f.Name()
	f.Close()
	defer os.Remove(tmpfile)

	db, err := sql.Open("sqlite3", tmpfile)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db, []byte("secret"))
	if err != nil {
		return err
	}

	return fn(s)
}

func TestWriteAfterDelete(t *testing.T) {
	ctx := context.Background()
	err := withTestStore(ctx, func(s *Store) error {
		blob, err := s.Create(ctx, "gone", 1)
		if err != nil {
			return err
		}
		if _, err = blob.Delete(ctx); err != nil {
			return err
		}
		if err = s.Write(ctx, blob.ID(), []byte("x")); !stderrs.Is(err, cncp.ErrNotFound) {
			t.Errorf("got error %v writing a deleted blob, want ErrNotFound", err)
		}
		ok, err := blob.Exists(ctx)
		if err != nil {
			return err
		}
		if ok {
			t.Error("payload exists for a deleted blob")
		}

		testutil.WriteDeleteRace(ctx, t, s, 50)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
