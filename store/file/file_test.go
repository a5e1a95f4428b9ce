package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bobg/cncp/testutil"
)

func TestStore(t *testing.T) {
	dirname, err := os.MkdirTemp("", "filestore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	testutil.Store(context.Background(), t, New(dirname, []byte("secret")))
}

func TestReopen(t *testing.T) {
	ctx := context.Background()

	dirname := t.TempDir()

	s1 := New(dirname, []byte("secret"))
	blob, err := s1.Create(ctx, "persistent.txt", 5)
	if err != nil {
		t.Fatal(err)
	}
	if err = blob.Write(ctx, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	s2 := New(dirname, []byte("secret"))
	got, err := s2.Blob(ctx, blob.ID())
	if err != nil {
		t.Fatal(err)
	}
	data, err := got.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q, want %q", data, "hello")
	}

	leftovers, err := os.ReadDir(filepath.Join(dirname, "tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("found %d leftover temp files", len(leftovers))
	}
}

func TestRaces(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir(), []byte("secret"))
	t.Run("delete", func(t *testing.T) { testutil.DeleteRace(ctx, t, s, 16) })
	t.Run("write_delete", func(t *testing.T) { testutil.WriteDeleteRace(ctx, t, s, 50) })
}
