package mem

import (
	"context"
	"testing"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/testutil"
)

func TestStore(t *testing.T) {
	secret, err := cncp.NewSecret()
	if err != nil {
		t.Fatal(err)
	}
	testutil.Store(context.Background(), t, New(secret))
}

func TestNoSecret(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	blob, err := s.Create(ctx, "x", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = blob.BeginDirectWrite(ctx); err == nil {
		t.Error("BeginDirectWrite succeeded without a signing secret")
	}
}

func TestWriteCopies(t *testing.T) {
	ctx := context.Background()
	s := New([]byte("secret"))

	blob, err := s.Create(ctx, "x", 3)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("abc")
	if err = blob.Write(ctx, data); err != nil {
		t.Fatal(err)
	}
	data[0] = 'z'

	got, err := blob.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "abc" {
		t.Errorf("got %q, want %q", got, "abc")
	}
}

func TestRaces(t *testing.T) {
	ctx := context.Background()
	s := New([]byte("secret"))
	t.Run("delete", func(t *testing.T) { testutil.DeleteRace(ctx, t, s, 16) })
	t.Run("write_delete", func(t *testing.T) { testutil.WriteDeleteRace(ctx, t, s, 200) })
}
