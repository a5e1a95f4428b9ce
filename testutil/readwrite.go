package testutil

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"
	"testing/quick"
	"time"

	"github.com/bobg/cncp"
)

// ReadWrite permits testing a Store implementation
// by writing some data to a new blob,
// then reading it back out to make sure it's the same.
func ReadWrite(ctx context.Context, t *testing.T, s cncp.Store, data []byte) {
	blob, err := s.Create(ctx, "readwrite", int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}

	t1 := time.Now()
	if err = blob.Write(ctx, data); err != nil {
		t.Fatal(err)
	}
	t.Logf("wrote %d bytes in %s", len(data), time.Since(t1))

	t2 := time.Now()
	got, err := blob.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("read %d bytes in %s", len(got), time.Since(t2))

	if len(got) != len(data) {
		t.Errorf("got length %d, want %d", len(got), len(data))
	} else {
		for i := 0; i < len(got); i++ {
			if got[i] != data[i] {
				t.Fatalf("mismatch at position %d (of %d)", i, len(got))
			}
		}
	}

	// Overwriting replaces the payload.
	if err = blob.Write(ctx, []byte("replacement")); err != nil {
		t.Fatal(err)
	}
	got, err = blob.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "replacement" {
		t.Errorf("after overwrite got %q, want %q", got, "replacement")
	}
}

// RandomReadWrite writes random payloads to new blobs
// and checks that each reads back unchanged.
func RandomReadWrite(ctx context.Context, t *testing.T, s cncp.Store) {
	f := func(name string, data []byte) bool {
		blob, err := s.Create(ctx, name, int64(len(data)))
		if err != nil {
			t.Logf("creating %q: %s", name, err)
			return false
		}
		if err = blob.Write(ctx, data); err != nil {
			t.Logf("writing %q: %s", name, err)
			return false
		}
		got, err := s.Read(ctx, blob.ID())
		if err != nil {
			t.Logf("reading %q: %s", name, err)
			return false
		}
		return bytes.Equal(got, data)
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 20}); err != nil {
		t.Error(err)
	}
}

// Lifecycle checks that a blob is known but does not exist after Create,
// exists after Write,
// and is gone after exactly one successful Delete.
func Lifecycle(ctx context.Context, t *testing.T, s cncp.Store) {
	blob, err := s.Create(ctx, "lifecycle.bin", 4)
	if err != nil {
		t.Fatal(err)
	}
	id := blob.ID()

	got, err := s.Blob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !got.ID().Equal(id) {
		t.Errorf("got blob %s, want %s", got.ID(), id)
	}

	if ok, err := s.Exists(ctx, id); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Error("blob exists before it was written")
	}
	if _, err = s.Read(ctx, id); !errors.Is(err, cncp.ErrNotFound) {
		t.Errorf("reading unwritten blob: got error %v, want ErrNotFound", err)
	}
	if _, err = s.BeginDirectRead(ctx, id); !errors.Is(err, cncp.ErrNotFound) {
		t.Errorf("direct-reading unwritten blob: got error %v, want ErrNotFound", err)
	}

	if err = s.Write(ctx, id, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.Exists(ctx, id); err != nil {
		t.Fatal(err)
	} else if !ok {
		t.Error("blob does not exist after it was written")
	}

	if ok, err := s.Delete(ctx, id); err != nil {
		t.Fatal(err)
	} else if !ok {
		t.Error("first delete reported false")
	}
	if ok, err := s.Delete(ctx, id); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Error("second delete reported true")
	}
	if ok, err := s.Exists(ctx, id); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Error("blob exists after it was deleted")
	}
	if _, err = s.Blob(ctx, id); !errors.Is(err, cncp.ErrNotFound) {
		t.Errorf("getting deleted blob: got error %v, want ErrNotFound", err)
	}
}

// Unknown checks the behavior of a store toward an identifier it never issued.
func Unknown(ctx context.Context, t *testing.T, s cncp.Store) {
	id, err := cncp.NewIdentifier("stranger", 1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Blob(ctx, id); !errors.Is(err, cncp.ErrNotFound) {
		t.Errorf("Blob: got error %v, want ErrNotFound", err)
	}
	if err := s.Write(ctx, id, []byte{1}); !errors.Is(err, cncp.ErrNotFound) {
		t.Errorf("Write: got error %v, want ErrNotFound", err)
	}
	if ok, err := s.Exists(ctx, id); err != nil || ok {
		t.Errorf("Exists: got (%v, %v), want (false, nil)", ok, err)
	}
	if ok, err := s.Delete(ctx, id); err != nil || ok {
		t.Errorf("Delete: got (%v, %v), want (false, nil)", ok, err)
	}
}

// NegativeLength checks that Create refuses a negative declared length,
// since the identifier it would mint could not be parsed back.
func NegativeLength(ctx context.Context, t *testing.T, s cncp.Store) {
	blob, err := s.Create(ctx, "negative", -1)
	if !errors.Is(err, cncp.ErrInvalidIdentifier) {
		t.Errorf("got error %v, want ErrInvalidIdentifier", err)
	}
	if blob != nil {
		t.Errorf("got blob %s for a negative length", blob.ID())
	}
}

// RandomBytes produces n pseudorandom bytes from a fixed seed.
func RandomBytes(n int) []byte {
	rnd := rand.New(rand.NewSource(0))
	res := make([]byte, n)
	for i := 0; i < n; i++ {
		res[i] = byte(rnd.Intn(256))
	}
	return res
}
