package testutil

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/cncp"
)

// DirectWrite checks a complete direct-write session:
// the staged bytes are invisible until EndDirectWrite,
// which reports success and commits them.
func DirectWrite(ctx context.Context, t *testing.T, s cncp.Store) {
	data := RandomBytes(5000)

	blob, err := s.Create(ctx, "direct.bin", int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}

	wc, err := blob.BeginDirectWrite(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if wc.Token() == "" {
		t.Fatal("direct write context has no token")
	}
	if _, err = wc.Write(data); err != nil {
		t.Fatal(err)
	}

	if ok, err := blob.Exists(ctx); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Fatal("staged direct write is visible before EndDirectWrite")
	}

	ok, err := blob.EndDirectWrite(ctx, wc)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("EndDirectWrite reported false for a committed write")
	}

	if ok, err := blob.Exists(ctx); err != nil {
		t.Fatal(err)
	} else if !ok {
		t.Error("blob does not exist after direct write")
	}

	got, err := blob.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(data, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

// DirectRead checks that BeginDirectRead exposes the stored payload.
func DirectRead(ctx context.Context, t *testing.T, s cncp.Store) {
	data := []byte("direct read payload")

	blob, err := s.Create(ctx, "read.txt", int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if err = blob.Write(ctx, data); err != nil {
		t.Fatal(err)
	}

	rc, err := blob.BeginDirectRead(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

// DirectWriteRejected checks that EndDirectWrite fails closed:
// a token for a different blob, or a tampered token,
// is rejected and nothing is written.
func DirectWriteRejected(ctx context.Context, t *testing.T, s cncp.Store) {
	target, err := s.Create(ctx, "target", 3)
	if err != nil {
		t.Fatal(err)
	}
	if err = target.Write(ctx, []byte("old")); err != nil {
		t.Fatal(err)
	}
	other, err := s.Create(ctx, "other", 3)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("mismatch", func(t *testing.T) {
		wc, err := other.BeginDirectWrite(ctx)
		if err != nil {
			t.Fatal(err)
		}
		wc.Write([]byte("new"))

		ok, err := target.EndDirectWrite(ctx, wc)
		if ok {
			t.Error("EndDirectWrite accepted a token for another blob")
		}
		if !errors.Is(err, cncp.ErrMismatch) {
			t.Errorf("got error %v, want ErrMismatch", err)
		}
	})

	t.Run("tampered", func(t *testing.T) {
		wc, err := target.BeginDirectWrite(ctx)
		if err != nil {
			t.Fatal(err)
		}
		tampered := cncp.NewWriteContext(wc.Token()+"x", wc.Len())
		tampered.Write([]byte("new"))

		ok, err := target.EndDirectWrite(ctx, tampered)
		if ok {
			t.Error("EndDirectWrite accepted a tampered token")
		}
		if !errors.Is(err, cncp.ErrInvalidToken) {
			t.Errorf("got error %v, want ErrInvalidToken", err)
		}
	})

	got, err := target.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "old" {
		t.Errorf("rejected direct writes changed payload to %q", got)
	}
	if ok, err := other.Exists(ctx); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Error("rejected direct write created a payload")
	}
}
