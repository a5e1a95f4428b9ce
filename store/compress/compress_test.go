package compress

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/bobg/cncp/store/mem"
	"github.com/bobg/cncp/testutil"
)

func compressors(t *testing.T) map[string]Compressor {
	z, err := NewZstd()
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Compressor{
		"zstd":  z,
		"flate": Flate{Level: 9},
	}
}

func TestStore(t *testing.T) {
	for name, c := range compressors(t) {
		t.Run(name, func(t *testing.T) {
			testutil.Store(context.Background(), t, New(mem.New([]byte("secret")), c))
		})
	}
}

func TestCompresses(t *testing.T) {
	ctx := context.Background()
	data := []byte(strings.Repeat("compressible ", 1000))

	for name, c := range compressors(t) {
		t.Run(name, func(t *testing.T) {
			nested := mem.New([]byte("secret"))
			s := New(nested, c)

			blob, err := s.Create(ctx, "repetitive.txt", int64(len(data)))
			if err != nil {
				t.Fatal(err)
			}
			if err = blob.Write(ctx, data); err != nil {
				t.Fatal(err)
			}

			stored, err := nested.Read(ctx, blob.ID())
			if err != nil {
				t.Fatal(err)
			}
			if len(stored) >= len(data) {
				t.Errorf("stored %d bytes for a %d-byte payload", len(stored), len(data))
			}
			if stored[0] != hdrCompressed {
				t.Errorf("got header %d, want %d", stored[0], hdrCompressed)
			}

			got, err := blob.Read(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, data) {
				t.Error("payload mismatch")
			}
		})
	}
}

func TestIncompressible(t *testing.T) {
	ctx := context.Background()
	data := testutil.RandomBytes(1000)

	z, err := NewZstd()
	if err != nil {
		t.Fatal(err)
	}
	nested := mem.New([]byte("secret"))
	s := New(nested, z)

	blob, err := s.Create(ctx, "noise.bin", int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if err = blob.Write(ctx, data); err != nil {
		t.Fatal(err)
	}
	stored, err := nested.Read(ctx, blob.ID())
	if err != nil {
		t.Fatal(err)
	}
	if stored[0] != hdrRaw || !bytes.Equal(stored[1:], data) {
		t.Error("incompressible payload was not stored raw")
	}
}
