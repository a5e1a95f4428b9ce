// Package testutil contains checks shared by the tests of every blob store implementation.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/bobg/cncp"
)

// Store runs every check in this package against s.
func Store(ctx context.Context, t *testing.T, s cncp.Store) {
	t.Run("readwrite", func(t *testing.T) { ReadWrite(ctx, t, s, RandomBytes(100000)) })
	t.Run("empty", func(t *testing.T) { ReadWrite(ctx, t, s, []byte{}) })
	t.Run("random", func(t *testing.T) { RandomReadWrite(ctx, t, s) })
	t.Run("lifecycle", func(t *testing.T) { Lifecycle(ctx, t, s) })
	t.Run("unknown", func(t *testing.T) { Unknown(ctx, t, s) })
	t.Run("negative_length", func(t *testing.T) { NegativeLength(ctx, t, s) })
	t.Run("direct_write", func(t *testing.T) { DirectWrite(ctx, t, s) })
	t.Run("direct_read", func(t *testing.T) { DirectRead(ctx, t, s) })
	t.Run("direct_write_rejected", func(t *testing.T) { DirectWriteRejected(ctx, t, s) })
	t.Run("concurrent", func(t *testing.T) { Concurrent(ctx, t, s, 16) })
}

// Concurrent writes and reads back n blobs from n goroutines at once.
func Concurrent(ctx context.Context, t *testing.T, s cncp.Store, n int) {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			data := []byte(fmt.Sprintf("payload %d", i))
			blob, err := s.Create(ctx, fmt.Sprintf("blob%d", i), int64(len(data)))
			if err != nil {
				return err
			}
			if err = blob.Write(ctx, data); err != nil {
				return err
			}
			got, err := blob.Read(ctx)
			if err != nil {
				return err
			}
			if string(got) != string(data) {
				return fmt.Errorf("blob %d: got %q, want %q", i, got, data)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Error(err)
	}
}

// DeleteRace deletes one blob from n goroutines at once
// and checks that exactly one of them reports a removal.
// It is not part of Store,
// since some backends cannot make that promise.
func DeleteRace(ctx context.Context, t *testing.T, s cncp.Store, n int) {
	blob, err := s.Create(ctx, "contested", 1)
	if err != nil {
		t.Fatal(err)
	}
	if err = blob.Write(ctx, []byte("x")); err != nil {
		t.Fatal(err)
	}

	removed := make([]bool, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			ok, err := blob.Delete(gctx)
			removed[i] = ok
			return err
		})
	}
	if err = g.Wait(); err != nil {
		t.Fatal(err)
	}

	var count int
	for _, ok := range removed {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("%d of %d racing deletes reported a removal, want 1", count, n)
	}
}

// WriteDeleteRace races a Write against a Delete of the same blob, rounds times,
// and checks that no payload survives a Delete that reported a removal.
func WriteDeleteRace(ctx context.Context, t *testing.T, s cncp.Store, rounds int) {
	for r := 0; r < rounds; r++ {
		blob, err := s.Create(ctx, fmt.Sprintf("race%d", r), 1)
		if err != nil {
			t.Fatal(err)
		}

		var (
			writeErr, deleteErr error
			removed             bool
			g                   errgroup.Group
		)
		g.Go(func() error {
			writeErr = blob.Write(ctx, []byte("x"))
			return nil
		})
		g.Go(func() error {
			removed, deleteErr = blob.Delete(ctx)
			return nil
		})
		g.Wait()

		if deleteErr != nil {
			t.Fatalf("round %d: deleting: %s", r, deleteErr)
		}
		if !removed {
			t.Fatalf("round %d: delete of a created blob reported no removal", r)
		}
		if writeErr != nil && !errors.Is(writeErr, cncp.ErrNotFound) {
			t.Fatalf("round %d: writing: %s", r, writeErr)
		}
		ok, err := blob.Exists(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Errorf("round %d: payload exists after its blob was deleted", r)
		}
	}
}
