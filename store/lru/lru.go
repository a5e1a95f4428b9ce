// Package lru implements a blob store that acts as a least-recently-used cache for a nested blob store.
package lru

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/store"
)

var _ cncp.Store = &Store{}

// Store implements a memory-based least-recently-used cache of payloads for a blob store.
// Writes pass through to the underlying blob store
// and evict the cached payload.
//
// A Read racing a Write of the same blob may leave the older payload cached.
type Store struct {
	c *lru.Cache // encoded Identifier -> []byte
	s cncp.Store
}

// New produces a new Store backed by s and caching up to size payloads.
func New(s cncp.Store, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, errors.Wrap(err, "creating cache")
}

// Create implements cncp.Store.Create.
func (s *Store) Create(ctx context.Context, name string, length int64) (*cncp.Blob, error) {
	blob, err := s.s.Create(ctx, name, length)
	if err != nil {
		return nil, err
	}
	return cncp.NewBlob(s, blob.ID()), nil
}

// Blob implements cncp.Store.Blob.
func (s *Store) Blob(ctx context.Context, id cncp.Identifier) (*cncp.Blob, error) {
	if _, err := s.s.Blob(ctx, id); err != nil {
		return nil, err
	}
	return cncp.NewBlob(s, id), nil
}

// Write implements cncp.Store.Write.
func (s *Store) Write(ctx context.Context, id cncp.Identifier, data []byte) error {
	defer s.c.Remove(id.String())
	return s.s.Write(ctx, id, data)
}

// Read implements cncp.Store.Read.
func (s *Store) Read(ctx context.Context, id cncp.Identifier) ([]byte, error) {
	if got, ok := s.c.Get(id.String()); ok {
		return clone(got.([]byte)), nil
	}
	data, err := s.s.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	s.c.Add(id.String(), clone(data))
	return data, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Exists implements cncp.Store.Exists.
func (s *Store) Exists(ctx context.Context, id cncp.Identifier) (bool, error) {
	if s.c.Contains(id.String()) {
		return true, nil
	}
	return s.s.Exists(ctx, id)
}

// Delete implements cncp.Store.Delete.
func (s *Store) Delete(ctx context.Context, id cncp.Identifier) (bool, error) {
	defer s.c.Remove(id.String())
	return s.s.Delete(ctx, id)
}

// BeginDirectWrite implements cncp.Store.BeginDirectWrite.
func (s *Store) BeginDirectWrite(ctx context.Context, id cncp.Identifier) (*cncp.WriteContext, error) {
	return s.s.BeginDirectWrite(ctx, id)
}

// EndDirectWrite implements cncp.Store.EndDirectWrite.
func (s *Store) EndDirectWrite(ctx context.Context, id cncp.Identifier, wc *cncp.WriteContext) (bool, error) {
	ok, err := s.s.EndDirectWrite(ctx, id, wc)
	if ok {
		s.c.Remove(id.String())
	}
	return ok, err
}

// BeginDirectRead implements cncp.Store.BeginDirectRead.
func (s *Store) BeginDirectRead(ctx context.Context, id cncp.Identifier) (*cncp.ReadContext, error) {
	data, err := s.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	return cncp.NewReadContext(data), nil
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (cncp.Store, error) {
		var size int
		switch v := conf["size"].(type) {
		case int:
			size = v
		case float64: // from JSON
			size = int(v)
		case nil:
			return nil, errors.New(`missing "size" parameter`)
		default:
			return nil, fmt.Errorf(`"size" parameter has type %T`, v)
		}
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, size)
	})
}
