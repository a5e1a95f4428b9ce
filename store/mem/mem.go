// Package mem implements an in-memory blob store.
package mem

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/store"
)

var _ cncp.Store = &Store{}

// Store is a memory-based implementation of a blob store.
//
// Identities and payloads live in two maps keyed by the encoded identifier.
// Each map is safe for concurrent use.
// Write and Delete also hold mu,
// so a Write cannot store a payload for an identity that a concurrent Delete removed.
// Readers take no lock and may observe a Delete half done
// (identity gone, payload not yet).
type Store struct {
	secret []byte

	mu    sync.Mutex
	blobs sync.Map // string -> cncp.Identifier
	data  sync.Map // string -> []byte
}

// New produces a new Store that signs direct-write tokens with secret.
func New(secret []byte) *Store {
	return &Store{secret: secret}
}

// Create implements cncp.Store.Create.
func (s *Store) Create(_ context.Context, name string, length int64) (*cncp.Blob, error) {
	id, err := cncp.NewIdentifier(name, length)
	if err != nil {
		return nil, err
	}
	s.blobs.Store(id.String(), id)
	return cncp.NewBlob(s, id), nil
}

// Blob implements cncp.Store.Blob.
func (s *Store) Blob(_ context.Context, id cncp.Identifier) (*cncp.Blob, error) {
	if _, ok := s.blobs.Load(id.String()); !ok {
		return nil, errors.Wrapf(cncp.ErrNotFound, "blob %s", id.Name())
	}
	return cncp.NewBlob(s, id), nil
}

// Write implements cncp.Store.Write.
func (s *Store) Write(ctx context.Context, id cncp.Identifier, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs.Load(id.String()); !ok {
		return errors.Wrapf(cncp.ErrNotFound, "blob %s", id.Name())
	}
	if int64(len(data)) != id.Len() {
		klog.FromContext(ctx).V(2).Info("Payload length differs from declared length", "blob", id.Name(), "declared", id.Len(), "actual", len(data))
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.data.Store(id.String(), buf)
	return nil
}

// Read implements cncp.Store.Read.
func (s *Store) Read(_ context.Context, id cncp.Identifier) ([]byte, error) {
	buf, ok := s.data.Load(id.String())
	if !ok {
		return nil, errors.Wrapf(cncp.ErrNotFound, "payload of %s", id.Name())
	}
	b := buf.([]byte)
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Exists implements cncp.Store.Exists.
func (s *Store) Exists(_ context.Context, id cncp.Identifier) (bool, error) {
	_, ok := s.data.Load(id.String())
	return ok, nil
}

// Delete implements cncp.Store.Delete.
func (s *Store) Delete(_ context.Context, id cncp.Identifier) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs.LoadAndDelete(id.String()); !ok {
		return false, nil
	}
	s.data.Delete(id.String())
	return true, nil
}

// BeginDirectWrite implements cncp.Store.BeginDirectWrite.
func (s *Store) BeginDirectWrite(_ context.Context, id cncp.Identifier) (*cncp.WriteContext, error) {
	return cncp.BeginDirectWrite(id, s.secret)
}

// EndDirectWrite implements cncp.Store.EndDirectWrite.
func (s *Store) EndDirectWrite(ctx context.Context, id cncp.Identifier, wc *cncp.WriteContext) (bool, error) {
	return cncp.EndDirectWrite(ctx, s, id, wc, s.secret)
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
	store.Register("mem", func(_ context.Context, conf map[string]interface{}) (cncp.Store, error) {
		secret, err := store.Secret(conf)
		if err != nil {
			return nil, err
		}
		return New(secret), nil
	})
}
