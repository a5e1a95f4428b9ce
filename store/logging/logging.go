// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/store"
)

var _ cncp.Store = &Store{}

// Store logs each operation on a nested store through the logger in the context.
// Successful operations log at V(1); failures log as errors.
type Store struct {
	s cncp.Store
}

// New produces a new Store wrapping s.
func New(s cncp.Store) *Store {
	return &Store{s: s}
}

func logResult(ctx context.Context, err error, op string, id cncp.Identifier, kv ...interface{}) {
	log := klog.FromContext(ctx)
	kv = append([]interface{}{"blob", id.Name(), "id", id.UniqueID()}, kv...)
	if err != nil {
		log.Error(err, "Store operation failed", append([]interface{}{"op", op}, kv...)...)
		return
	}
	log.V(1).Info(op, kv...)
}

func (s *Store) Create(ctx context.Context, name string, length int64) (*cncp.Blob, error) {
	blob, err := s.s.Create(ctx, name, length)
	if err != nil {
		klog.FromContext(ctx).Error(err, "Store operation failed", "op", "Create", "blob", name)
		return nil, err
	}
	logResult(ctx, nil, "Create", blob.ID(), "length", length)
	return cncp.NewBlob(s, blob.ID()), nil
}

func (s *Store) Blob(ctx context.Context, id cncp.Identifier) (*cncp.Blob, error) {
	_, err := s.s.Blob(ctx, id)
	logResult(ctx, err, "Blob", id)
	if err != nil {
		return nil, err
	}
	return cncp.NewBlob(s, id), nil
}

func (s *Store) Write(ctx context.Context, id cncp.Identifier, data []byte) error {
	err := s.s.Write(ctx, id, data)
	logResult(ctx, err, "Write", id, "bytes", len(data))
	return err
}

func (s *Store) Read(ctx context.Context, id cncp.Identifier) ([]byte, error) {
	data, err := s.s.Read(ctx, id)
	logResult(ctx, err, "Read", id, "bytes", len(data))
	return data, err
}

func (s *Store) Exists(ctx context.Context, id cncp.Identifier) (bool, error) {
	ok, err := s.s.Exists(ctx, id)
	logResult(ctx, err, "Exists", id, "exists", ok)
	return ok, err
}

func (s *Store) Delete(ctx context.Context, id cncp.Identifier) (bool, error) {
	ok, err := s.s.Delete(ctx, id)
	logResult(ctx, err, "Delete", id, "deleted", ok)
	return ok, err
}

func (s *Store) BeginDirectWrite(ctx context.Context, id cncp.Identifier) (*cncp.WriteContext, error) {
	wc, err := s.s.BeginDirectWrite(ctx, id)
	logResult(ctx, err, "BeginDirectWrite", id)
	return wc, err
}

func (s *Store) EndDirectWrite(ctx context.Context, id cncp.Identifier, wc *cncp.WriteContext) (bool, error) {
	ok, err := s.s.EndDirectWrite(ctx, id, wc)
	logResult(ctx, err, "EndDirectWrite", id, "committed", ok)
	return ok, err
}

func (s *Store) BeginDirectRead(ctx context.Context, id cncp.Identifier) (*cncp.ReadContext, error) {
	rc, err := s.s.BeginDirectRead(ctx, id)
	logResult(ctx, err, "BeginDirectRead", id)
	return rc, err
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (cncp.Store, error) {
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested), nil
	})
}
