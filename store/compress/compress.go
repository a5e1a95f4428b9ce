// Package compress implements a blob store that compresses and uncompresses payloads
// on their way into and out of a nested store.
package compress

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/store"
)

var _ cncp.Store = &Store{}

// Store wraps a nested cncp.Store and a Compressor.
// Each stored payload starts with a one-byte header
// telling whether the rest is compressed.
// A payload that does not shrink is stored as is.
type Store struct {
	s cncp.Store
	c Compressor
}

// Compressor tells how to compress a payload on its way into a Store
// and uncompress it on the way out.
// Uncompress should be the inverse of Compress.
type Compressor interface {
	Compress([]byte) ([]byte, error)
	Uncompress([]byte) ([]byte, error)
}

const (
	hdrRaw        byte = 0
	hdrCompressed byte = 1
)

// New produces a new Store compressing payloads with c before storing them in s.
func New(s cncp.Store, c Compressor) *Store {
	return &Store{s: s, c: c}
}

func (s *Store) pack(data []byte) ([]byte, error) {
	cdata, err := s.c.Compress(data)
	if err != nil {
		return nil, errors.Wrap(err, "compressing payload")
	}
	if len(cdata) < len(data) {
		return append([]byte{hdrCompressed}, cdata...), nil
	}
	return append([]byte{hdrRaw}, data...), nil
}

func (s *Store) unpack(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, errors.New("stored payload has no header")
	}
	switch stored[0] {
	case hdrRaw:
		return stored[1:], nil
	case hdrCompressed:
		data, err := s.c.Uncompress(stored[1:])
		return data, errors.Wrap(err, "uncompressing payload")
	}
	return nil, fmt.Errorf("unknown payload header %d", stored[0])
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
	packed, err := s.pack(data)
	if err != nil {
		return err
	}
	return s.s.Write(ctx, id, packed)
}

// Read implements cncp.Store.Read.
func (s *Store) Read(ctx context.Context, id cncp.Identifier) ([]byte, error) {
	stored, err := s.s.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.unpack(stored)
	return data, errors.Wrapf(err, "reading %s", id.Name())
}

// Exists implements cncp.Store.Exists.
func (s *Store) Exists(ctx context.Context, id cncp.Identifier) (bool, error) {
	return s.s.Exists(ctx, id)
}

// Delete implements cncp.Store.Delete.
func (s *Store) Delete(ctx context.Context, id cncp.Identifier) (bool, error) {
	return s.s.Delete(ctx, id)
}

// BeginDirectWrite implements cncp.Store.BeginDirectWrite.
// The token comes from the nested store.
func (s *Store) BeginDirectWrite(ctx context.Context, id cncp.Identifier) (*cncp.WriteContext, error) {
	return s.s.BeginDirectWrite(ctx, id)
}

// EndDirectWrite implements cncp.Store.EndDirectWrite.
// The staged bytes are compressed and re-staged under the same token,
// which the nested store then verifies.
func (s *Store) EndDirectWrite(ctx context.Context, id cncp.Identifier, wc *cncp.WriteContext) (bool, error) {
	if wc == nil {
		return s.s.EndDirectWrite(ctx, id, nil)
	}
	packed, err := s.pack(wc.Bytes())
	if err != nil {
		return false, err
	}
	restaged := cncp.NewWriteContext(wc.Token(), wc.Len())
	restaged.Write(packed)
	return s.s.EndDirectWrite(ctx, id, restaged)
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
	store.Register("compress", func(ctx context.Context, conf map[string]interface{}) (cncp.Store, error) {
		var c Compressor
		switch alg, _ := conf["algorithm"].(string); alg {
		case "", "zstd":
			z, err := NewZstd()
			if err != nil {
				return nil, err
			}
			c = z
		case "flate":
			c = Flate{Level: -1}
		default:
			return nil, fmt.Errorf("unknown compression algorithm %s", alg)
		}
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, c), nil
	})
}
