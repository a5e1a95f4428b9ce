package cncp

import (
	"context"
	"time"
)

// Blob is a handle pairing a Store with a blob Identifier.
// It holds no state of its own;
// every method delegates to the store.
type Blob struct {
	s  Store
	id Identifier
}

// NewBlob produces a handle for id in s.
// Store implementations use it in Create and Blob.
func NewBlob(s Store, id Identifier) *Blob {
	return &Blob{s: s, id: id}
}

func (b *Blob) ID() Identifier     { return b.id }
func (b *Blob) Name() string       { return b.id.Name() }
func (b *Blob) Len() int64         { return b.id.Len() }
func (b *Blob) Created() time.Time { return b.id.Created() }
func (b *Blob) Store() Store       { return b.s }
func (b *Blob) String() string     { return b.id.String() }

// Equal tells whether two handles name the same blob.
func (b *Blob) Equal(other *Blob) bool { return b.id.Equal(other.id) }

// Write stores data as the blob's payload.
func (b *Blob) Write(ctx context.Context, data []byte) error {
	return b.s.Write(ctx, b.id, data)
}

// Read returns the blob's payload.
func (b *Blob) Read(ctx context.Context) ([]byte, error) {
	return b.s.Read(ctx, b.id)
}

// Exists tells whether the blob has a payload.
func (b *Blob) Exists(ctx context.Context) (bool, error) {
	return b.s.Exists(ctx, b.id)
}

// Delete removes the blob from its store.
func (b *Blob) Delete(ctx context.Context) (bool, error) {
	return b.s.Delete(ctx, b.id)
}

// BeginDirectWrite starts a direct write of the blob's payload.
func (b *Blob) BeginDirectWrite(ctx context.Context) (*WriteContext, error) {
	return b.s.BeginDirectWrite(ctx, b.id)
}

// EndDirectWrite commits a direct write started with BeginDirectWrite.
func (b *Blob) EndDirectWrite(ctx context.Context, wc *WriteContext) (bool, error) {
	return b.s.EndDirectWrite(ctx, b.id, wc)
}

// BeginDirectRead starts a direct read of the blob's payload.
func (b *Blob) BeginDirectRead(ctx context.Context) (*ReadContext, error) {
	return b.s.BeginDirectRead(ctx, b.id)
}
