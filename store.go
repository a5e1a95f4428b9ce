package cncp

import (
	"context"
	"errors"
)

// Store is a blob store.
// It issues blob identifiers
// and stores one bounded byte sequence - a "payload" - per identifier.
//
// A blob is "known" to a store once Create has issued its identifier.
// It "exists" only once a payload has been written for it.
//
// Payloads can be written and read in two ways:
// buffered (Write, Read),
// or direct (BeginDirectWrite/EndDirectWrite, BeginDirectRead).
// A direct write is staged in a WriteContext
// and committed only when EndDirectWrite verifies the context's signed token.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Create issues a new identifier and registers it as known.
	// It does not allocate payload storage.
	Create(ctx context.Context, name string, length int64) (*Blob, error)

	// Blob returns a handle for a known blob.
	// It returns an error wrapping ErrNotFound if id is not known.
	Blob(ctx context.Context, id Identifier) (*Blob, error)

	// Write stores data as the payload of id,
	// replacing any prior payload.
	// It returns an error wrapping ErrNotFound if id is not known.
	Write(ctx context.Context, id Identifier, data []byte) error

	// Read returns the payload of id.
	// It returns an error wrapping ErrNotFound if no payload is stored for id.
	Read(ctx context.Context, id Identifier) ([]byte, error)

	// Exists tells whether a payload is stored for id.
	Exists(ctx context.Context, id Identifier) (bool, error)

	// Delete forgets id and its payload.
	// It reports false if id was not known.
	Delete(ctx context.Context, id Identifier) (bool, error)

	// BeginDirectWrite starts a direct-write session for id,
	// returning a context holding a signed WriteToken and a byte sink.
	BeginDirectWrite(ctx context.Context, id Identifier) (*WriteContext, error)

	// EndDirectWrite verifies wc's token against id
	// and commits the bytes staged in wc.
	// It reports true only when the payload was committed.
	// On any failure nothing is written.
	EndDirectWrite(ctx context.Context, id Identifier, wc *WriteContext) (bool, error)

	// BeginDirectRead returns a context for reading the payload of id.
	// It returns an error wrapping ErrNotFound if no payload is stored for id.
	BeginDirectRead(ctx context.Context, id Identifier) (*ReadContext, error)
}

var (
	// ErrNotFound is the error returned when a blob or payload is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidIdentifier is the error returned when an encoded Identifier is malformed.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidToken is the error returned when an encoded WriteToken is malformed or tampered with.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSigning is the error returned when a token cannot be signed or verified.
	// It indicates a store configuration problem and is not worth retrying.
	ErrSigning = errors.New("signing failure")

	// ErrMismatch is the error returned when a WriteToken names a different blob than the one being written.
	ErrMismatch = errors.New("token does not match blob")
)
