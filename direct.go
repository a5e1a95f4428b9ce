package cncp

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// WriteContext stages the bytes of one direct write.
// It is owned by a single caller:
// create it with Store.BeginDirectWrite,
// write the payload to it,
// then hand it to Store.EndDirectWrite (or drop it to abandon the write).
// It is not safe for concurrent use.
type WriteContext struct {
	token  string
	length int64
	buf    bytes.Buffer
}

var _ io.Writer = (*WriteContext)(nil)

// NewWriteContext produces an empty WriteContext carrying an encoded WriteToken.
// The declared length is advisory.
//
// Stores produce these in BeginDirectWrite.
// Transports use it to re-stage a write on the far side.
func NewWriteContext(token string, length int64) *WriteContext {
	return &WriteContext{token: token, length: length}
}

// Token is the encoded, signed WriteToken authorizing this write.
func (wc *WriteContext) Token() string { return wc.token }

// Len is the length declared by the blob's identifier.
func (wc *WriteContext) Len() int64 { return wc.length }

// Write implements io.Writer.
func (wc *WriteContext) Write(p []byte) (int, error) {
	return wc.buf.Write(p)
}

// ReadFrom implements io.ReaderFrom.
func (wc *WriteContext) ReadFrom(r io.Reader) (int64, error) {
	return wc.buf.ReadFrom(r)
}

// Bytes returns the bytes staged so far.
func (wc *WriteContext) Bytes() []byte {
	return wc.buf.Bytes()
}

// ReadContext exposes a stored payload for reading.
// It is owned by a single caller and is not safe for concurrent use.
type ReadContext struct {
	*bytes.Reader
}

// NewReadContext produces a ReadContext over data.
func NewReadContext(data []byte) *ReadContext {
	return &ReadContext{Reader: bytes.NewReader(data)}
}

// Close implements io.Closer.
func (rc *ReadContext) Close() error { return nil }

// NewSecret produces a random signing secret.
func NewSecret() ([]byte, error) {
	var secret [32]byte
	_, err := rand.Read(secret[:])
	return secret[:], errors.Wrap(err, "generating secret")
}

// BeginDirectWrite mints a new upload session for id,
// signs a WriteToken for it with secret,
// and returns the WriteContext for staging the payload.
// Store implementations use it for their own BeginDirectWrite.
func BeginDirectWrite(id Identifier, secret []byte) (*WriteContext, error) {
	tok := WriteToken{BlobID: id.String(), UploadID: uuid.NewString()}
	encoded, err := tok.Encode(secret)
	if err != nil {
		return nil, errors.Wrapf(err, "signing write token for %s", id.Name())
	}
	return NewWriteContext(encoded, id.Len()), nil
}

// VerifyDirectWrite checks that wc carries a token signed with secret
// and naming id.
func VerifyDirectWrite(id Identifier, wc *WriteContext, secret []byte) (WriteToken, error) {
	if wc == nil {
		return WriteToken{}, errors.Wrap(ErrInvalidToken, "nil write context")
	}
	tok, err := DecodeWriteToken(wc.Token(), secret)
	if err != nil {
		return WriteToken{}, err
	}
	if tok.BlobID != id.String() {
		return WriteToken{}, errors.Wrapf(ErrMismatch, "token is for a different blob than %s", id.Name())
	}
	return tok, nil
}

// Writer is the part of Store that EndDirectWrite commits through.
type Writer interface {
	Write(ctx context.Context, id Identifier, data []byte) error
}

// EndDirectWrite verifies wc against id and secret,
// then commits its staged bytes with w.Write.
// It reports true only when the payload was committed.
// Store implementations use it for their own EndDirectWrite.
func EndDirectWrite(ctx context.Context, w Writer, id Identifier, wc *WriteContext, secret []byte) (bool, error) {
	logger := klog.FromContext(ctx)

	tok, err := VerifyDirectWrite(id, wc, secret)
	if err != nil {
		logger.Error(err, "Unable to complete direct write", "blob", id.Name())
		return false, err
	}
	if err = w.Write(ctx, id, wc.Bytes()); err != nil {
		logger.Error(err, "Unable to commit direct write", "blob", id.Name(), "upload", tok.UploadID)
		return false, errors.Wrapf(err, "committing direct write %s", tok.UploadID)
	}
	return true, nil
}
