package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Zstd is a Compressor implementing Zstandard compression.
// It is safe for concurrent use.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd produces a new Zstd compressor.
func NewZstd() (*Zstd, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd decoder")
	}
	return &Zstd{enc: enc, dec: dec}, nil
}

// Compress implements Compressor.Compress.
func (z *Zstd) Compress(inp []byte) ([]byte, error) {
	return z.enc.EncodeAll(inp, nil), nil
}

// Uncompress implements Compressor.Uncompress.
func (z *Zstd) Uncompress(inp []byte) ([]byte, error) {
	return z.dec.DecodeAll(inp, nil)
}

// Flate is a Compressor implementing RFC1951 DEFLATE compression.
type Flate struct {
	Level int
}

// Compress implements Compressor.Compress.
func (f Flate) Compress(inp []byte) ([]byte, error) {
	level := f.Level
	if level < -2 || level > 9 {
		level = -1
	}
	buf := new(bytes.Buffer)
	w, err := flate.NewWriter(buf, level)
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(inp); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Uncompress implements Compressor.Uncompress.
func (f Flate) Uncompress(inp []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(inp))
	defer r.Close()
	return io.ReadAll(r)
}
