// Package file implements a blob store as a file hierarchy.
package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/bobg/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/store"
)

var _ cncp.Store = &Store{}

// Store is a file-based implementation of a blob store.
//
// Each blob has an identity file beneath root/ids
// and, once written, a payload file beneath root/blobs.
// Both are named by the SHA-256 hash of the encoded identifier
// and sharded two levels deep by the first four hex digits.
// Payloads are written to root/tmp and renamed into place,
// so a reader never sees a partial payload.
type Store struct {
	root    string
	secret  []byte
	flocker flock.Locker
}

// New produces a new Store storing data beneath root.
func New(root string, secret []byte) *Store {
	return &Store{root: root, secret: secret}
}

func (s *Store) idroot() string   { return filepath.Join(s.root, "ids") }
func (s *Store) blobroot() string { return filepath.Join(s.root, "blobs") }
func (s *Store) tmproot() string  { return filepath.Join(s.root, "tmp") }
func (s *Store) lockpath() string { return filepath.Join(s.root, "lock") }

func shard(root string, id cncp.Identifier) string {
	sum := sha256.Sum256([]byte(id.String()))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(root, h[:2], h[2:4], h)
}

func (s *Store) idpath(id cncp.Identifier) string   { return shard(s.idroot(), id) }
func (s *Store) blobpath(id cncp.Identifier) string { return shard(s.blobroot(), id) }

// Create implements cncp.Store.Create.
func (s *Store) Create(_ context.Context, name string, length int64) (*cncp.Blob, error) {
	id, err := cncp.NewIdentifier(name, length)
	if err != nil {
		return nil, err
	}
	if err = s.writeFile(s.idpath(id), []byte(id.String())); err != nil {
		return nil, errors.Wrapf(err, "recording identity of %s", name)
	}
	return cncp.NewBlob(s, id), nil
}

// Blob implements cncp.Store.Blob.
func (s *Store) Blob(_ context.Context, id cncp.Identifier) (*cncp.Blob, error) {
	ok, err := s.known(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(cncp.ErrNotFound, "blob %s", id.Name())
	}
	return cncp.NewBlob(s, id), nil
}

func (s *Store) known(id cncp.Identifier) (bool, error) {
	path := s.idpath(id)
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "statting %s", path)
	}
	return true, nil
}

// Write implements cncp.Store.Write.
// It holds the same lock as Delete,
// so a payload is never written for an identity that is concurrently removed.
func (s *Store) Write(ctx context.Context, id cncp.Identifier, data []byte) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return errors.Wrapf(err, "ensuring %s exists", s.root)
	}
	if err := s.flocker.Lock(s.lockpath()); err != nil {
		return errors.Wrap(err, "locking store")
	}
	defer s.flocker.Unlock(s.lockpath())

	ok, err := s.known(id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(cncp.ErrNotFound, "blob %s", id.Name())
	}
	if int64(len(data)) != id.Len() {
		klog.FromContext(ctx).V(2).Info("Payload length differs from declared length", "blob", id.Name(), "declared", id.Len(), "actual", len(data))
	}
	return errors.Wrapf(s.writeFile(s.blobpath(id), data), "writing payload of %s", id.Name())
}

// writeFile writes data to a temporary file and renames it to path.
func (s *Store) writeFile(path string, data []byte) error {
	if err := os.MkdirAll(s.tmproot(), 0755); err != nil {
		return errors.Wrapf(err, "ensuring %s exists", s.tmproot())
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "ensuring %s exists", dir)
	}

	f, err := os.CreateTemp(s.tmproot(), "blob")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpname := f.Name()
	defer os.Remove(tmpname)

	if _, err = f.Write(data); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", tmpname)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", tmpname)
	}
	return errors.Wrapf(os.Rename(tmpname, path), "renaming %s to %s", tmpname, path)
}

// Read implements cncp.Store.Read.
func (s *Store) Read(_ context.Context, id cncp.Identifier) ([]byte, error) {
	path := s.blobpath(id)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(cncp.ErrNotFound, "payload of %s", id.Name())
	}
	return data, errors.Wrapf(err, "reading %s", path)
}

// Exists implements cncp.Store.Exists.
func (s *Store) Exists(_ context.Context, id cncp.Identifier) (bool, error) {
	path := s.blobpath(id)
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "statting %s", path)
	}
	return true, nil
}

// Delete implements cncp.Store.Delete.
// The identity file is removed under a file lock,
// so of two racing deletes only one reports true.
func (s *Store) Delete(_ context.Context, id cncp.Identifier) (bool, error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return false, errors.Wrapf(err, "ensuring %s exists", s.root)
	}
	if err := s.flocker.Lock(s.lockpath()); err != nil {
		return false, errors.Wrap(err, "locking store")
	}
	defer s.flocker.Unlock(s.lockpath())

	err := os.Remove(s.idpath(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "removing identity of %s", id.Name())
	}

	err = os.Remove(s.blobpath(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return true, errors.Wrapf(err, "removing payload of %s", id.Name())
	}
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
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (cncp.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		secret, err := store.Secret(conf)
		if err != nil {
			return nil, err
		}
		return New(root, secret), nil
	})
}
