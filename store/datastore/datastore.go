// Package datastore implements a blob store on an IPFS go-datastore,
// such as a flatfs directory tree or a LevelDB database.
package datastore

import (
	"context"
	"crypto/sha256"
	stderrs "errors"
	"fmt"
	"strings"
	"sync"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	dssync "github.com/ipfs/go-datastore/sync"
	flatfs "github.com/ipfs/go-ds-flatfs"
	levelds "github.com/ipfs/go-ds-leveldb"
	"github.com/pkg/errors"
	ldbopts "github.com/syndtr/goleveldb/leveldb/opt"
	"k8s.io/klog/v2"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/store"
)

var _ cncp.Store = &Store{}

// Store is a blob store on a go-datastore.
//
// Each blob has two keys,
// one for its identity and one for its payload,
// both derived from a hash of the encoded identifier.
// The keys use only characters that flatfs accepts.
// There is no transaction spanning the two keys.
// Write and Delete hold mu instead,
// so that of several racing Deletes exactly one reports success
// and a Write cannot outlive the Delete of its blob.
// Two Stores sharing one datastore do not coordinate.
type Store struct {
	d      ds.Datastore
	secret []byte

	mu sync.Mutex
}

const (
	identPrefix   = "/I"
	payloadPrefix = "/P"
)

// New produces a new Store on d,
// which must be safe for concurrent use
// (wrap it with go-datastore's sync.MutexWrap if it isn't).
func New(d ds.Datastore, secret []byte) *Store {
	return &Store{d: d, secret: secret}
}

// Close closes the underlying datastore.
func (s *Store) Close() error {
	return s.d.Close()
}

func hashOf(id cncp.Identifier) string {
	return fmt.Sprintf("%X", sha256.Sum256([]byte(id.String())))
}

func identKey(id cncp.Identifier) ds.Key   { return ds.RawKey(identPrefix + hashOf(id)) }
func payloadKey(id cncp.Identifier) ds.Key { return ds.RawKey(payloadPrefix + hashOf(id)) }

// Create implements cncp.Store.Create.
func (s *Store) Create(ctx context.Context, name string, length int64) (*cncp.Blob, error) {
	id, err := cncp.NewIdentifier(name, length)
	if err != nil {
		return nil, err
	}
	if err = s.d.Put(ctx, identKey(id), []byte(id.String())); err != nil {
		return nil, errors.Wrapf(err, "storing identity of %s", name)
	}
	return cncp.NewBlob(s, id), nil
}

func (s *Store) known(ctx context.Context, id cncp.Identifier) (bool, error) {
	ok, err := s.d.Has(ctx, identKey(id))
	return ok, errors.Wrapf(err, "checking identity of %s", id.Name())
}

// Blob implements cncp.Store.Blob.
func (s *Store) Blob(ctx context.Context, id cncp.Identifier) (*cncp.Blob, error) {
	ok, err := s.known(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(cncp.ErrNotFound, "blob %s", id.Name())
	}
	return cncp.NewBlob(s, id), nil
}

// Write implements cncp.Store.Write.
func (s *Store) Write(ctx context.Context, id cncp.Identifier, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.known(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(cncp.ErrNotFound, "blob %s", id.Name())
	}
	if int64(len(data)) != id.Len() {
		klog.FromContext(ctx).V(2).Info("Payload length differs from declared length", "blob", id.Name(), "declared", id.Len(), "actual", len(data))
	}
	return errors.Wrapf(s.d.Put(ctx, payloadKey(id), data), "storing payload of %s", id.Name())
}

// Read implements cncp.Store.Read.
func (s *Store) Read(ctx context.Context, id cncp.Identifier) ([]byte, error) {
	data, err := s.d.Get(ctx, payloadKey(id))
	if stderrs.Is(err, ds.ErrNotFound) {
		return nil, errors.Wrapf(cncp.ErrNotFound, "payload of %s", id.Name())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading payload of %s", id.Name())
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Exists implements cncp.Store.Exists.
func (s *Store) Exists(ctx context.Context, id cncp.Identifier) (bool, error) {
	ok, err := s.d.Has(ctx, payloadKey(id))
	return ok, errors.Wrapf(err, "checking payload of %s", id.Name())
}

// Delete implements cncp.Store.Delete.
func (s *Store) Delete(ctx context.Context, id cncp.Identifier) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.known(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	if err = s.d.Delete(ctx, identKey(id)); err != nil {
		return false, errors.Wrapf(err, "deleting identity of %s", id.Name())
	}
	if err = s.d.Delete(ctx, payloadKey(id)); err != nil {
		return false, errors.Wrapf(err, "deleting payload of %s", id.Name())
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

// Identifiers calls f on the identifier of every blob in the store,
// in no particular order.
// It lists keys only, since that is the one query every datastore supports.
func (s *Store) Identifiers(ctx context.Context, f func(cncp.Identifier) error) error {
	res, err := s.d.Query(ctx, query.Query{KeysOnly: true})
	if err != nil {
		return errors.Wrap(err, "querying keys")
	}
	entries, err := res.Rest()
	if err != nil {
		return errors.Wrap(err, "listing keys")
	}

	for _, e := range entries {
		if !strings.HasPrefix(e.Key, identPrefix) {
			continue
		}
		encoded, err := s.d.Get(ctx, ds.RawKey(e.Key))
		if stderrs.Is(err, ds.ErrNotFound) {
			// Deleted since the query.
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "reading %s", e.Key)
		}
		id, err := cncp.ParseIdentifier(string(encoded))
		if err != nil {
			return errors.Wrapf(err, "parsing identifier in %s", e.Key)
		}
		if err = f(id); err != nil {
			return err
		}
	}
	return nil
}

// Open opens a datastore of the given kind:
// "map" (in memory), "flatfs", or "leveldb".
// The last two keep their data under path.
func Open(kind, path string) (ds.Datastore, error) {
	switch kind {
	case "", "map":
		return dssync.MutexWrap(ds.NewMapDatastore()), nil

	case "flatfs":
		d, err := flatfs.CreateOrOpen(path, flatfs.NextToLast(2), false)
		return d, errors.Wrapf(err, "opening flatfs datastore at %s", path)

	case "leveldb":
		d, err := levelds.NewDatastore(path, &levelds.Options{
			Compression: ldbopts.NoCompression,
		})
		return d, errors.Wrapf(err, "opening leveldb datastore at %s", path)
	}
	return nil, fmt.Errorf("unknown datastore kind %s", kind)
}

func init() {
	store.Register("datastore", func(_ context.Context, conf map[string]interface{}) (cncp.Store, error) {
		kind, _ := conf["kind"].(string)
		path, _ := conf["path"].(string)
		if kind != "" && kind != "map" && path == "" {
			return nil, errors.New(`missing "path" parameter`)
		}
		secret, err := store.Secret(conf)
		if err != nil {
			return nil, err
		}
		d, err := Open(kind, path)
		if err != nil {
			return nil, err
		}
		return New(d, secret), nil
	})
}
