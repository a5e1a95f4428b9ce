// Package pg implements a blob store in a Postgresql database.
package pg

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/lib/pq" // register the postgres type for sql.Open
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/store"
)

var _ cncp.Store = &Store{}

// Store is a Postgresql-based blob store.
type Store struct {
	db     *sql.DB
	secret []byte
}

// Schema is the SQL that New executes.
// It creates the `identities` and `payloads` tables if they do not exist.
// (If they do exist, they must have the columns and constraints described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS identities (
  id TEXT PRIMARY KEY NOT NULL,
  name TEXT NOT NULL,
  length BIGINT NOT NULL,
  created TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE TABLE IF NOT EXISTS payloads (
  id TEXT PRIMARY KEY NOT NULL REFERENCES identities (id) ON DELETE CASCADE,
  data BYTEA NOT NULL
);
`

// New produces a new Store using db for storage
// and secret for signing direct-write tokens.
// It expects to create tables `identities` and `payloads`,
// or for those tables already to exist with the correct schema.
// (See constant Schema.)
func New(ctx context.Context, db *sql.DB, secret []byte) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db, secret: secret}, errors.Wrap(err, "creating schema")
}

// Create implements cncp.Store.Create.
func (s *Store) Create(ctx context.Context, name string, length int64) (*cncp.Blob, error) {
	const q = `INSERT INTO identities (id, name, length, created) VALUES ($1, $2, $3, $4)`

	id, err := cncp.NewIdentifier(name, length)
	if err != nil {
		return nil, err
	}
	if _, err = s.db.ExecContext(ctx, q, id.String(), name, length, id.Created()); err != nil {
		return nil, errors.Wrapf(err, "inserting identity of %s", name)
	}
	return cncp.NewBlob(s, id), nil
}

func (s *Store) known(ctx context.Context, id cncp.Identifier) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM identities WHERE id = $1)`

	var ok bool
	err := s.db.QueryRowContext(ctx, q, id.String()).Scan(&ok)
	return ok, errors.Wrapf(err, "looking up %s", id.Name())
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
// The foreign key on payloads rejects a write to an unknown blob.
func (s *Store) Write(ctx context.Context, id cncp.Identifier, data []byte) error {
	const q = `INSERT INTO payloads (id, data)
		SELECT id, $2 FROM identities WHERE id = $1
		ON CONFLICT (id) DO UPDATE SET data = excluded.data`

	if int64(len(data)) != id.Len() {
		klog.FromContext(ctx).V(2).Info("Payload length differs from declared length", "blob", id.Name(), "declared", id.Len(), "actual", len(data))
	}
	if data == nil {
		data = []byte{}
	}
	res, err := s.db.ExecContext(ctx, q, id.String(), data)
	if err != nil {
		return errors.Wrapf(err, "storing payload of %s", id.Name())
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if aff == 0 {
		return errors.Wrapf(cncp.ErrNotFound, "blob %s", id.Name())
	}
	return nil
}

// Read implements cncp.Store.Read.
func (s *Store) Read(ctx context.Context, id cncp.Identifier) ([]byte, error) {
	const q = `SELECT data FROM payloads WHERE id = $1`

	var data []byte
	err := s.db.QueryRowContext(ctx, q, id.String()).Scan(&data)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(cncp.ErrNotFound, "payload of %s", id.Name())
	}
	return data, errors.Wrapf(err, "reading payload of %s", id.Name())
}

// Exists implements cncp.Store.Exists.
func (s *Store) Exists(ctx context.Context, id cncp.Identifier) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM payloads WHERE id = $1)`

	var ok bool
	err := s.db.QueryRowContext(ctx, q, id.String()).Scan(&ok)
	return ok, errors.Wrapf(err, "checking payload of %s", id.Name())
}

// Delete implements cncp.Store.Delete.
// The payload goes with the identity by cascade.
func (s *Store) Delete(ctx context.Context, id cncp.Identifier) (bool, error) {
	const q = `DELETE FROM identities WHERE id = $1`

	res, err := s.db.ExecContext(ctx, q, id.String())
	if err != nil {
		return false, errors.Wrapf(err, "deleting %s", id.Name())
	}
	aff, err := res.RowsAffected()
	return aff > 0, errors.Wrap(err, "counting affected rows")
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

// Identifiers calls f on the identifier of every blob in the store, oldest first.
func (s *Store) Identifiers(ctx context.Context, f func(cncp.Identifier) error) error {
	const q = `SELECT id FROM identities ORDER BY created, id`
	return sqlutil.ForQueryRows(ctx, s.db, q, func(encoded string) error {
		id, err := cncp.ParseIdentifier(encoded)
		if err != nil {
			return err
		}
		return f(id)
	})
}

func init() {
	store.Register("pg", func(ctx context.Context, conf map[string]interface{}) (cncp.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		secret, err := store.Secret(conf)
		if err != nil {
			return nil, err
		}
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db, secret)
	})
}
