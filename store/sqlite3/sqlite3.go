// Package sqlite3 implements a blob store in a Sqlite database.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"
	"time"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/store"
)

var _ cncp.Store = &Store{}

// Store is a Sqlite-based blob store.
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
  length INTEGER NOT NULL,
  created INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS payloads (
  id TEXT PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
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
	_, err = s.db.ExecContext(ctx, q, id.String(), name, length, id.Created().UnixMilli())
	if err != nil {
		return nil, errors.Wrapf(err, "inserting identity of %s", name)
	}
	return cncp.NewBlob(s, id), nil
}

func (s *Store) known(ctx context.Context, id cncp.Identifier) (bool, error) {
	const q = `SELECT COUNT(*) FROM identities WHERE id = $1`

	var n int
	err := s.db.QueryRowContext(ctx, q, id.String()).Scan(&n)
	return n > 0, errors.Wrapf(err, "looking up %s", id.Name())
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
// The payload row is inserted only while the identity row exists,
// in a single statement,
// so a Write racing a Delete cannot leave an orphaned payload.
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
	const q = `SELECT COUNT(*) FROM payloads WHERE id = $1`

	var n int
	err := s.db.QueryRowContext(ctx, q, id.String()).Scan(&n)
	return n > 0, errors.Wrapf(err, "checking payload of %s", id.Name())
}

// Delete implements cncp.Store.Delete.
func (s *Store) Delete(ctx context.Context, id cncp.Identifier) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM identities WHERE id = $1`, id.String())
	if err != nil {
		return false, errors.Wrapf(err, "deleting identity of %s", id.Name())
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "counting affected rows")
	}
	if aff == 0 {
		return false, nil
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM payloads WHERE id = $1`, id.String()); err != nil {
		return false, errors.Wrapf(err, "deleting payload of %s", id.Name())
	}
	return true, errors.Wrap(tx.Commit(), "committing transaction")
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
// The store's connection may be busy while f runs,
// so f must not call back into s.
func (s *Store) Identifiers(ctx context.Context, f func(cncp.Identifier) error) error {
	const q = `SELECT id, name, length, created FROM identities ORDER BY created, id`
	return sqlutil.ForQueryRows(ctx, s.db, q, func(encoded, name string, length, created int64) error {
		id, err := cncp.ParseIdentifier(encoded)
		if err != nil {
			return err
		}
		if id.Name() != name || id.Len() != length || !id.Created().Equal(time.UnixMilli(created)) {
			return errors.Wrapf(cncp.ErrInvalidIdentifier, "row for %s disagrees with its identifier", name)
		}
		return f(id)
	})
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (cncp.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		secret, err := store.Secret(conf)
		if err != nil {
			return nil, err
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		db.SetMaxOpenConns(1)
		return New(ctx, db, secret)
	})
}
