// Package bt implements a blob store on Google Cloud Bigtable.
package bt

import (
	"context"
	"crypto/sha256"
	"fmt"

	"cloud.google.com/go/bigtable"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
	"k8s.io/klog/v2"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/store"
)

var _ cncp.Store = &Store{}

// Store is a Google Cloud Bigtable-backed implementation of cncp.Store.
//
// Each blob is one row, keyed by a hash of its encoded identifier.
// The identity and the payload are two column families of that row,
// so Write and Delete are single-row atomic mutations.
type Store struct {
	t      *bigtable.Table
	secret []byte
}

// Column families and columns.
// The table must have both families;
// see CreateTable.
const (
	identFam   = "ident"
	identCol   = "id"
	payloadFam = "payload"
	payloadCol = "data"
)

// New produces a new Store on the given table.
func New(t *bigtable.Table, secret []byte) *Store {
	return &Store{t: t, secret: secret}
}

// CreateTable creates a table with the column families a Store needs.
func CreateTable(ctx context.Context, admin *bigtable.AdminClient, table string) error {
	if err := admin.CreateTable(ctx, table); err != nil {
		return errors.Wrapf(err, "creating table %s", table)
	}
	for _, fam := range []string{identFam, payloadFam} {
		if err := admin.CreateColumnFamily(ctx, table, fam); err != nil {
			return errors.Wrapf(err, "creating column family %s", fam)
		}
		if err := admin.SetGCPolicy(ctx, table, fam, bigtable.MaxVersionsPolicy(1)); err != nil {
			return errors.Wrapf(err, "setting GC policy of %s", fam)
		}
	}
	return nil
}

func rowKey(id cncp.Identifier) string {
	return fmt.Sprintf("b:%x", sha256.Sum256([]byte(id.String())))
}

var (
	identFilter   = bigtable.ChainFilters(bigtable.FamilyFilter(identFam), bigtable.LatestNFilter(1))
	payloadFilter = bigtable.ChainFilters(bigtable.FamilyFilter(payloadFam), bigtable.LatestNFilter(1))
)

// Create implements cncp.Store.Create.
func (s *Store) Create(ctx context.Context, name string, length int64) (*cncp.Blob, error) {
	id, err := cncp.NewIdentifier(name, length)
	if err != nil {
		return nil, err
	}

	mut := bigtable.NewMutation()
	mut.Set(identFam, identCol, bigtable.Now(), []byte(id.String()))
	if err = s.t.Apply(ctx, rowKey(id), mut); err != nil {
		return nil, errors.Wrapf(err, "storing identity of %s", name)
	}
	return cncp.NewBlob(s, id), nil
}

// Blob implements cncp.Store.Blob.
func (s *Store) Blob(ctx context.Context, id cncp.Identifier) (*cncp.Blob, error) {
	row, err := s.t.ReadRow(ctx, rowKey(id), bigtable.RowFilter(identFilter))
	if err != nil {
		return nil, errors.Wrapf(err, "reading identity of %s", id.Name())
	}
	if len(row[identFam]) == 0 {
		return nil, errors.Wrapf(cncp.ErrNotFound, "blob %s", id.Name())
	}
	return cncp.NewBlob(s, id), nil
}

// Write implements cncp.Store.Write.
// The payload is replaced only if the identity is present,
// in a single conditional mutation.
func (s *Store) Write(ctx context.Context, id cncp.Identifier, data []byte) error {
	if int64(len(data)) != id.Len() {
		klog.FromContext(ctx).V(2).Info("Payload length differs from declared length", "blob", id.Name(), "declared", id.Len(), "actual", len(data))
	}

	mut := bigtable.NewMutation()
	mut.DeleteCellsInColumn(payloadFam, payloadCol)
	mut.Set(payloadFam, payloadCol, bigtable.Now(), data)

	var matched bool
	cmut := bigtable.NewCondMutation(bigtable.FamilyFilter(identFam), mut, nil)
	if err := s.t.Apply(ctx, rowKey(id), cmut, bigtable.GetCondMutationResult(&matched)); err != nil {
		return errors.Wrapf(err, "writing payload of %s", id.Name())
	}
	if !matched {
		return errors.Wrapf(cncp.ErrNotFound, "blob %s", id.Name())
	}
	return nil
}

// Read implements cncp.Store.Read.
func (s *Store) Read(ctx context.Context, id cncp.Identifier) ([]byte, error) {
	row, err := s.t.ReadRow(ctx, rowKey(id), bigtable.RowFilter(payloadFilter))
	if err != nil {
		return nil, errors.Wrapf(err, "reading payload of %s", id.Name())
	}
	items := row[payloadFam]
	if len(items) == 0 {
		return nil, errors.Wrapf(cncp.ErrNotFound, "payload of %s", id.Name())
	}
	if items[0].Value == nil {
		return []byte{}, nil
	}
	return items[0].Value, nil
}

// Exists implements cncp.Store.Exists.
func (s *Store) Exists(ctx context.Context, id cncp.Identifier) (bool, error) {
	filter := bigtable.ChainFilters(payloadFilter, bigtable.StripValueFilter())
	row, err := s.t.ReadRow(ctx, rowKey(id), bigtable.RowFilter(filter))
	if err != nil {
		return false, errors.Wrapf(err, "checking payload of %s", id.Name())
	}
	return len(row[payloadFam]) > 0, nil
}

// Delete implements cncp.Store.Delete.
func (s *Store) Delete(ctx context.Context, id cncp.Identifier) (bool, error) {
	mut := bigtable.NewMutation()
	mut.DeleteRow()

	var matched bool
	cmut := bigtable.NewCondMutation(bigtable.FamilyFilter(identFam), mut, nil)
	if err := s.t.Apply(ctx, rowKey(id), cmut, bigtable.GetCondMutationResult(&matched)); err != nil {
		return false, errors.Wrapf(err, "deleting %s", id.Name())
	}
	return matched, nil
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
func (s *Store) Identifiers(ctx context.Context, f func(cncp.Identifier) error) error {
	var innerErr error
	rowFn := func(row bigtable.Row) bool {
		items := row[identFam]
		if len(items) == 0 {
			return true
		}
		id, err := cncp.ParseIdentifier(string(items[0].Value))
		if err != nil {
			innerErr = errors.Wrapf(err, "parsing identifier in row %s", row.Key())
			return false
		}
		if err = f(id); err != nil {
			innerErr = err
			return false
		}
		return true
	}
	err := s.t.ReadRows(ctx, bigtable.PrefixRange("b:"), rowFn, bigtable.RowFilter(identFilter))
	if err != nil {
		return errors.Wrap(err, "reading rows")
	}
	return innerErr
}

func init() {
	store.Register("bt", func(ctx context.Context, conf map[string]interface{}) (cncp.Store, error) {
		project, ok := conf["project"].(string)
		if !ok {
			return nil, errors.New(`missing "project" parameter`)
		}
		instance, ok := conf["instance"].(string)
		if !ok {
			return nil, errors.New(`missing "instance" parameter`)
		}
		table, ok := conf["table"].(string)
		if !ok {
			return nil, errors.New(`missing "table" parameter`)
		}
		secret, err := store.Secret(conf)
		if err != nil {
			return nil, err
		}

		var options []option.ClientOption
		if creds, ok := conf["creds"].(string); ok {
			options = append(options, option.WithCredentialsFile(creds))
		}
		c, err := bigtable.NewClient(ctx, project, instance, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating bigtable client")
		}
		return New(c.Open(table), secret), nil
	})
}
