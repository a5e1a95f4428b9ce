// Package gcs implements a blob store on Google Cloud Storage.
package gcs

import (
	"context"
	stderrs "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"k8s.io/klog/v2"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/store"
)

var _ cncp.Store = &Store{}

// Store is a Google Cloud Storage-based implementation of a blob store.
type Store struct {
	bucket *storage.BucketHandle
	secret []byte
}

// New produces a new Store.
func New(bucket *storage.BucketHandle, secret []byte) *Store {
	return &Store{bucket: bucket, secret: secret}
}

const (
	nameKey    = "name"
	lengthKey  = "length"
	createdKey = "created"
)

// Create implements cncp.Store.Create.
func (s *Store) Create(ctx context.Context, name string, length int64) (*cncp.Blob, error) {
	id, err := cncp.NewIdentifier(name, length)
	if err != nil {
		return nil, err
	}

	var (
		objName = identObjName(id)
		obj     = s.bucket.Object(objName).If(storage.Conditions{DoesNotExist: true})
		w       = obj.NewWriter(ctx)
	)
	w.Metadata = map[string]string{
		nameKey:    name,
		lengthKey:  strconv.FormatInt(length, 10),
		createdKey: id.Created().Format(time.RFC3339Nano),
	}
	if _, err = w.Write([]byte(id.String())); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "writing object %s", objName)
	}
	if err = w.Close(); err != nil {
		return nil, errors.Wrapf(err, "closing object %s", objName)
	}
	return cncp.NewBlob(s, id), nil
}

func (s *Store) known(ctx context.Context, id cncp.Identifier) (bool, error) {
	return objExists(ctx, s.bucket.Object(identObjName(id)))
}

func objExists(ctx context.Context, obj *storage.ObjectHandle) (bool, error) {
	_, err := obj.Attrs(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "getting object attrs for %s", obj.ObjectName())
	}
	return true, nil
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

	var (
		objName = payloadObjName(id)
		w       = s.bucket.Object(objName).NewWriter(ctx)
	)
	if _, err = w.Write(data); err != nil {
		w.Close()
		return errors.Wrapf(err, "writing object %s", objName)
	}
	return errors.Wrapf(w.Close(), "closing object %s", objName)
}

// Read implements cncp.Store.Read.
func (s *Store) Read(ctx context.Context, id cncp.Identifier) ([]byte, error) {
	objName := payloadObjName(id)
	r, err := s.bucket.Object(objName).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, errors.Wrapf(cncp.ErrNotFound, "payload of %s", id.Name())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading info of object %s", objName)
	}
	defer r.Close()

	b := make([]byte, r.Attrs.Size)
	_, err = io.ReadFull(r, b)
	return b, errors.Wrapf(err, "reading contents of object %s", objName)
}

// Exists implements cncp.Store.Exists.
func (s *Store) Exists(ctx context.Context, id cncp.Identifier) (bool, error) {
	return objExists(ctx, s.bucket.Object(payloadObjName(id)))
}

// Delete implements cncp.Store.Delete.
// Only one of several racing deletes of the identity object succeeds,
// so only one reports true.
func (s *Store) Delete(ctx context.Context, id cncp.Identifier) (bool, error) {
	objName := identObjName(id)
	err := s.bucket.Object(objName).Delete(ctx)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "deleting object %s", objName)
	}

	objName = payloadObjName(id)
	err = s.bucket.Object(objName).Delete(ctx)
	if err != nil && !isNotFound(err) {
		return true, errors.Wrapf(err, "deleting object %s", objName)
	}
	return true, nil
}

func isNotFound(err error) bool {
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var e *googleapi.Error
	return stderrs.As(err, &e) && e.Code == http.StatusNotFound
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

// Identifiers calls f on the identifier of every blob in the store, newest first.
func (s *Store) Identifiers(ctx context.Context, f func(cncp.Identifier) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: identPrefix})
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over identity objects")
		}
		created, err := createdFromIdentObjName(attrs.Name)
		if err != nil {
			return err
		}
		length, err := strconv.ParseInt(attrs.Metadata[lengthKey], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "parsing length of %s", attrs.Name)
		}
		id, err := s.readIdent(ctx, attrs.Name)
		if err != nil {
			return err
		}
		if id.Name() != attrs.Metadata[nameKey] || id.Len() != length || !id.Created().Equal(created) {
			return errors.Wrapf(cncp.ErrInvalidIdentifier, "object %s disagrees with its identifier", attrs.Name)
		}
		if err = f(id); err != nil {
			return err
		}
	}
}

func (s *Store) readIdent(ctx context.Context, objName string) (cncp.Identifier, error) {
	r, err := s.bucket.Object(objName).NewReader(ctx)
	if err != nil {
		return cncp.Identifier{}, errors.Wrapf(err, "reading info of object %s", objName)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return cncp.Identifier{}, errors.Wrapf(err, "reading contents of object %s", objName)
	}
	return cncp.ParseIdentifier(string(b))
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (cncp.Store, error) {
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		secret, err := store.Secret(conf)
		if err != nil {
			return nil, err
		}

		var options []option.ClientOption
		if creds, ok := conf["creds"].(string); ok {
			options = append(options, option.WithCredentialsFile(creds))
		}
		if endpoint, ok := conf["endpoint"].(string); ok {
			options = append(options, option.WithEndpoint(endpoint))
		}
		if noauth, _ := conf["noauth"].(bool); noauth {
			options = append(options, option.WithoutAuthentication())
		}
		c, err := storage.NewClient(ctx, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName), secret), nil
	})
}
