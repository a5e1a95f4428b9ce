// Package fs combines a node tree with a blob store into a simple file system.
//
// Each node with a Content descriptor is a file.
// Its bytes live in the blob store,
// in the blob whose encoded identifier is the node's BlobProperty.
// Every other node is a directory.
//
// A FileSystem keeps a current working directory
// against which relative paths resolve.
package fs

import (
	"context"
	stderrs "errors"
	"io"
	iofs "io/fs"
	"path"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/node"
)

// BlobProperty is the node property holding the encoded identifier
// of the blob with a file's bytes.
const BlobProperty = "cncp.blob"

var (
	// ErrNotDir is the error when a directory operation is applied to a file.
	ErrNotDir = stderrs.New("not a directory")

	// ErrIsDir is the error when a file operation is applied to a directory.
	ErrIsDir = stderrs.New("is a directory")

	// ErrNoBlob is the error when a file has no blob recorded.
	ErrNoBlob = stderrs.New("no blob for file")
)

// FileSystem is a file system over a node store and a blob store.
// It is safe for concurrent use,
// though concurrent changes to the same path race in the usual ways.
type FileSystem struct {
	nodes node.Store
	blobs cncp.Store

	mu  sync.Mutex // protects cwd
	cwd *node.Node
}

// New produces a FileSystem whose working directory is the root of nodes.
func New(nodes node.Store, blobs cncp.Store) *FileSystem {
	return &FileSystem{
		nodes: nodes,
		blobs: blobs,
		cwd:   nodes.Root(),
	}
}

func (f *FileSystem) Nodes() node.Store { return f.nodes }
func (f *FileSystem) Blobs() cncp.Store { return f.blobs }

// Cwd is the current working directory.
func (f *FileSystem) Cwd() *node.Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cwd
}

// Abs resolves p against the current working directory,
// producing a clean absolute path.
func (f *FileSystem) Abs(p string) string {
	if !path.IsAbs(p) {
		p = path.Join(f.Cwd().Path(), p)
	}
	return path.Clean(p)
}

// Lookup finds the node at p.
// It returns an error wrapping node.ErrNotFound if there is none.
func (f *FileSystem) Lookup(p string) (*node.Node, error) {
	n := f.nodes.Root()
	for _, name := range split(f.Abs(p)) {
		child, err := n.Child(name)
		if err != nil {
			return nil, err
		}
		n = child
	}
	return n, nil
}

func split(abs string) []string {
	trimmed := strings.Trim(abs, node.Separator)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, node.Separator)
}

// IsDir tells whether n is a directory, i.e. has no content.
func IsDir(n *node.Node) bool {
	_, ok := n.Content()
	return !ok
}

// Cd changes the current working directory to the directory at p.
func (f *FileSystem) Cd(p string) error {
	n, err := f.Lookup(p)
	if err != nil {
		return err
	}
	if !IsDir(n) {
		return errors.Wrap(ErrNotDir, n.Path())
	}
	f.mu.Lock()
	f.cwd = n
	f.mu.Unlock()
	return nil
}

// parent finds the directory that is, or will be, the parent of the node at p,
// and the node's name.
func (f *FileSystem) parent(p string) (*node.Node, string, error) {
	abs := f.Abs(p)
	if abs == node.Separator {
		return nil, "", errors.Wrap(node.ErrInvalidName, "the root has no parent")
	}
	dir, name := path.Split(abs)
	parent, err := f.Lookup(dir)
	if err != nil {
		return nil, "", err
	}
	if !IsDir(parent) {
		return nil, "", errors.Wrap(ErrNotDir, parent.Path())
	}
	return parent, name, nil
}

// Mkdir creates a directory at p.
// Its parent must exist.
// It returns an error wrapping io/fs.ErrExist if p is taken.
func (f *FileSystem) Mkdir(p string) (*node.Node, error) {
	parent, name, err := f.parent(p)
	if err != nil {
		return nil, err
	}
	if _, err = parent.Child(name); err == nil {
		return nil, errors.Wrap(iofs.ErrExist, f.Abs(p))
	}
	return parent.AddChild(name)
}

// MkdirAll creates the directory at p along with any missing parents.
func (f *FileSystem) MkdirAll(p string) (*node.Node, error) {
	n := f.nodes.Root()
	for _, name := range split(f.Abs(p)) {
		child, err := n.Child(name)
		if stderrs.Is(err, node.ErrNotFound) {
			child, err = n.AddChild(name)
		}
		if err != nil {
			return nil, err
		}
		if !IsDir(child) {
			return nil, errors.Wrap(ErrNotDir, child.Path())
		}
		n = child
	}
	return n, nil
}

// List produces the children of the directory at p in order of name.
func (f *FileSystem) List(p string) ([]*node.Node, error) {
	n, err := f.Lookup(p)
	if err != nil {
		return nil, err
	}
	if !IsDir(n) {
		return nil, errors.Wrap(ErrNotDir, n.Path())
	}
	return n.Children().All(), nil
}

// Put stores data as the file at p, replacing any file already there.
// The bytes go into a new blob by direct write.
// The file's MIME type comes from its extension
// or, failing that, from the bytes themselves.
func (f *FileSystem) Put(ctx context.Context, p string, data []byte) (*node.Node, error) {
	parent, name, err := f.parent(p)
	if err != nil {
		return nil, err
	}

	var oldBlob string
	if old, err := parent.Child(name); err == nil {
		if IsDir(old) {
			return nil, errors.Wrap(ErrIsDir, old.Path())
		}
		oldBlob, _ = old.Properties()[BlobProperty].(string)
	}

	blob, err := f.blobs.Create(ctx, name, int64(len(data)))
	if err != nil {
		return nil, errors.Wrapf(err, "creating blob for %s", name)
	}
	wc, err := blob.BeginDirectWrite(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "beginning write of %s", name)
	}
	if _, err = wc.Write(data); err != nil {
		return nil, errors.Wrapf(err, "staging %s", name)
	}
	if _, err = blob.EndDirectWrite(ctx, wc); err != nil {
		return nil, errors.Wrapf(err, "writing %s", name)
	}

	n, err := parent.AddChild(name)
	if err != nil {
		return nil, err
	}
	n.SetContent(node.NewTypedContent(name, int64(len(data)), contentType(name, data)))
	n.SetProperty(BlobProperty, blob.ID().String())

	if oldBlob != "" {
		f.deleteBlob(ctx, oldBlob)
	}
	return n, nil
}

func contentType(name string, data []byte) string {
	if typ := node.TypeByName(name); typ != node.DefaultContentType {
		return typ
	}
	typ, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return strings.TrimSpace(typ)
}

func (f *FileSystem) deleteBlob(ctx context.Context, encoded string) error {
	id, err := cncp.ParseIdentifier(encoded)
	if err != nil {
		return err
	}
	if _, err = f.blobs.Delete(ctx, id); err != nil {
		klog.FromContext(ctx).Error(err, "Unable to delete blob", "blob", id.Name())
		return errors.Wrapf(err, "deleting blob %s", id.Name())
	}
	return nil
}

// BlobID is the identifier of the blob holding the bytes of file n.
func BlobID(n *node.Node) (cncp.Identifier, error) {
	if IsDir(n) {
		return cncp.Identifier{}, errors.Wrap(ErrIsDir, n.Path())
	}
	encoded, ok := n.Properties()[BlobProperty].(string)
	if !ok {
		return cncp.Identifier{}, errors.Wrap(ErrNoBlob, n.Path())
	}
	return cncp.ParseIdentifier(encoded)
}

// Get produces the bytes of the file at p by direct read.
func (f *FileSystem) Get(ctx context.Context, p string) ([]byte, error) {
	n, err := f.Lookup(p)
	if err != nil {
		return nil, err
	}
	return f.read(ctx, n)
}

func (f *FileSystem) read(ctx context.Context, n *node.Node) ([]byte, error) {
	id, err := BlobID(n)
	if err != nil {
		return nil, err
	}
	rc, err := f.blobs.BeginDirectRead(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", n.Path())
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Remove removes the node at p and everything beneath it,
// deleting the blobs of the files removed.
// If the working directory is removed,
// the working directory becomes the removed node's parent.
func (f *FileSystem) Remove(ctx context.Context, p string) error {
	parent, name, err := f.parent(p)
	if err != nil {
		return err
	}
	n, err := parent.Child(name)
	if err != nil {
		return err
	}

	var ids []string
	walk(n, func(n *node.Node) {
		if id, ok := n.Properties()[BlobProperty].(string); ok {
			ids = append(ids, id)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error { return f.deleteBlob(gctx, id) })
	}
	if err = g.Wait(); err != nil {
		return err
	}

	parent.DeleteChild(name)

	f.mu.Lock()
	defer f.mu.Unlock()
	if cwd := f.cwd.Path(); cwd == n.Path() || strings.HasPrefix(cwd, n.Path()+node.Separator) {
		f.cwd = parent
	}
	return nil
}

// walk calls fn on n and its descendants, parents before children.
func walk(n *node.Node, fn func(*node.Node)) {
	fn(n)
	for it := n.Children(); it.Next(); {
		walk(it.Node(), fn)
	}
}
