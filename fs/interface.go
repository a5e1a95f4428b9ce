package fs

import (
	"bytes"
	"context"
	stderrs "errors"
	"io"
	iofs "io/fs"
	"path"
	"time"

	"github.com/bobg/cncp/node"
)

// In this file, we implement various interfaces from the Go stdlib's io/fs package.

var (
	_ iofs.FS          = (*FS)(nil)
	_ iofs.ReadDirFS   = (*FS)(nil)
	_ iofs.StatFS      = (*FS)(nil)
	_ iofs.File        = (*fsFile)(nil)
	_ io.ReadSeeker    = (*fsFile)(nil)
	_ iofs.ReadDirFile = (*fsDir)(nil)
	_ iofs.FileInfo    = (*fsFileInfo)(nil)
	_ iofs.DirEntry    = (*fsDirEntry)(nil)
)

// FS is a read-only io/fs view of a FileSystem,
// rooted at the FileSystem's root.
type FS struct {
	Ctx context.Context

	f *FileSystem
}

// FS produces a read-only io/fs view of f.
// The given context object is stored in the FS and used in subsequent calls to Open, Stat, ReadDir, etc.
// This is an antipattern but acceptable when an object must adhere to a context-free stdlib interface
// (https://github.com/golang/go/wiki/CodeReviewComments#contexts).
func (f *FileSystem) FS(ctx context.Context) *FS {
	return &FS{Ctx: ctx, f: f}
}

func (v *FS) lookup(op, name string) (*node.Node, error) {
	if !iofs.ValidPath(name) {
		return nil, &iofs.PathError{Op: op, Path: name, Err: iofs.ErrInvalid}
	}
	n, err := v.f.Lookup(node.Separator + name)
	if stderrs.Is(err, node.ErrNotFound) {
		return nil, &iofs.PathError{Op: op, Path: name, Err: iofs.ErrNotExist}
	}
	if err != nil {
		return nil, &iofs.PathError{Op: op, Path: name, Err: err}
	}
	return n, nil
}

// Open implements io/fs.FS.
func (v *FS) Open(name string) (iofs.File, error) {
	n, err := v.lookup("open", name)
	if err != nil {
		return nil, err
	}
	info := newFileInfo(path.Base(name), n)
	if info.IsDir() {
		entries, err := v.readDir(n)
		if err != nil {
			return nil, &iofs.PathError{Op: "open", Path: name, Err: err}
		}
		return &fsDir{info: info, entries: entries}, nil
	}
	data, err := v.f.read(v.Ctx, n)
	if err != nil {
		return nil, &iofs.PathError{Op: "open", Path: name, Err: err}
	}
	return &fsFile{info: info, r: bytes.NewReader(data)}, nil
}

// ReadDir implements io/fs.ReadDirFS.
func (v *FS) ReadDir(name string) ([]iofs.DirEntry, error) {
	n, err := v.lookup("readdir", name)
	if err != nil {
		return nil, err
	}
	if !IsDir(n) {
		return nil, &iofs.PathError{Op: "readdir", Path: name, Err: ErrNotDir}
	}
	return v.readDir(n)
}

func (v *FS) readDir(n *node.Node) ([]iofs.DirEntry, error) {
	var result []iofs.DirEntry
	for it := n.Children(); it.Next(); {
		child := it.Node()
		result = append(result, &fsDirEntry{info: newFileInfo(child.Name(), child)})
	}
	return result, nil
}

// Stat implements io/fs.StatFS.
func (v *FS) Stat(name string) (iofs.FileInfo, error) {
	n, err := v.lookup("stat", name)
	if err != nil {
		return nil, err
	}
	return newFileInfo(path.Base(name), n), nil
}

type fsFileInfo struct {
	name    string
	mode    iofs.FileMode
	size    int64
	modTime time.Time
	typ     string
}

func newFileInfo(name string, n *node.Node) *fsFileInfo {
	info := &fsFileInfo{
		name:    name,
		mode:    iofs.ModeDir | 0555,
		modTime: n.LastModified(),
	}
	if c, ok := n.Content(); ok {
		info.mode = 0444
		info.size = c.Length
		info.typ = c.Type
	}
	return info
}

func (info *fsFileInfo) Name() string        { return info.name }
func (info *fsFileInfo) Size() int64         { return info.size }
func (info *fsFileInfo) Mode() iofs.FileMode { return info.mode }
func (info *fsFileInfo) ModTime() time.Time  { return info.modTime }
func (info *fsFileInfo) IsDir() bool         { return info.mode.IsDir() }

// Sys returns the MIME type of a file, or nil for a directory.
func (info *fsFileInfo) Sys() interface{} {
	if info.typ == "" {
		return nil
	}
	return info.typ
}

// fsFile implements io/fs.File.
type fsFile struct {
	info *fsFileInfo
	r    *bytes.Reader
}

func (f *fsFile) Stat() (iofs.FileInfo, error)                 { return f.info, nil }
func (f *fsFile) Read(buf []byte) (int, error)                 { return f.r.Read(buf) }
func (f *fsFile) ReadAt(buf []byte, off int64) (int, error)    { return f.r.ReadAt(buf, off) }
func (f *fsFile) Seek(offset int64, whence int) (int64, error) { return f.r.Seek(offset, whence) }
func (f *fsFile) Close() error                                 { return nil }

// fsDir implements io/fs.ReadDirFile.
type fsDir struct {
	info    *fsFileInfo
	entries []iofs.DirEntry
	off     int
}

func (d *fsDir) Stat() (iofs.FileInfo, error) { return d.info, nil }
func (d *fsDir) Close() error                 { return nil }

func (d *fsDir) Read([]byte) (int, error) {
	return 0, &iofs.PathError{Op: "read", Path: d.info.name, Err: ErrIsDir}
}

func (d *fsDir) ReadDir(n int) ([]iofs.DirEntry, error) {
	rest := d.entries[d.off:]
	if n <= 0 {
		d.off = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if n > len(rest) {
		n = len(rest)
	}
	d.off += n
	return rest[:n], nil
}

type fsDirEntry struct {
	info *fsFileInfo
}

func (e *fsDirEntry) Name() string                 { return e.info.name }
func (e *fsDirEntry) IsDir() bool                  { return e.info.IsDir() }
func (e *fsDirEntry) Type() iofs.FileMode          { return e.info.mode.Type() }
func (e *fsDirEntry) Info() (iofs.FileInfo, error) { return e.info, nil }
