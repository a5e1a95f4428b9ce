package fs

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/bobg/cncp/node"
)

// Import copies the file or directory at hostPath on the local disk
// into the directory dest, recursively.
// Symlinks and other special files are skipped.
func (f *FileSystem) Import(ctx context.Context, hostPath, dest string) error {
	dir, err := f.Lookup(dest)
	if err != nil {
		return err
	}
	if !IsDir(dir) {
		return errors.Wrap(ErrNotDir, dir.Path())
	}
	return f.importPath(ctx, hostPath, dir.Path())
}

func (f *FileSystem) importPath(ctx context.Context, hostPath, dest string) error {
	info, err := os.Lstat(hostPath)
	if err != nil {
		return errors.Wrapf(err, "statting %s", hostPath)
	}

	var (
		name   = info.Name()
		target = path.Join(dest, name)
	)

	switch {
	case info.IsDir():
		if _, err = f.MkdirAll(target); err != nil {
			return errors.Wrapf(err, "creating %s", target)
		}
		entries, err := os.ReadDir(hostPath)
		if err != nil {
			return errors.Wrapf(err, "reading dir %s", hostPath)
		}
		for _, entry := range entries {
			if err = f.importPath(ctx, filepath.Join(hostPath, entry.Name()), target); err != nil {
				return err
			}
		}
		return nil

	case info.Mode().IsRegular():
		data, err := os.ReadFile(hostPath)
		if err != nil {
			return errors.Wrapf(err, "reading %s", hostPath)
		}
		_, err = f.Put(ctx, target, data)
		return errors.Wrapf(err, "storing %s", target)
	}

	klog.FromContext(ctx).V(1).Info("Skipping special file", "path", hostPath, "mode", info.Mode().String())
	return nil
}

// Export copies the file or directory at src
// into the directory hostDir on the local disk, recursively.
func (f *FileSystem) Export(ctx context.Context, src, hostDir string) error {
	n, err := f.Lookup(src)
	if err != nil {
		return err
	}
	return f.exportNode(ctx, n, hostDir)
}

func (f *FileSystem) exportNode(ctx context.Context, n *node.Node, hostDir string) error {
	name := n.Name()
	if n.IsRoot() {
		name = ""
	}
	target := filepath.Join(hostDir, name)

	if !IsDir(n) {
		data, err := f.read(ctx, n)
		if err != nil {
			return err
		}
		return errors.Wrapf(os.WriteFile(target, data, 0644), "writing %s", target)
	}

	if err := os.MkdirAll(target, 0755); err != nil {
		return errors.Wrapf(err, "creating %s", target)
	}
	for it := n.Children(); it.Next(); {
		if err := f.exportNode(ctx, it.Node(), target); err != nil {
			return err
		}
	}
	return nil
}
