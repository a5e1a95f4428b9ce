package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/cncp/fs"
	"github.com/bobg/cncp/node"
)

func (c *maincmd) pwd(_ context.Context, _ *flag.FlagSet, _ []string) error {
	fmt.Fprintln(c.out, c.f.Cwd().Path())
	return nil
}

func (c *maincmd) cd(_ context.Context, _ *flag.FlagSet, args []string) error {
	dir := node.Separator
	if len(args) > 0 {
		dir = args[0]
	}
	return c.f.Cd(dir)
}

func (c *maincmd) ls(_ context.Context, fset *flag.FlagSet, args []string) error {
	long := fset.Bool("l", false, "long listing")
	if err := fset.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	dir := "."
	if fset.NArg() > 0 {
		dir = fset.Arg(0)
	}

	n, err := c.f.Lookup(dir)
	if err != nil {
		return err
	}
	nodes := []*node.Node{n}
	if fs.IsDir(n) {
		nodes = n.Children().All()
	}

	for _, n := range nodes {
		name := n.Name()
		if fs.IsDir(n) {
			name += node.Separator
		}
		if !*long {
			fmt.Fprintln(c.out, name)
			continue
		}
		typ, size := "-", "-"
		if content, ok := n.Content(); ok {
			typ, size = content.Type, humanize.IBytes(uint64(content.Length))
		}
		fmt.Fprintf(c.out, "%-24s %9s  %-14s  %s\n", typ, size, humanize.Time(n.LastModified()), name)
	}
	return nil
}

func (c *maincmd) mkdir(_ context.Context, fset *flag.FlagSet, args []string) error {
	parents := fset.Bool("p", false, "create missing parents")
	if err := fset.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fset.NArg() == 0 {
		return errors.New("usage: mkdir [-p] DIR...")
	}
	for _, dir := range fset.Args() {
		var err error
		if *parents {
			_, err = c.f.MkdirAll(dir)
		} else {
			_, err = c.f.Mkdir(dir)
		}
		if err != nil {
			return errors.Wrapf(err, "creating %s", dir)
		}
	}
	return nil
}

// put copies local files and directories into the repository.
// Several are stored concurrently.
func (c *maincmd) put(ctx context.Context, fset *flag.FlagSet, args []string) error {
	dest := fset.String("to", ".", "destination directory")
	if err := fset.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fset.NArg() == 0 {
		return errors.New("usage: put [-to DIR] LOCALPATH...")
	}

	dir := c.f.Abs(*dest)

	g, ctx := errgroup.WithContext(ctx)
	for _, local := range fset.Args() {
		local := local
		g.Go(func() error {
			info, err := os.Stat(local)
			if err != nil {
				return err
			}
			if info.IsDir() {
				return c.f.Import(ctx, local, dir)
			}
			data, err := os.ReadFile(local)
			if err != nil {
				return errors.Wrapf(err, "reading %s", local)
			}
			_, err = c.f.Put(ctx, node.ChildPath(dir, filepath.Base(local)), data)
			return err
		})
	}
	return g.Wait()
}

// get copies a file or directory out of the repository into a local directory.
func (c *maincmd) get(ctx context.Context, _ *flag.FlagSet, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return errors.New("usage: get PATH [LOCALDIR]")
	}
	localDir := "."
	if len(args) == 2 {
		localDir = args[1]
	}
	return c.f.Export(ctx, args[0], localDir)
}

func (c *maincmd) cat(ctx context.Context, _ *flag.FlagSet, args []string) error {
	for _, p := range args {
		data, err := c.f.Get(ctx, p)
		if err != nil {
			return err
		}
		if _, err = c.out.Write(data); err != nil {
			return err
		}
	}
	return nil
}

func (c *maincmd) rm(ctx context.Context, _ *flag.FlagSet, args []string) error {
	for _, p := range args {
		if err := c.f.Remove(ctx, p); err != nil {
			return errors.Wrapf(err, "removing %s", p)
		}
	}
	return nil
}

func (c *maincmd) stat(_ context.Context, _ *flag.FlagSet, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: stat PATH")
	}
	n, err := c.f.Lookup(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "path:     %s\n", n.Path())
	fmt.Fprintf(c.out, "created:  %s\n", n.Created().Format(time.RFC3339Nano))
	fmt.Fprintf(c.out, "modified: %s\n", n.LastModified().Format(time.RFC3339Nano))
	if content, ok := n.Content(); ok {
		fmt.Fprintf(c.out, "content:  %s (%s, %d bytes, id %s)\n", content.Name, content.Type, content.Length, content.ID)
	}

	props := n.Properties()
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(c.out, "  %s = %v\n", k, props[k])
	}
	return nil
}

func (c *maincmd) set(_ context.Context, _ *flag.FlagSet, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: set PATH KEY VALUE")
	}
	if args[1] == fs.BlobProperty {
		return fmt.Errorf("property %s is reserved", fs.BlobProperty)
	}
	n, err := c.f.Lookup(args[0])
	if err != nil {
		return err
	}
	n.SetProperty(args[1], args[2])
	return nil
}

func (c *maincmd) unset(_ context.Context, _ *flag.FlagSet, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: unset PATH KEY")
	}
	if args[1] == fs.BlobProperty {
		return fmt.Errorf("property %s is reserved", fs.BlobProperty)
	}
	n, err := c.f.Lookup(args[0])
	if err != nil {
		return err
	}
	if _, ok := n.DeleteProperty(args[1]); !ok {
		return fmt.Errorf("%s has no property %s", n.Path(), args[1])
	}
	return nil
}
