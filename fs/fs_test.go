package fs

import (
	"context"
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/cncp"
	nodemem "github.com/bobg/cncp/node/mem"
	"github.com/bobg/cncp/store/mem"
)

func newFS() *FileSystem {
	return New(nodemem.New(), mem.New([]byte("secret")))
}

func TestCd(t *testing.T) {
	f := newFS()

	if f.Cwd().Path() != "/" {
		t.Errorf("initial cwd is %s", f.Cwd().Path())
	}
	if _, err := f.Mkdir("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Mkdir("/a/b"); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		arg, want string
	}{
		{"a", "/a"},
		{"b", "/a/b"},
		{"..", "/a"},
		{"./b/..", "/a"},
		{"/a/b", "/a/b"},
		{"../../..", "/"},
	}
	for _, s := range steps {
		if err := f.Cd(s.arg); err != nil {
			t.Fatalf("cd %s: %s", s.arg, err)
		}
		if got := f.Cwd().Path(); got != s.want {
			t.Errorf("after cd %s, cwd is %s, want %s", s.arg, got, s.want)
		}
	}

	if err := f.Cd("nonesuch"); err == nil {
		t.Error("cd to a nonexistent directory succeeded")
	}

	ctx := context.Background()
	if _, err := f.Put(ctx, "/a/file.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := f.Cd("/a/file.txt"); !errors.Is(err, ErrNotDir) {
		t.Errorf("cd to a file: got error %v, want ErrNotDir", err)
	}
}

func TestMkdir(t *testing.T) {
	f := newFS()

	if _, err := f.Mkdir("/d"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Mkdir("/d"); !errors.Is(err, iofs.ErrExist) {
		t.Errorf("got error %v, want ErrExist", err)
	}
	if _, err := f.Mkdir("/x/y"); err == nil {
		t.Error("Mkdir without a parent succeeded")
	}

	n, err := f.MkdirAll("/x/y/z")
	if err != nil {
		t.Fatal(err)
	}
	if n.Path() != "/x/y/z" {
		t.Errorf("MkdirAll produced %s", n.Path())
	}

	list, err := f.List("/")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, n := range list {
		names = append(names, n.Name())
	}
	if diff := cmp.Diff([]string{"d", "x"}, names); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	f := newFS()

	pngHeader := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	cases := []struct {
		path    string
		data    []byte
		wantTyp string
	}{
		{"/hello.txt", []byte("hello, world"), "text/plain"},
		{"/page.html", []byte("<html></html>"), "text/html"},
		{"/image", pngHeader, "image/png"},
		{"/empty", []byte{}, "text/plain"},
	}
	for _, c := range cases {
		t.Run(c.path, func(t *testing.T) {
			n, err := f.Put(ctx, c.path, c.data)
			if err != nil {
				t.Fatal(err)
			}
			content, ok := n.Content()
			if !ok {
				t.Fatal("no content")
			}
			if content.Type != c.wantTyp {
				t.Errorf("got type %s, want %s", content.Type, c.wantTyp)
			}
			if content.Length != int64(len(c.data)) {
				t.Errorf("got length %d, want %d", content.Length, len(c.data))
			}

			got, err := f.Get(ctx, c.path)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != string(c.data) {
				t.Errorf("got %q, want %q", got, c.data)
			}
		})
	}

	if _, err := f.Mkdir("/dir"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Put(ctx, "/dir", []byte("x")); !errors.Is(err, ErrIsDir) {
		t.Errorf("put onto a directory: got error %v, want ErrIsDir", err)
	}
	if _, err := f.Get(ctx, "/dir"); !errors.Is(err, ErrIsDir) {
		t.Errorf("get of a directory: got error %v, want ErrIsDir", err)
	}
}

func TestPutReplaces(t *testing.T) {
	ctx := context.Background()
	f := newFS()

	first, err := f.Put(ctx, "/f", []byte("one"))
	if err != nil {
		t.Fatal(err)
	}
	oldID, err := BlobID(first)
	if err != nil {
		t.Fatal(err)
	}

	if _, err = f.Put(ctx, "/f", []byte("two")); err != nil {
		t.Fatal(err)
	}
	got, err := f.Get(ctx, "/f")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "two" {
		t.Errorf("got %q, want %q", got, "two")
	}

	if _, err = f.Blobs().Blob(ctx, oldID); !errors.Is(err, cncp.ErrNotFound) {
		t.Errorf("replaced blob: got error %v, want ErrNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	f := newFS()

	if _, err := f.MkdirAll("/a/b"); err != nil {
		t.Fatal(err)
	}
	var ids []cncp.Identifier
	for _, p := range []string{"/a/one", "/a/b/two", "/a/b/three"} {
		n, err := f.Put(ctx, p, []byte(p))
		if err != nil {
			t.Fatal(err)
		}
		id, err := BlobID(n)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	keep, err := f.Put(ctx, "/keep", []byte("keep"))
	if err != nil {
		t.Fatal(err)
	}

	if err = f.Cd("/a/b"); err != nil {
		t.Fatal(err)
	}
	if err = f.Remove(ctx, "/a"); err != nil {
		t.Fatal(err)
	}

	if _, err = f.Lookup("/a"); err == nil {
		t.Error("removed directory still present")
	}
	for _, id := range ids {
		if ok, err := f.Blobs().Exists(ctx, id); err != nil {
			t.Fatal(err)
		} else if ok {
			t.Errorf("blob %s survived removal", id.Name())
		}
	}
	if f.Cwd().Path() != "/" {
		t.Errorf("cwd is %s after its removal, want /", f.Cwd().Path())
	}

	keepID, err := BlobID(keep)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := f.Blobs().Exists(ctx, keepID); err != nil || !ok {
		t.Errorf("unrelated blob: Exists returned (%v, %v)", ok, err)
	}

	if err = f.Remove(ctx, "/"); err == nil {
		t.Error("removing the root succeeded")
	}
	if err = f.Remove(ctx, "/nonesuch"); err == nil {
		t.Error("removing a nonexistent node succeeded")
	}
}

func TestFS(t *testing.T) {
	ctx := context.Background()
	f := newFS()

	files := map[string]string{
		"/top.txt":          "top",
		"/dir/a.txt":        "a",
		"/dir/b.json":       `{"b": 1}`,
		"/dir/sub/deep.bin": "\x00\x01\x02",
	}
	for p, data := range files {
		if _, err := f.MkdirAll(filepath.Dir(p)); err != nil {
			t.Fatal(err)
		}
		if _, err := f.Put(ctx, p, []byte(data)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.Mkdir("/emptydir"); err != nil {
		t.Fatal(err)
	}

	v := f.FS(ctx)
	if err := fstest.TestFS(v, "top.txt", "dir/a.txt", "dir/b.json", "dir/sub/deep.bin", "emptydir"); err != nil {
		t.Fatal(err)
	}

	got, err := iofs.ReadFile(v, "dir/b.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != files["/dir/b.json"] {
		t.Errorf("got %q", got)
	}

	info, err := iofs.Stat(v, "dir/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if info.Sys() != "text/plain" {
		t.Errorf("got type %v, want text/plain", info.Sys())
	}

	if _, err = v.Open("nonesuch"); !errors.Is(err, iofs.ErrNotExist) {
		t.Errorf("got error %v, want ErrNotExist", err)
	}
	if _, err = v.Open("/top.txt"); !errors.Is(err, iofs.ErrInvalid) {
		t.Errorf("got error %v, want ErrInvalid", err)
	}
}

func TestImportExport(t *testing.T) {
	ctx := context.Background()

	src := t.TempDir()
	files := map[string]string{
		"root.txt":          "at the root",
		"sub/one.md":        "# one",
		"sub/deeper/two.go": "package two",
	}
	for p, data := range files {
		full := filepath.Join(src, p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}

	f := newFS()
	if err := f.Import(ctx, src, "/"); err != nil {
		t.Fatal(err)
	}

	base := "/" + filepath.Base(src)
	for p, data := range files {
		got, err := f.Get(ctx, base+"/"+p)
		if err != nil {
			t.Fatalf("getting %s: %s", p, err)
		}
		if string(got) != data {
			t.Errorf("%s: got %q, want %q", p, got, data)
		}
	}

	dest := t.TempDir()
	if err := f.Export(ctx, base, dest); err != nil {
		t.Fatal(err)
	}
	for p, data := range files {
		got, err := os.ReadFile(filepath.Join(dest, filepath.Base(src), p))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != data {
			t.Errorf("exported %s: got %q, want %q", p, got, data)
		}
	}
}
