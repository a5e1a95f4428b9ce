package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/cncp/fs"
	nodemem "github.com/bobg/cncp/node/mem"
	"github.com/bobg/cncp/store/mem"
)

func newTestCmd() (*maincmd, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	c := newMaincmd(fs.New(nodemem.New(), mem.New([]byte("secret"))))
	c.out, c.errOut = &out, &errOut
	return c, &out, &errOut
}

func TestShell(t *testing.T) {
	ctx := context.Background()
	c, out, errOut := newTestCmd()

	script := `
mkdir /a
mkdir -p /a/b/c
cd /a/b
pwd
bogus
ls /a
quit
pwd
`
	if err := c.shell(ctx, strings.NewReader(script)); err != nil {
		t.Fatal(err)
	}
	if !c.quit {
		t.Error("quit did not end the shell")
	}

	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(out.String(), prompt, ""), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	if diff := cmp.Diff([]string{"/a/b", "b/"}, lines); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	if !strings.Contains(errOut.String(), "unknown command bogus") {
		t.Errorf("unexpected error output %q", errOut.String())
	}
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	c, out, _ := newTestCmd()

	src := t.TempDir()
	for name, data := range map[string]string{
		"one.txt":     "first file",
		"tree/two.md": "second file",
	} {
		full := filepath.Join(src, name)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.run(ctx, []string{"mkdir", "/in"}); err != nil {
		t.Fatal(err)
	}
	if err := c.run(ctx, []string{"put", "-to", "/in", filepath.Join(src, "one.txt"), filepath.Join(src, "tree")}); err != nil {
		t.Fatal(err)
	}

	if err := c.run(ctx, []string{"cat", "/in/one.txt", "/in/tree/two.md"}); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "first filesecond file" {
		t.Errorf("cat produced %q", got)
	}

	dest := t.TempDir()
	if err := c.run(ctx, []string{"get", "/in/tree", dest}); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "tree", "two.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second file" {
		t.Errorf("got %q", got)
	}

	if err = c.run(ctx, []string{"rm", "/in"}); err != nil {
		t.Fatal(err)
	}
	if err = c.run(ctx, []string{"cat", "/in/one.txt"}); err == nil {
		t.Error("cat of a removed file succeeded")
	}
}

func TestProperties(t *testing.T) {
	ctx := context.Background()
	c, out, _ := newTestCmd()

	if err := c.run(ctx, []string{"mkdir", "/d"}); err != nil {
		t.Fatal(err)
	}
	if err := c.run(ctx, []string{"set", "/d", "color", "blue"}); err != nil {
		t.Fatal(err)
	}
	if err := c.run(ctx, []string{"stat", "/d"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "color = blue") {
		t.Errorf("stat output missing property:\n%s", out)
	}

	if err := c.run(ctx, []string{"unset", "/d", "color"}); err != nil {
		t.Fatal(err)
	}
	if err := c.run(ctx, []string{"unset", "/d", "color"}); err == nil {
		t.Error("second unset succeeded")
	}
	if err := c.run(ctx, []string{"set", "/d", fs.BlobProperty, "x"}); err == nil {
		t.Error("setting the reserved blob property succeeded")
	}
}
