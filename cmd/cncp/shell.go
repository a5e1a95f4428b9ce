package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bobg/subcmd"
	"github.com/pkg/errors"

	"github.com/bobg/cncp/fs"
)

const prompt = "cncp> "

type maincmd struct {
	f *fs.FileSystem

	out, errOut io.Writer
	quit        bool
}

func newMaincmd(f *fs.FileSystem) *maincmd {
	return &maincmd{f: f, out: os.Stdout, errOut: os.Stderr}
}

func (c *maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"cat":   c.cat,
		"cd":    c.cd,
		"get":   c.get,
		"ls":    c.ls,
		"mkdir": c.mkdir,
		"put":   c.put,
		"pwd":   c.pwd,
		"rm":    c.rm,
		"serve": c.serve,
		"set":   c.set,
		"stat":  c.stat,
		"unset": c.unset,

		"bye":  c.exit,
		"exit": c.exit,
		"quit": c.exit,
	}
}

// run dispatches one command, args[0] being the verb.
func (c *maincmd) run(ctx context.Context, args []string) error {
	if _, ok := c.Subcmds()[args[0]]; !ok {
		return fmt.Errorf("unknown command %s", args[0])
	}
	return subcmd.Run(ctx, c, args)
}

// shell runs commands read from in, one per line, until end of input or an exit command.
// A failing command is reported and the loop goes on.
func (c *maincmd) shell(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for !c.quit {
		fmt.Fprint(c.out, prompt)
		if !sc.Scan() {
			fmt.Fprintln(c.out)
			break
		}
		args := strings.Fields(sc.Text())
		if len(args) == 0 {
			continue
		}
		if err := c.run(ctx, args); err != nil {
			fmt.Fprintf(c.errOut, "%s: %s\n", args[0], err)
		}
	}
	return errors.Wrap(sc.Err(), "reading commands")
}

func (c *maincmd) exit(_ context.Context, _ *flag.FlagSet, _ []string) error {
	c.quit = true
	return nil
}
