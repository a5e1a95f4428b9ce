// Command cncp is an interactive shell over a content repository:
// a tree of nodes whose files live in a blob store.
//
// Usage:
//
//	cncp [-config FILE] [VERB ARGS...]
//
// With a verb, cncp runs that one command and exits.
// Without one, it reads commands from standard input, one per line.
//
// The config file is JSON of the form {"blobs": {"type": ..., ...}},
// where the "blobs" object configures the blob store
// (see package store for the available types).
// With no config file, everything is held in memory.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/fs"
	nodemem "github.com/bobg/cncp/node/mem"
	"github.com/bobg/cncp/store"
	_ "github.com/bobg/cncp/store/bt"
	_ "github.com/bobg/cncp/store/compress"
	_ "github.com/bobg/cncp/store/datastore"
	_ "github.com/bobg/cncp/store/file"
	_ "github.com/bobg/cncp/store/gcs"
	_ "github.com/bobg/cncp/store/logging"
	_ "github.com/bobg/cncp/store/lru"
	"github.com/bobg/cncp/store/mem"
	_ "github.com/bobg/cncp/store/pg"
	_ "github.com/bobg/cncp/store/rpc"
	_ "github.com/bobg/cncp/store/sqlite3"
)

func main() {
	klog.InitFlags(nil)
	config := flag.String("config", "", "path to config file (default: in-memory)")
	flag.Parse()

	ctx := context.Background()

	blobs, err := blobStore(ctx, *config)
	if err != nil {
		klog.Fatal(err)
	}

	c := newMaincmd(fs.New(nodemem.New(), blobs))

	if flag.NArg() > 0 {
		if err = c.run(ctx, flag.Args()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if err = c.shell(ctx, os.Stdin); err != nil {
		klog.Fatal(err)
	}
}

type config struct {
	Blobs map[string]interface{} `json:"blobs"`
}

func blobStore(ctx context.Context, filename string) (cncp.Store, error) {
	if filename == "" {
		secret, err := cncp.NewSecret()
		if err != nil {
			return nil, err
		}
		return mem.New(secret), nil
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %s", filename)
	}
	defer f.Close()

	var conf config
	if err = json.NewDecoder(f).Decode(&conf); err != nil {
		return nil, errors.Wrapf(err, "decoding config file %s", filename)
	}
	if conf.Blobs == nil {
		return nil, fmt.Errorf("config file %s missing `blobs` section", filename)
	}
	typ, ok := conf.Blobs["type"].(string)
	if !ok {
		return nil, fmt.Errorf("config file %s missing `blobs.type` parameter", filename)
	}

	s, err := store.Create(ctx, typ, conf.Blobs)
	return s, errors.Wrapf(err, "creating %s-type store", typ)
}
