package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"k8s.io/klog/v2"

	"github.com/bobg/cncp/store/metrics"
	"github.com/bobg/cncp/store/rpc"
)

// serve exposes the shell's blob store over gRPC until the listener fails.
func (c *maincmd) serve(ctx context.Context, fset *flag.FlagSet, args []string) error {
	var (
		addr        = fset.String("listen", ":7070", "address to listen on")
		metricsAddr = fset.String("metrics", "", "address for serving Prometheus metrics (default: none)")
	)
	if err := fset.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	blobs := c.f.Blobs()
	if *metricsAddr != "" {
		ms, err := metrics.New(blobs, prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		blobs = ms

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		hs := &http.Server{Addr: *metricsAddr, Handler: mux}
		defer hs.Close()
		go func() {
			if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				klog.FromContext(ctx).Error(err, "Metrics server failed", "addr", *metricsAddr)
			}
		}()
	}

	gs := grpc.NewServer()
	rpc.Register(gs, rpc.NewServer(blobs))
	defer gs.GracefulStop()

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", *addr)
	}
	defer lis.Close()

	fmt.Fprintf(c.out, "Listening on %s\n", lis.Addr())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			gs.Stop()
		case <-done:
		}
	}()

	return gs.Serve(lis)
}
