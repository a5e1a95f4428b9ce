// Package metrics implements a store that delegates everything to a nested store,
// recording Prometheus metrics for each operation.
package metrics

import (
	"context"
	stderrs "errors"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/store"
)

var _ cncp.Store = &Store{}

// Store counts and times the operations on a nested store.
type Store struct {
	s cncp.Store

	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
}

// Values of the "result" label.
const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultRejected = "rejected"
	resultError    = "error"
)

// New produces a new Store wrapping s,
// registering its collectors with reg.
// If collectors of the same names are already registered,
// as when two Stores share a Registerer,
// those are used instead.
func New(s cncp.Store, reg prometheus.Registerer) (*Store, error) {
	ops, err := register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cncp_store_operations_total",
			Help: "blob store operations, by operation and result",
		},
		[]string{"op", "result"},
	))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cncp_store_operation_duration_seconds",
			Help:    "latency of blob store operations",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"op"},
	))
	if err != nil {
		return nil, err
	}
	bytes, err := register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cncp_store_payload_bytes_total",
			Help: "payload bytes moved, by direction",
		},
		[]string{"direction"},
	))
	if err != nil {
		return nil, err
	}
	return &Store{s: s, ops: ops, duration: duration, bytes: bytes}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	var are prometheus.AlreadyRegisteredError
	if stderrs.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, errors.Wrap(err, "registering collector")
}

func result(err error) string {
	switch {
	case err == nil:
		return resultOK
	case stderrs.Is(err, cncp.ErrNotFound):
		return resultNotFound
	case stderrs.Is(err, cncp.ErrInvalidToken), stderrs.Is(err, cncp.ErrMismatch):
		return resultRejected
	}
	return resultError
}

// observe records one operation begun at start.
func (s *Store) observe(op string, start time.Time, err error) {
	s.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	s.ops.WithLabelValues(op, result(err)).Inc()
}

func (s *Store) Create(ctx context.Context, name string, length int64) (*cncp.Blob, error) {
	start := time.Now()
	blob, err := s.s.Create(ctx, name, length)
	s.observe("create", start, err)
	if err != nil {
		return nil, err
	}
	return cncp.NewBlob(s, blob.ID()), nil
}

func (s *Store) Blob(ctx context.Context, id cncp.Identifier) (*cncp.Blob, error) {
	start := time.Now()
	_, err := s.s.Blob(ctx, id)
	s.observe("blob", start, err)
	if err != nil {
		return nil, err
	}
	return cncp.NewBlob(s, id), nil
}

func (s *Store) Write(ctx context.Context, id cncp.Identifier, data []byte) error {
	start := time.Now()
	err := s.s.Write(ctx, id, data)
	s.observe("write", start, err)
	if err == nil {
		s.bytes.WithLabelValues("in").Add(float64(len(data)))
	}
	return err
}

func (s *Store) Read(ctx context.Context, id cncp.Identifier) ([]byte, error) {
	start := time.Now()
	data, err := s.s.Read(ctx, id)
	s.observe("read", start, err)
	s.bytes.WithLabelValues("out").Add(float64(len(data)))
	return data, err
}

func (s *Store) Exists(ctx context.Context, id cncp.Identifier) (bool, error) {
	start := time.Now()
	ok, err := s.s.Exists(ctx, id)
	s.observe("exists", start, err)
	return ok, err
}

func (s *Store) Delete(ctx context.Context, id cncp.Identifier) (bool, error) {
	start := time.Now()
	ok, err := s.s.Delete(ctx, id)
	s.observe("delete", start, err)
	return ok, err
}

func (s *Store) BeginDirectWrite(ctx context.Context, id cncp.Identifier) (*cncp.WriteContext, error) {
	start := time.Now()
	wc, err := s.s.BeginDirectWrite(ctx, id)
	s.observe("begin_direct_write", start, err)
	return wc, err
}

func (s *Store) EndDirectWrite(ctx context.Context, id cncp.Identifier, wc *cncp.WriteContext) (bool, error) {
	start := time.Now()
	ok, err := s.s.EndDirectWrite(ctx, id, wc)
	s.observe("end_direct_write", start, err)
	if ok {
		s.bytes.WithLabelValues("in").Add(float64(len(wc.Bytes())))
	}
	return ok, err
}

func (s *Store) BeginDirectRead(ctx context.Context, id cncp.Identifier) (*cncp.ReadContext, error) {
	start := time.Now()
	rc, err := s.s.BeginDirectRead(ctx, id)
	s.observe("begin_direct_read", start, err)
	if err == nil {
		s.bytes.WithLabelValues("out").Add(float64(rc.Len()))
	}
	return rc, err
}

func init() {
	store.Register("metrics", func(ctx context.Context, conf map[string]interface{}) (cncp.Store, error) {
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, prometheus.DefaultRegisterer)
	})
}
