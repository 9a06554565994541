package store

import (
	"context"
	"time"

	"github.com/rewired-gh/solarcast/internal/metrics"
)

// Instrumented counts every call of the wrapped Store and optionally bounds it
// with a per-call timeout. A zero timeout leaves the caller's context as is.
type Instrumented struct {
	Store   Store
	Timeout time.Duration
}

// WithMetrics wraps s.
func WithMetrics(s Store, timeout time.Duration) *Instrumented {
	return &Instrumented{Store: s, Timeout: timeout}
}

func (s *Instrumented) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.Timeout)
}

func observe(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StoreOperations.WithLabelValues(op, status).Inc()
}

// Get implements Store.
func (s *Instrumented) Get(ctx context.Context, path string) (map[string]any, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	doc, err := s.Store.Get(ctx, path)
	observe("get", err)
	return doc, err
}

// Set implements Store.
func (s *Instrumented) Set(ctx context.Context, path string, doc map[string]any) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	err := s.Store.Set(ctx, path, doc)
	observe("set", err)
	return err
}

// Update implements Store.
func (s *Instrumented) Update(ctx context.Context, path string, fields map[string]any) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	err := s.Store.Update(ctx, path, fields)
	observe("update", err)
	return err
}

// LastChild implements Store.
func (s *Instrumented) LastChild(ctx context.Context, prefix string) (string, bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	key, ok, err := s.Store.LastChild(ctx, prefix)
	observe("last_child", err)
	return key, ok, err
}

// Close implements Store.
func (s *Instrumented) Close() error {
	return s.Store.Close()
}
