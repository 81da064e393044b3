// Package source defines the shape shared by every read-only data source the
// agent polls, and the adapter that gives them uniform failure handling.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotInitialized is logged when a source has no usable remote client.
var ErrNotInitialized = errors.New("source not initialized")

// Source fetches a bounded window of recent records of one kind.
// Fetch never fails: problems are logged and yield an empty result.
type Source[T any] interface {
	Name() string
	Ready() bool
	Fetch(ctx context.Context) []T
}

// FetchFunc performs the remote query of a source.
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// Classifier turns a remote error into a short label for logs.
type Classifier func(err error) string

// Adapter implements Source on top of an optional FetchFunc.
type Adapter[T any] struct {
	name     string
	fetch    FetchFunc[T]
	logger   *slog.Logger
	classify Classifier
}

// Ensure Adapter implements Source.
var _ Source[struct{}] = (*Adapter[struct{}])(nil)

// NewAdapter wraps fetch. A nil fetch produces an uninitialized source.
func NewAdapter[T any](name string, fetch FetchFunc[T], logger *slog.Logger, classify Classifier) *Adapter[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter[T]{name: name, fetch: fetch, logger: logger.With("source", name), classify: classify}
}

// Name returns the source name used in logs.
func (a *Adapter[T]) Name() string { return a.name }

// Ready reports whether the source has a remote client.
func (a *Adapter[T]) Ready() bool { return a.fetch != nil }

// Fetch runs the remote query and contains any failure.
func (a *Adapter[T]) Fetch(ctx context.Context) (items []T) {
	if a.fetch == nil {
		a.logger.Warn("Source not initialized, skipping fetch.", "error", ErrNotInitialized)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Source fetch panicked, returning no items.", "error", fmt.Errorf("panic: %v", r))
			items = nil
		}
	}()

	items, err := a.fetch(ctx)
	if err != nil {
		attrs := []any{"error", err}
		if a.classify != nil {
			attrs = append(attrs, "kind", a.classify(err))
		}
		a.logger.Error("Source fetch failed, returning no items.", attrs...)
		return nil
	}

	if len(items) == 0 {
		a.logger.Info("No recent items found.")
	} else {
		a.logger.Info("Fetched items.", "count", len(items))
	}
	return items
}
