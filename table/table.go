// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package table applies per-record transformations to keyed, ordered batches
// of records in parallel.
package table

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Row is one keyed record.
type Row[V any] struct {
	Key   string
	Value V
}

// Table is an ordered list of rows. Order is preserved by every operation.
type Table[V any] []Row[V]

// FromValues builds a table keyed by position.
func FromValues[V any](values []V) Table[V] {
	t := make(Table[V], len(values))
	for i, v := range values {
		t[i] = Row[V]{Key: fmt.Sprintf("%d", i), Value: v}
	}
	return t
}

// Values returns the row values in order.
func (t Table[V]) Values() []V {
	out := make([]V, len(t))
	for i, r := range t {
		out[i] = r.Value
	}
	return out
}

// MapValues applies fn to every row with at most workers goroutines and
// returns a table with the same keys in the same order. The first error
// cancels the remaining work. workers <= 0 uses GOMAXPROCS.
func MapValues[V, W any](ctx context.Context, t Table[V], workers int, fn func(V) (W, error)) (Table[W], error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make(Table[W], len(t))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, row := range t {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			w, err := fn(row.Value)
			if err != nil {
				return fmt.Errorf("row %q: %w", row.Key, err)
			}
			out[i] = Row[W]{Key: row.Key, Value: w}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
