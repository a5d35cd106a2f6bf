// Package fanout runs a fixed set of independent tasks and waits for every
// one of them to settle.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of a single task.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// OK reports whether the task produced a value.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Settle runs fn for every index in [0, n) with at most limit tasks in
// flight (limit <= 0 means unbounded) and returns one Result per index, in
// index order. A failing task never cancels its siblings.
//
// If ctx is cancelled, tasks that have not started yet settle with ctx.Err().
func Settle[T any](ctx context.Context, n, limit int, fn func(ctx context.Context, i int) (T, error)) []Result[T] {
	results := make([]Result[T], n)
	if n == 0 {
		return results
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i := 0; i < n; i++ {
		results[i].Index = i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			v, err := fn(ctx, i)
			results[i].Value = v
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Values returns the values of the successful results.
func Values[T any](results []Result[T]) []T {
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r.OK() {
			out = append(out, r.Value)
		}
	}
	return out
}

// Failed counts the results that carry an error.
func Failed[T any](results []Result[T]) int {
	n := 0
	for _, r := range results {
		if !r.OK() {
			n++
		}
	}
	return n
}
