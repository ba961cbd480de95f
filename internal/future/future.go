// Package future provides one-shot asynchronous results.
//
// A Future settles exactly once, with a value or an error. Any number of
// goroutines may wait on it; all observe the same outcome. Abandoning a
// Future (never awaiting it, or awaiting with a context that is cancelled)
// does not stop the work behind it; the result is simply discarded.
package future

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Future is the eventual result of an asynchronous operation.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go runs fn in a new goroutine and returns a Future for its result.
// A panic in fn settles the Future with an error instead of crashing.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.val, f.err = zero, fmt.Errorf("future: panic: %v", r)
			}
		}()
		f.val, f.err = fn()
	}()
	return f
}

// Value returns an already-settled Future holding v.
func Value[T any](v T) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), val: v}
	close(f.done)
	return f
}

// Fail returns an already-settled Future holding err.
func Fail[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// Done is closed when the Future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the Future settles or ctx is done. A cancelled ctx
// returns ctx.Err() but leaves the underlying work running.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks until the Future settles.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// JoinError reports the first failing member of a Join.
type JoinError struct {
	Index int
	Err   error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *JoinError) Unwrap() error {
	return e.Err
}

// Join waits for every Future and returns their values in input order.
// If any Future fails, Join fails with a *JoinError for the first failure
// observed and stops waiting on the rest; their work continues and their
// results are discarded. Joining no Futures yields an empty slice.
func Join[T any](ctx context.Context, fs []*Future[T]) ([]T, error) {
	results := make([]T, len(fs))
	g, gctx := errgroup.WithContext(ctx)

	for i, f := range fs {
		g.Go(func() error {
			v, err := f.Await(gctx)
			if err != nil {
				// Siblings cancelled by an earlier failure are not the cause.
				if gctx.Err() != nil && ctx.Err() == nil && err == gctx.Err() {
					return nil
				}
				return &JoinError{Index: i, Err: err}
			}
			results[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
