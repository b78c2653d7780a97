// Package worker bounds CPU-heavy work such as hashing and metadata
// extraction so it cannot starve request handling.
package worker

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool admits at most Size concurrent jobs.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool creates a pool of size slots. Non-positive sizes use GOMAXPROCS.
func NewPool(size int) *Pool {
	if size < 1 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

type result[T any] struct {
	val T
	err error
}

// Do runs fn once a slot is free and waits for its result.
//
// If ctx ends first, Do returns ctx.Err(). A job that already started keeps
// its slot until fn returns; its result is discarded.
func Do[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	done := make(chan result[T], 1)
	go func() {
		defer p.sem.Release(1)
		v, err := fn()
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
