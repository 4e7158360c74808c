// Package gate bounds how many synthesis calls run at once across the whole
// process.
package gate

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate is a counting permit pool shared by every session's generator.
// It is safe for concurrent use.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
}

// New returns a Gate admitting at most maxConcurrent calls. Values below 1
// are treated as 1.
func New(maxConcurrent int) *Gate {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		capacity: maxConcurrent,
	}
}

// Do blocks until a permit is available, runs fn and releases the permit when
// fn returns or panics. If ctx ends while waiting, fn is not run and ctx.Err()
// is returned.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.inFlight.Add(1)
	defer func() {
		g.inFlight.Add(-1)
		g.sem.Release(1)
	}()
	return fn(ctx)
}

// InFlight returns the number of calls currently holding a permit.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Capacity returns the configured permit count.
func (g *Gate) Capacity() int {
	return g.capacity
}
