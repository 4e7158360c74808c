package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGate_LimitsConcurrency(t *testing.T) {
	t.Parallel()
	for _, k := range []int{1, 2, 4} {
		g := New(k)
		var cur, peak atomic.Int64
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = g.Do(context.Background(), func(context.Context) error {
					n := cur.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					cur.Add(-1)
					return nil
				})
			}()
		}
		wg.Wait()
		if got := peak.Load(); got > int64(k) {
			t.Errorf("k=%d: peak concurrency %d exceeds capacity", k, got)
		}
		if g.InFlight() != 0 {
			t.Errorf("k=%d: InFlight after completion = %d, want 0", k, g.InFlight())
		}
	}
}

func TestGate_ReleasesOnError(t *testing.T) {
	t.Parallel()
	g := New(1)
	errBoom := errors.New("boom")
	if err := g.Do(context.Background(), func(context.Context) error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("Do: got %v, want errBoom", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.Do(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("permit not released after error: %v", err)
	}
}

func TestGate_ReleasesOnPanic(t *testing.T) {
	t.Parallel()
	g := New(1)
	func() {
		defer func() { _ = recover() }()
		_ = g.Do(context.Background(), func(context.Context) error { panic("synth crashed") })
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.Do(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("permit not released after panic: %v", err)
	}
}

func TestGate_CancelWhileWaiting(t *testing.T) {
	t.Parallel()
	g := New(1)
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := g.Do(ctx, func(context.Context) error { ran = true; return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do: got %v, want DeadlineExceeded", err)
	}
	if ran {
		t.Error("fn must not run when the permit was never acquired")
	}
}

func TestNew_MinimumCapacity(t *testing.T) {
	t.Parallel()
	if got := New(0).Capacity(); got != 1 {
		t.Errorf("Capacity: got %d, want 1", got)
	}
	if got := New(3).Capacity(); got != 3 {
		t.Errorf("Capacity: got %d, want 3", got)
	}
}
