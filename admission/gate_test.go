package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vinayprograms/pagechat/errors"
)

func TestNew_DefaultCapacity(t *testing.T) {
	g := New(Config{})
	if got := g.Capacity().Total; got != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, got)
	}
}

func TestAcquireRelease(t *testing.T) {
	g := New(Config{Capacity: 2})
	ctx := context.Background()

	t1, err := g.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	t2, err := g.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if c := g.Capacity(); c.InFlight != 2 {
		t.Errorf("expected 2 in flight, got %d", c.InFlight)
	}
	if _, ok := g.TryAcquire(); ok {
		t.Error("TryAcquire should fail when full")
	}

	t1.Release()
	t2.Release()
	if c := g.Capacity(); c.InFlight != 0 {
		t.Errorf("expected 0 in flight, got %d", c.InFlight)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	g := New(Config{Capacity: 1})

	ticket, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	ticket.Release()
	ticket.Release()
	ticket.Release()

	if c := g.Capacity(); c.InFlight != 0 {
		t.Errorf("expected 0 in flight, got %d", c.InFlight)
	}

	// A double release must not have minted an extra slot.
	held, ok := g.TryAcquire()
	if !ok {
		t.Fatal("slot should be free")
	}
	defer held.Release()
	if _, ok := g.TryAcquire(); ok {
		t.Error("capacity grew after repeated Release")
	}
}

func TestGate_NeverExceedsCapacity(t *testing.T) {
	const capacity = 3
	g := New(Config{Capacity: capacity})

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Do(context.Background(), func(ctx context.Context) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("Do failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > capacity {
		t.Errorf("peak concurrency %d exceeded capacity %d", p, capacity)
	}
	if c := g.Capacity(); c.InFlight != 0 || c.Waiting != 0 {
		t.Errorf("gate not idle after all work: %+v", c)
	}
}

func TestDo_ReleasesOnError(t *testing.T) {
	g := New(Config{Capacity: 1})
	boom := errors.Internal("boom")

	err := g.Do(context.Background(), func(ctx context.Context) error { return boom })
	if err != boom {
		t.Errorf("expected fn error to pass through, got %v", err)
	}
	if c := g.Capacity(); c.InFlight != 0 {
		t.Errorf("slot leaked after error: %+v", c)
	}
}

func TestDo_ReleasesOnPanic(t *testing.T) {
	g := New(Config{Capacity: 1})

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = g.Do(context.Background(), func(ctx context.Context) error { panic("generation exploded") })
	}()

	if c := g.Capacity(); c.InFlight != 0 {
		t.Errorf("slot leaked after panic: %+v", c)
	}
	if ticket, ok := g.TryAcquire(); !ok {
		t.Error("slot should be free after panic")
	} else {
		ticket.Release()
	}
}

func TestAcquire_ContextCanceled(t *testing.T) {
	g := New(Config{Capacity: 1})
	held, _ := g.TryAcquire()
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := g.Acquire(ctx)
	if !errors.Is(err, errors.ErrCodeCanceled) {
		t.Errorf("expected CANCELED, got %v", err)
	}
}

func TestAcquire_ContextDeadline(t *testing.T) {
	g := New(Config{Capacity: 1})
	held, _ := g.TryAcquire()
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Acquire(ctx)
	if !errors.Is(err, errors.ErrCodeTimeout) {
		t.Errorf("expected TIMEOUT, got %v", err)
	}
}

func TestAcquire_WaitTimeoutBusy(t *testing.T) {
	g := New(Config{Capacity: 1, WaitTimeout: 20 * time.Millisecond})
	held, _ := g.TryAcquire()
	defer held.Release()

	start := time.Now()
	_, err := g.Acquire(context.Background())
	if !errors.Is(err, errors.ErrCodeBusy) {
		t.Fatalf("expected BUSY, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("wait timeout not honored")
	}
	if c := g.Capacity(); c.Waiting != 0 {
		t.Errorf("waiter not cleaned up: %+v", c)
	}
}

func TestAcquire_FIFO(t *testing.T) {
	g := New(Config{Capacity: 1})
	held, _ := g.TryAcquire()

	order := make(chan int, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, err := g.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			order <- i
			ticket.Release()
		}(i)
		// Let each waiter enqueue before the next.
		for g.Capacity().Waiting != i+1 {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(5 * time.Millisecond)
	}

	held.Release()
	wg.Wait()
	close(order)

	want := 0
	for got := range order {
		if got != want {
			t.Errorf("admitted %d, want %d", got, want)
		}
		want++
	}
}

func TestClose(t *testing.T) {
	g := New(Config{Capacity: 1})
	held, _ := g.TryAcquire()

	errCh := make(chan error, 1)
	go func() {
		_, err := g.Acquire(context.Background())
		errCh <- err
	}()
	for g.Capacity().Waiting != 1 {
		time.Sleep(time.Millisecond)
	}

	if err := g.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := <-errCh; !errors.Is(err, errors.ErrCodeClosed) {
		t.Errorf("queued caller expected CLOSED, got %v", err)
	}
	if _, err := g.Acquire(context.Background()); !errors.Is(err, errors.ErrCodeClosed) {
		t.Errorf("Acquire after Close expected CLOSED, got %v", err)
	}
	if err := g.Close(); !errors.Is(err, errors.ErrCodeClosed) {
		t.Errorf("second Close expected CLOSED, got %v", err)
	}

	// Outstanding tickets still release cleanly and Drain completes.
	held.Release()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.Drain(ctx); err != nil {
		t.Errorf("Drain failed: %v", err)
	}
}

func TestDrain_Timeout(t *testing.T) {
	g := New(Config{Capacity: 1})
	held, _ := g.TryAcquire()
	defer held.Release()
	g.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Drain(ctx); !errors.Is(err, errors.ErrCodeTimeout) {
		t.Errorf("expected TIMEOUT while a ticket is held, got %v", err)
	}
}
