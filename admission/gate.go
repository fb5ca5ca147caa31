package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vinayprograms/pagechat/errors"
)

// DefaultCapacity is the number of concurrent calls admitted when unset.
const DefaultCapacity = 3

// Config configures a Gate.
type Config struct {
	// Capacity is the maximum number of tickets outstanding.
	Capacity int

	// WaitTimeout bounds the queue wait. Zero waits until the caller's
	// context ends.
	WaitTimeout time.Duration
}

// Capacity is a point-in-time view of the gate.
type Capacity struct {
	Total    int `json:"total"`
	InFlight int `json:"in_flight"`
	Waiting  int `json:"waiting"`
}

// Gate admits a bounded number of concurrent holders. It is safe for
// concurrent use.
type Gate struct {
	sem     *semaphore.Weighted
	total   int
	timeout time.Duration

	inFlight atomic.Int64
	waiting  atomic.Int64

	closed    atomic.Bool
	closeCtx  context.Context
	closeFunc context.CancelFunc
}

// New creates a gate. A non-positive capacity uses DefaultCapacity.
func New(cfg Config) *Gate {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	closeCtx, closeFunc := context.WithCancel(context.Background())
	return &Gate{
		sem:       semaphore.NewWeighted(int64(cfg.Capacity)),
		total:     cfg.Capacity,
		timeout:   cfg.WaitTimeout,
		closeCtx:  closeCtx,
		closeFunc: closeFunc,
	}
}

// Ticket is a held slot. Release frees it.
type Ticket struct {
	gate     *Gate
	once     sync.Once
	acquired time.Time
	waited   time.Duration
}

// Release frees the slot. Only the first call has an effect.
func (t *Ticket) Release() {
	t.once.Do(func() {
		t.gate.inFlight.Add(-1)
		t.gate.sem.Release(1)
	})
}

// Waited reports how long the holder queued before admission.
func (t *Ticket) Waited() time.Duration {
	return t.waited
}

// Held reports how long the ticket has been held.
func (t *Ticket) Held() time.Duration {
	return time.Since(t.acquired)
}

// Acquire blocks until a slot is free. It fails with CANCELED or TIMEOUT when
// ctx ends, BUSY when the wait timeout expires first, and CLOSED once the gate
// is closed.
func (g *Gate) Acquire(ctx context.Context) (*Ticket, error) {
	if g.closed.Load() {
		return nil, errors.FromCode(errors.ErrCodeClosed)
	}

	start := time.Now()
	if g.sem.TryAcquire(1) {
		return g.issue(start), nil
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(g.closeCtx, cancel)
	defer stop()

	var timedOut atomic.Bool
	if g.timeout > 0 {
		timer := time.AfterFunc(g.timeout, func() {
			timedOut.Store(true)
			cancel()
		})
		defer timer.Stop()
	}

	g.waiting.Add(1)
	err := g.sem.Acquire(waitCtx, 1)
	g.waiting.Add(-1)

	if err == nil {
		if g.closed.Load() {
			g.sem.Release(1)
			return nil, errors.FromCode(errors.ErrCodeClosed)
		}
		return g.issue(start), nil
	}

	switch {
	case ctx.Err() != nil:
		return nil, errors.FromContext(ctx.Err(), "waiting for generation slot")
	case g.closed.Load():
		return nil, errors.FromCode(errors.ErrCodeClosed)
	case timedOut.Load():
		return nil, errors.Busy("The service is busy. Please try again shortly.",
			errors.WithMetadata("wait_timeout", g.timeout.String()))
	default:
		return nil, errors.WrapWithCode(err, errors.ErrCodeInternal, "waiting for generation slot")
	}
}

// TryAcquire returns a ticket only if a slot is free right now.
func (g *Gate) TryAcquire() (*Ticket, bool) {
	if g.closed.Load() || !g.sem.TryAcquire(1) {
		return nil, false
	}
	return g.issue(time.Now()), true
}

func (g *Gate) issue(start time.Time) *Ticket {
	g.inFlight.Add(1)
	now := time.Now()
	return &Ticket{gate: g, acquired: now, waited: now.Sub(start)}
}

// Do runs fn while holding a ticket. The ticket is released on every exit
// path, including a panic in fn, which is re-raised after release.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	ticket, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer ticket.Release()
	return fn(ctx)
}

// Capacity returns the current occupancy.
func (g *Gate) Capacity() Capacity {
	return Capacity{
		Total:    g.total,
		InFlight: int(g.inFlight.Load()),
		Waiting:  int(g.waiting.Load()),
	}
}

// Close rejects new acquisitions and wakes queued callers with CLOSED.
// Outstanding tickets stay valid and may still be released.
func (g *Gate) Close() error {
	if g.closed.Swap(true) {
		return errors.FromCode(errors.ErrCodeClosed)
	}
	g.closeFunc()
	return nil
}

// Drain waits until every outstanding ticket has been released or ctx ends.
// Call it after Close.
func (g *Gate) Drain(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, int64(g.total)); err != nil {
		return errors.FromContext(err, "draining generation slots")
	}
	g.sem.Release(int64(g.total))
	return nil
}
