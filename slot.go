// Package slot implements a blocking single-slot channel shared by one
// producer and one consumer.
package slot

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is reported by operations on a closed channel.
	ErrClosed = errors.New("slot is closed")

	// ErrBusy is reported by Close if a goroutine is blocked in the channel.
	ErrBusy = errors.New("slot is busy")

	// ErrPending is reported by Close if the slot holds a value that was put
	// but never taken.
	ErrPending = errors.New("slot holds an undelivered value")
)

// State is the occupancy of a [Chan].
type State int

const (
	Empty State = iota // no undelivered value
	Full               // one undelivered value
)

func (s State) String() string {
	if s == Full {
		return "full"
	}
	return "empty"
}

// Stats is a snapshot of the activity on a [Chan].
type Stats struct {
	Puts      int // values stored
	Takes     int // values removed
	PutWaits  int // times a producer suspended waiting for the slot to empty
	TakeWaits int // times a consumer suspended waiting for the slot to fill
	Rewaits   int // wakeups that found the slot still in the wrong state
}

// A Chan is a single-element buffer that hands values from one producer
// goroutine to one consumer goroutine. The slot alternates strictly between
// [Empty] and [Full]: a put blocks until the slot is empty, and a take blocks
// until the slot is full, so no value is overwritten before it is taken and
// no value is taken twice. Values are delivered in the order they were put.
//
// A Chan must be constructed with [New] and must not be copied. It supports
// exactly one producer and one consumer; concurrent use by more than one
// goroutine on either side is not guarded against.
type Chan[T any] struct {
	// μ protects the fields below. The conditions use μ as their lock.
	μ        sync.Mutex
	notFull  *sync.Cond // signaled when a value is taken
	notEmpty *sync.Cond // signaled when a value is put

	value   T
	full    bool
	closed  bool
	waiting int // goroutines suspended on either condition
	stats   Stats
}

// New constructs a new empty channel.
func New[T any]() *Chan[T] {
	c := new(Chan[T])
	c.notFull = sync.NewCond(&c.μ)
	c.notEmpty = sync.NewCond(&c.μ)
	return c
}

// Put stores v in the slot, blocking until the slot is empty. Put panics with
// [ErrClosed] if c is closed.
func (c *Chan[T]) Put(v T) {
	if err := c.put(context.Background(), v, nil); err != nil {
		panic(err)
	}
}

// Take removes and returns the value in the slot, blocking until the slot is
// full. Take panics with [ErrClosed] if c is closed.
func (c *Chan[T]) Take() T {
	v, err := c.take(context.Background(), nil)
	if err != nil {
		panic(err)
	}
	return v
}

// Send stores v in the slot, blocking until the slot is empty, ctx ends, or c
// is closed. If ctx ends first Send returns the context error, and if c is
// closed it returns [ErrClosed]; in either case the slot is not modified.
func (c *Chan[T]) Send(ctx context.Context, v T) error { return c.put(ctx, v, nil) }

// Recv removes and returns the value in the slot, blocking until the slot is
// full, ctx ends, or c is closed. Errors are reported as for [Chan.Send].
func (c *Chan[T]) Recv(ctx context.Context) (T, error) { return c.take(ctx, nil) }

// SendFunc behaves as [Chan.Send], but if it succeeds it calls f(v) after v
// is stored and before the consumer is woken. The lock on c is held while f
// runs, so f must not call methods of c.
func (c *Chan[T]) SendFunc(ctx context.Context, v T, f func(T)) error { return c.put(ctx, v, f) }

// RecvFunc behaves as [Chan.Recv], but if it succeeds it calls f with the
// value after it is removed and before the producer is woken. The lock on c
// is held while f runs, so f must not call methods of c.
func (c *Chan[T]) RecvFunc(ctx context.Context, f func(T)) (T, error) { return c.take(ctx, f) }

// TryPut stores v and reports true if the slot is empty and c is open.
// Otherwise it reports false without blocking.
func (c *Chan[T]) TryPut(v T) bool {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.closed || c.full {
		return false
	}
	c.storeLocked(v, nil)
	return true
}

// TryTake removes and returns the value in the slot and reports true if the
// slot is full and c is open. Otherwise it reports a zero value and false
// without blocking.
func (c *Chan[T]) TryTake() (T, bool) {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.closed || !c.full {
		var zero T
		return zero, false
	}
	return c.removeLocked(nil), true
}

// State reports whether the slot is currently empty or full.
func (c *Chan[T]) State() State {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.full {
		return Full
	}
	return Empty
}

// Stats returns a snapshot of the activity on c.
func (c *Chan[T]) Stats() Stats {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.stats
}

// Close releases c. It reports [ErrBusy] if a goroutine is blocked in c,
// [ErrPending] if the slot is full, and [ErrClosed] if c is already closed;
// in those cases c is not modified. After a successful Close, Put and Take
// panic and the other operations report failure.
func (c *Chan[T]) Close() error {
	c.μ.Lock()
	defer c.μ.Unlock()
	switch {
	case c.closed:
		return ErrClosed
	case c.waiting > 0:
		return ErrBusy
	case c.full:
		return ErrPending
	}
	c.closed = true
	return nil
}

func (c *Chan[T]) put(ctx context.Context, v T, f func(T)) error {
	c.μ.Lock()
	defer c.μ.Unlock()
	if err := c.waitLocked(ctx, c.notFull, false, &c.stats.PutWaits); err != nil {
		return err
	}
	c.storeLocked(v, f)
	return nil
}

func (c *Chan[T]) take(ctx context.Context, f func(T)) (T, error) {
	c.μ.Lock()
	defer c.μ.Unlock()
	if err := c.waitLocked(ctx, c.notEmpty, true, &c.stats.TakeWaits); err != nil {
		var zero T
		return zero, err
	}
	return c.removeLocked(f), nil
}

// storeLocked fills the slot with v and wakes the consumer.
// The caller must hold c.μ and the slot must be empty.
func (c *Chan[T]) storeLocked(v T, f func(T)) {
	c.value, c.full = v, true
	c.stats.Puts++
	if f != nil {
		f(v)
	}
	c.notEmpty.Signal()
}

// removeLocked empties the slot and wakes the producer.
// The caller must hold c.μ and the slot must be full.
func (c *Chan[T]) removeLocked(f func(T)) T {
	var zero T
	v := c.value
	c.value, c.full = zero, false
	c.stats.Takes++
	if f != nil {
		f(v)
	}
	c.notFull.Signal()
	return v
}

// waitLocked blocks on cond until c.full == want, ctx ends, or c is closed.
// It increments *nwait if it has to suspend. The caller must hold c.μ.
func (c *Chan[T]) waitLocked(ctx context.Context, cond *sync.Cond, want bool, nwait *int) error {
	if err := ctx.Err(); err != nil {
		return err
	} else if c.closed {
		return ErrClosed
	} else if c.full == want {
		return nil
	}

	// A context that can end must be able to wake the waiter. The broadcast
	// takes the lock, so it cannot slip in between the check of ctx below and
	// the waiter's suspension.
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			c.μ.Lock()
			defer c.μ.Unlock()
			cond.Broadcast()
		})
		defer stop()
	}

	*nwait++
	c.waiting++
	defer func() { c.waiting-- }()

	woke := false
	for c.full != want {
		if err := ctx.Err(); err != nil {
			return err
		}
		if woke {
			c.stats.Rewaits++
		}
		cond.Wait()
		woke = true
	}
	return nil
}
