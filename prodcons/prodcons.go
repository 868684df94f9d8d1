// Package prodcons runs a producer and a consumer goroutine that exchange a
// fixed sequence of items through a single-slot channel.
//
// The producer stores Item(1), Item(2), ..., Item(n) in turn, and the
// consumer removes each one as soon as it appears. Each task reports its
// progress to a [Sink] as it goes.
package prodcons

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/creachadair/slot"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fastrand"
	"golang.org/x/sync/errgroup"
)

// Factor is the multiplier applied to an iteration index to make an item.
const Factor = 7

// DefaultCount is the number of items exchanged by the command-line tool
// when no count is given.
const DefaultCount = 10

// ErrCount is reported by [Run] and [Check] for a negative item count.
var ErrCount = errors.New("item count is negative")

// Item returns the item produced on iteration i.
func Item(i int) int { return i * Factor }

// Produce stores Item(1) through Item(n) in ch, in order, reporting each to
// sink once it is stored. It returns nil after the n-th item is stored, or an
// error if ctx ends or ch is closed first. A nil sink discards events.
func Produce(ctx context.Context, ch *slot.Chan[int], n int, sink Sink) error {
	return newTask(ch, n, sink, 0).produce(ctx)
}

// Consume removes n items from ch, reporting each to sink once it is
// removed. It returns nil after the n-th item is removed, or an error if ctx
// ends or ch is closed first. A nil sink discards events.
func Consume(ctx context.Context, ch *slot.Chan[int], n int, sink Sink) error {
	return newTask(ch, n, sink, 0).consume(ctx)
}

// Config carries the settings for [Run].
type Config struct {
	// Count is the number of items to exchange. Zero is valid and exchanges
	// nothing.
	Count int

	// Sink, if non-nil, receives the events emitted by both tasks.
	Sink Sink

	// Jitter, if positive, makes each task pause for a random duration less
	// than Jitter before each iteration.
	Jitter time.Duration

	// Log, if non-nil, receives diagnostic logs. If nil, Run logs to the
	// standard logrus logger.
	Log *logrus.Entry
}

// Run creates a channel, runs a producer and a consumer over it
// concurrently, and waits for both to finish before releasing the channel.
// It returns the final activity counts for the channel.
//
// If ctx ends before the exchange is complete, both tasks stop and Run
// reports the context error. The channel is still released once both tasks
// have returned, even if the producer stored an item the consumer never took.
func Run(ctx context.Context, cfg Config) (slot.Stats, error) {
	if cfg.Count < 0 {
		return slot.Stats{}, fmt.Errorf("%w: %d", ErrCount, cfg.Count)
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithFields(logrus.Fields{
		"run":   uuid.New().String(),
		"count": cfg.Count,
	})

	ch := slot.New[int]()
	t := newTask(ch, cfg.Count, cfg.Sink, cfg.Jitter)

	log.Debug("Starting producer and consumer")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.consume(gctx) })
	g.Go(func() error { return t.produce(gctx) })
	err := g.Wait()
	st := ch.Stats()
	log = log.WithFields(logrus.Fields{
		"puts":       st.Puts,
		"takes":      st.Takes,
		"put_waits":  st.PutWaits,
		"take_waits": st.TakeWaits,
	})
	if err != nil {
		// Both tasks have returned, so nobody is blocked; at most one item is
		// left in the slot.
		cerr := ch.Close()
		log.WithError(err).WithField("pending", errors.Is(cerr, slot.ErrPending)).Warn("Exchange stopped early")
		return st, err
	}
	log.Debug("Producer and consumer joined")

	if err := ch.Close(); err != nil {
		return st, fmt.Errorf("release channel: %w", err)
	}
	return st, nil
}

// A task is the loop state shared by the producer and consumer.
type task struct {
	ch     *slot.Chan[int]
	n      int
	sink   Sink
	jitter time.Duration
}

func newTask(ch *slot.Chan[int], n int, sink Sink, jitter time.Duration) task {
	if sink == nil {
		sink = Discard
	}
	return task{ch: ch, n: n, sink: sink, jitter: jitter}
}

func (t task) produce(ctx context.Context) error {
	for i := 1; i <= t.n; i++ {
		if err := t.pause(ctx); err != nil {
			return err
		}
		if err := t.ch.SendFunc(ctx, Item(i), func(v int) {
			t.sink.Notify(Event{Kind: Produced, Seq: i, Item: v})
		}); err != nil {
			return err
		}
	}
	return nil
}

func (t task) consume(ctx context.Context) error {
	for i := 1; i <= t.n; i++ {
		if err := t.pause(ctx); err != nil {
			return err
		}
		if _, err := t.ch.RecvFunc(ctx, func(v int) {
			t.sink.Notify(Event{Kind: Consumed, Seq: i, Item: v})
		}); err != nil {
			return err
		}
	}
	return nil
}

// pause sleeps for a random duration less than t.jitter, or until ctx ends.
func (t task) pause(ctx context.Context) error {
	if t.jitter <= 0 {
		return nil
	}
	d := time.Duration(fastrand.Uint32n(uint32(min(t.jitter, math.MaxUint32))))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
