package slot

import (
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
)

// Waiters must re-check the slot after every wakeup, since a condition may
// be signaled without the state they are waiting for.
func TestSpuriousWakeup(t *testing.T) {
	defer leaktest.Check(t)()

	rewaits := func(c *Chan[int]) int {
		c.μ.Lock()
		defer c.μ.Unlock()
		return c.stats.Rewaits
	}
	waitUntil := func(t *testing.T, what string, cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(10 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatalf("Timed out waiting for %s", what)
			}
			time.Sleep(time.Millisecond)
		}
	}

	t.Run("Take", func(t *testing.T) {
		c := New[int]()
		got := make(chan int, 1)
		go func() { got <- c.Take() }()
		waitUntil(t, "consumer to block", func() bool { return c.Stats().TakeWaits == 1 })

		const numWakes = 3
		for i := 1; i <= numWakes; i++ {
			c.μ.Lock()
			c.notEmpty.Broadcast()
			c.μ.Unlock()
			waitUntil(t, "consumer to wait again", func() bool { return rewaits(c) == i })
		}

		select {
		case v := <-got:
			t.Fatalf("Take returned %d after a spurious wakeup", v)
		default:
		}
		c.Put(14)
		if v := <-got; v != 14 {
			t.Errorf("Take: got %d, want 14", v)
		}
	})

	t.Run("Put", func(t *testing.T) {
		c := New[int]()
		c.Put(7)
		done := make(chan struct{})
		go func() { defer close(done); c.Put(14) }()
		waitUntil(t, "producer to block", func() bool { return c.Stats().PutWaits == 1 })

		c.μ.Lock()
		c.notFull.Broadcast()
		c.μ.Unlock()
		waitUntil(t, "producer to wait again", func() bool { return rewaits(c) == 1 })

		if got := c.Take(); got != 7 {
			t.Errorf("Take: got %d, want 7 (value was overwritten)", got)
		}
		<-done
		if got := c.Take(); got != 14 {
			t.Errorf("Take: got %d, want 14", got)
		}
	})
}
