// Package concurrency provides the FIFO-fair coordination lock the
// continuous pipeline evaluator and API-triggered nodetree imports both
// contend for, grounded in util/concurrency.py's FifoLock (a
// threading.Condition plus a shared queue.Queue used to grant admission
// strictly in arrival order).
//
// Go has no idiomatic baton-passing Condition primitive, so FifoLock here
// is a channel-chaining mutex: each Lock call installs a fresh "ticket"
// channel as the new tail under a tiny internal mutex, then waits on the
// previous tail (captured before replacement) to close. Because installing
// the new tail happens strictly inside the internal mutex, the order in
// which goroutines pass through Lock is exactly their FIFO arrival order —
// the same guarantee util/concurrency.py's queue gave the original, without
// needing a separate admission-granting goroutine loop (program.py's
// mainloop queue-pop loop has no analogue here).
package concurrency

import (
	"context"
	"sync"
)

// FifoLock grants mutually exclusive access to callers strictly in the
// order they called Lock, mirroring pipeline.py's use of `with self.lock`
// around both the continuous evaluator's run() and every API mutation.
type FifoLock struct {
	mu   sync.Mutex
	tail chan struct{}

	waiting int
}

// NewFifoLock returns a ready-to-use, initially-unlocked FifoLock.
func NewFifoLock() *FifoLock {
	f := &FifoLock{tail: make(chan struct{})}
	close(f.tail) // first Lock call has nothing to wait on
	return f
}

// Lock blocks until every caller that arrived earlier has released, then
// returns a release function. ctx cancellation while waiting returns a
// non-nil error and no release function; the caller must not call an
// error'd Lock's (nil) release.
func (f *FifoLock) Lock(ctx context.Context) (func(), error) {
	f.mu.Lock()
	prev := f.tail
	next := make(chan struct{})
	f.tail = next
	f.waiting++
	f.mu.Unlock()

	select {
	case <-prev:
		released := false
		release := func() {
			if released {
				return
			}
			released = true
			f.mu.Lock()
			f.waiting--
			f.mu.Unlock()
			close(next)
		}
		return release, nil
	case <-ctx.Done():
		f.mu.Lock()
		f.waiting--
		f.mu.Unlock()
		// The next waiter is chained off `next`, not `prev`, so the queue
		// must still drain through this ticket even though this caller
		// never acquired the lock. But `next` must not close until `prev`
		// itself does — closing it early would let the successor acquire
		// the lock while whoever holds `prev` is still running, breaking
		// mutual exclusion. Splice this ticket out by forwarding the wait.
		go func() {
			<-prev
			close(next)
		}()
		return nil, ctx.Err()
	}
}

// Waiting returns the number of goroutines currently queued on this lock,
// including whichever one currently holds it, for metrics.UpdateQueueDepth.
func (f *FifoLock) Waiting() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiting
}

// WithLock runs fn while holding the lock, releasing it unconditionally
// afterward, mirroring Python's `with self.lock:` block form.
func (f *FifoLock) WithLock(ctx context.Context, fn func() error) error {
	release, err := f.Lock(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
