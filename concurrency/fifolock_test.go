package concurrency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockGrantsAccessInArrivalOrder(t *testing.T) {
	f := NewFifoLock()
	ctx := context.Background()

	// Hold the lock first so every waiter below queues up behind it in the
	// order they're launched, rather than racing to acquire immediately.
	holderRelease, err := f.Lock(ctx)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	const n = 20
	for i := 0; i < n; i++ {
		idx := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := f.Lock(ctx)
			require.NoError(t, err)
			mu.Lock()
			order = append(order, idx)
			mu.Unlock()
			release()
		}()
		// Give goroutine i time to install its ticket before launching i+1,
		// so arrival order at the internal mutex matches launch order.
		time.Sleep(2 * time.Millisecond)
	}

	holderRelease()
	wg.Wait()

	require.Equal(t, n, len(order))
	expected := make([]int, n)
	for i := range expected {
		expected[i] = i
	}
	require.Equal(t, expected, order)
}

func TestWithLockSerializesConcurrentCallers(t *testing.T) {
	f := NewFifoLock()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	const n = 50

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.WithLock(ctx, func() error {
				current := counter
				counter = current + 1
				return nil
			})
		}()
	}
	wg.Wait()

	require.Equal(t, n, counter)
}

func TestLockRespectsContextCancellation(t *testing.T) {
	f := NewFifoLock()

	release, err := f.Lock(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = f.Lock(ctx)
	require.Error(t, err)
}

func TestLockCancelledWaiterDoesNotReleaseSuccessorEarly(t *testing.T) {
	f := NewFifoLock()

	holderRelease, err := f.Lock(context.Background())
	require.NoError(t, err)

	cancelCtx, cancel := context.WithCancel(context.Background())

	cancelledDone := make(chan struct{})
	go func() {
		_, err := f.Lock(cancelCtx)
		require.Error(t, err)
		close(cancelledDone)
	}()
	time.Sleep(5 * time.Millisecond) // let the cancellable waiter queue first

	successorAcquired := make(chan struct{})
	go func() {
		release, err := f.Lock(context.Background())
		require.NoError(t, err)
		close(successorAcquired)
		release()
	}()
	time.Sleep(5 * time.Millisecond) // let the successor queue behind it

	cancel()
	select {
	case <-cancelledDone:
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter never returned")
	}

	// The original holder has not released yet, so the successor must
	// still be blocked even though the waiter ahead of it in the queue was
	// cancelled: mutual exclusion must hold regardless.
	select {
	case <-successorAcquired:
		t.Fatal("successor acquired the lock before the original holder released it")
	case <-time.After(20 * time.Millisecond):
	}

	holderRelease()

	select {
	case <-successorAcquired:
	case <-time.After(time.Second):
		t.Fatal("successor never acquired the lock after the holder released")
	}
}

func TestLockUnblocksNextWaiterAfterCancellation(t *testing.T) {
	f := NewFifoLock()

	release, err := f.Lock(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_, err := f.Lock(ctx)
		require.Error(t, err)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter never returned")
	}

	release()

	nextRelease, err := f.Lock(context.Background())
	require.NoError(t, err)
	nextRelease()
}
