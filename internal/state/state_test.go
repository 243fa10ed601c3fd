/*
Copyright (c) 2025 Diagrid Inc.
Licensed under the MIT License.
*/

package state

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/diagridio/go-async-scheduler/api/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSub struct {
	closed atomic.Int32
}

func (f *fakeSub) Close() {
	f.closed.Add(1)
}

// blockingOp returns an operation which signals startedCh with its unit, and
// blocks until cancelled.
func blockingOp(startedCh chan<- uint64) Operation {
	return func(ctx context.Context, unit uint64) {
		startedCh <- unit
		<-ctx.Done()
	}
}

func newStore() *Store {
	return New(Options{Log: logr.Discard()})
}

func waitStarted(t *testing.T, ch <-chan uint64) uint64 {
	t.Helper()
	select {
	case unit := <-ch:
		return unit
	case <-time.After(time.Second * 5):
		t.Fatal("timed out waiting for operation to start")
	}
	return 0
}

func Test_Install(t *testing.T) {
	t.Parallel()

	t.Run("install runs the operation", func(t *testing.T) {
		t.Parallel()

		s := newStore()
		id := uuid.New()
		startedCh := make(chan uint64, 1)

		lease, err := s.Install(id, nil, blockingOp(startedCh))
		require.NoError(t, err)
		assert.NotZero(t, lease)
		waitStarted(t, startedCh)

		assert.True(t, s.Has(id))
		assert.Equal(t, 1, s.Len())
		assert.True(t, s.IDs().Has(id))

		s.Cancel(id)
		require.NoError(t, s.Wait(context.Background()))
	})

	t.Run("installing twice supersedes the first run", func(t *testing.T) {
		t.Parallel()

		s := newStore()
		id := uuid.New()
		sub1, sub2 := new(fakeSub), new(fakeSub)

		var lock sync.Mutex
		var events []string
		record := func(e string) {
			lock.Lock()
			defer lock.Unlock()
			events = append(events, e)
		}

		firstStartedCh := make(chan struct{})
		secondStartedCh := make(chan struct{})

		_, err := s.Install(id, []Subscription{sub1}, func(ctx context.Context, _ uint64) {
			close(firstStartedCh)
			<-ctx.Done()
			// Still unwinding after cancellation.
			time.Sleep(time.Millisecond * 50)
			record("first-done")
		})
		require.NoError(t, err)
		<-firstStartedCh

		_, err = s.Install(id, []Subscription{sub2}, func(ctx context.Context, _ uint64) {
			record("second-start")
			close(secondStartedCh)
			<-ctx.Done()
		})
		require.NoError(t, err)

		select {
		case <-secondStartedCh:
		case <-time.After(time.Second * 5):
			t.Fatal("second run never started")
		}

		assert.Equal(t, int32(1), sub1.closed.Load())
		assert.Equal(t, int32(0), sub2.closed.Load())
		assert.Equal(t, 1, s.Len())

		lock.Lock()
		assert.Equal(t, []string{"first-done", "second-start"}, events)
		lock.Unlock()

		s.CancelAll()
		require.NoError(t, s.Wait(context.Background()))
		assert.Equal(t, int32(1), sub2.closed.Load())
	})

	t.Run("install after close returns error", func(t *testing.T) {
		t.Parallel()

		s := newStore()
		s.Close()

		_, err := s.Install(uuid.New(), nil, func(context.Context, uint64) {})
		require.ErrorIs(t, err, errors.ErrClosed)
		assert.Equal(t, 0, s.Len())
	})
}

func Test_Restart(t *testing.T) {
	t.Parallel()

	t.Run("restart keeps subscriptions and replaces the unit", func(t *testing.T) {
		t.Parallel()

		s := newStore()
		id := uuid.New()
		sub := new(fakeSub)
		startedCh := make(chan uint64, 2)

		lease, err := s.Install(id, []Subscription{sub}, blockingOp(startedCh))
		require.NoError(t, err)
		unit1 := waitStarted(t, startedCh)

		require.True(t, s.Restart(id, lease, blockingOp(startedCh)))
		unit2 := waitStarted(t, startedCh)

		assert.NotEqual(t, unit1, unit2)
		assert.Equal(t, int32(0), sub.closed.Load())
		assert.False(t, s.Reenter(id, unit1))
		assert.True(t, s.Reenter(id, unit2))

		s.Cancel(id)
		assert.Equal(t, int32(1), sub.closed.Load())
		require.NoError(t, s.Wait(context.Background()))
	})

	t.Run("restart with a stale lease does nothing", func(t *testing.T) {
		t.Parallel()

		s := newStore()
		id := uuid.New()
		startedCh := make(chan uint64, 2)

		lease1, err := s.Install(id, nil, blockingOp(startedCh))
		require.NoError(t, err)
		waitStarted(t, startedCh)

		lease2, err := s.Install(id, nil, blockingOp(startedCh))
		require.NoError(t, err)
		unit2 := waitStarted(t, startedCh)
		assert.NotEqual(t, lease1, lease2)

		assert.False(t, s.Restart(id, lease1, blockingOp(startedCh)))
		assert.True(t, s.Reenter(id, unit2))

		s.Cancel(id)
		assert.False(t, s.Restart(id, lease2, blockingOp(startedCh)))
		require.NoError(t, s.Wait(context.Background()))
	})
}

func Test_Reenter(t *testing.T) {
	t.Parallel()

	s := newStore()
	id := uuid.New()
	startedCh := make(chan uint64, 1)

	_, err := s.Install(id, nil, blockingOp(startedCh))
	require.NoError(t, err)
	unit := waitStarted(t, startedCh)

	for i := 0; i < 3; i++ {
		require.True(t, s.Reenter(id, unit))
	}
	iterations, ok := s.Iterations(id)
	require.True(t, ok)
	assert.Equal(t, uint64(3), iterations)

	s.Cancel(id)
	assert.False(t, s.Reenter(id, unit))
	_, ok = s.Iterations(id)
	assert.False(t, ok)
	require.NoError(t, s.Wait(context.Background()))
}

func Test_Fault(t *testing.T) {
	t.Parallel()

	s := newStore()
	id := uuid.New()
	sub := new(fakeSub)
	startedCh := make(chan uint64, 2)

	lease, err := s.Install(id, []Subscription{sub}, blockingOp(startedCh))
	require.NoError(t, err)
	unit1 := waitStarted(t, startedCh)

	require.True(t, s.Restart(id, lease, blockingOp(startedCh)))
	unit2 := waitStarted(t, startedCh)

	assert.False(t, s.Fault(id, unit1))
	assert.True(t, s.Has(id))

	assert.True(t, s.Fault(id, unit2))
	assert.False(t, s.Has(id))
	assert.Equal(t, int32(1), sub.closed.Load())
	assert.False(t, s.Fault(id, unit2))

	require.NoError(t, s.Wait(context.Background()))
}

func Test_CancelAll(t *testing.T) {
	t.Parallel()

	s := newStore()
	startedCh := make(chan uint64, 10)
	subs := make([]*fakeSub, 10)

	for i := range subs {
		subs[i] = new(fakeSub)
		_, err := s.Install(uuid.New(), []Subscription{subs[i]}, blockingOp(startedCh))
		require.NoError(t, err)
	}
	for range subs {
		waitStarted(t, startedCh)
	}
	assert.Equal(t, 10, s.Len())

	s.CancelAll()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.IDs())
	for _, sub := range subs {
		assert.Equal(t, int32(1), sub.closed.Load())
	}

	s.Cancel(uuid.New())
	require.NoError(t, s.Wait(context.Background()))
}

func Test_Wait(t *testing.T) {
	t.Parallel()

	s := newStore()
	releaseCh := make(chan struct{})
	t.Cleanup(func() { close(releaseCh) })

	startedCh := make(chan uint64, 1)
	_, err := s.Install(uuid.New(), nil, func(_ context.Context, unit uint64) {
		startedCh <- unit
		// Ignores cancellation.
		<-releaseCh
	})
	require.NoError(t, err)
	waitStarted(t, startedCh)

	s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()
	require.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}
