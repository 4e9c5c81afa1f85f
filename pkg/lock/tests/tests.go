package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-vesting/pkg/lock"
)

// RunTests runs the lock.Manager test suite. Locks created by first and second
// must exclude each other.
func RunTests(t *testing.T, first, second lock.Manager) {
	for _, tf := range []func(t *testing.T, first, second lock.Manager){
		testAcquireAndUnlock,
		testDoubleAcquire,
		testMutualExclusion,
		testAcquireAll,
	} {
		tf(t, first, second)
	}
}

func testAcquireAndUnlock(t *testing.T, first, _ lock.Manager) {
	t.Run("testAcquireAndUnlock", func(t *testing.T) {
		ctx := context.Background()

		l, err := first.Create(ctx, lock.ContractKey("acquire-and-unlock"))
		require.NoError(t, err)
		assert.False(t, l.IsLocked())

		// Unlocking a lock that isn't held is a no-op
		require.NoError(t, l.Unlock(ctx))

		lostCh, err := l.Acquire(ctx)
		require.NoError(t, err)
		assert.True(t, l.IsLocked())

		select {
		case <-lostCh:
			t.Fatal("lock unexpectedly lost")
		default:
		}

		require.NoError(t, l.Unlock(ctx))
		require.NoError(t, l.Unlock(ctx))
		assert.False(t, l.IsLocked())

		select {
		case <-lostCh:
		case <-time.After(5 * time.Second):
			t.Fatal("lost channel not closed after unlock")
		}

		// Handles are reusable after unlocking
		_, err = l.Acquire(ctx)
		require.NoError(t, err)
		require.NoError(t, l.Unlock(ctx))
	})
}

func testDoubleAcquire(t *testing.T, first, _ lock.Manager) {
	t.Run("testDoubleAcquire", func(t *testing.T) {
		ctx := context.Background()

		l, err := first.Create(ctx, lock.ContractKey("double-acquire"))
		require.NoError(t, err)

		_, err = l.Acquire(ctx)
		require.NoError(t, err)

		_, err = l.Acquire(ctx)
		assert.ErrorIs(t, err, lock.ErrAlreadyAcquired)

		require.NoError(t, l.Unlock(ctx))
	})
}

func testMutualExclusion(t *testing.T, first, second lock.Manager) {
	t.Run("testMutualExclusion", func(t *testing.T) {
		ctx := context.Background()
		name := lock.ContractKey("mutual-exclusion")

		held, err := first.Create(ctx, name)
		require.NoError(t, err)
		lostCh, err := held.Acquire(ctx)
		require.NoError(t, err)

		contender, err := second.Create(ctx, name)
		require.NoError(t, err)

		timeoutCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		_, err = contender.Acquire(timeoutCtx)
		cancel()
		assert.Error(t, err)
		assert.False(t, contender.IsLocked())

		// Locks are lost once the acquiring context is done
		acquireCtx, cancelAcquire := context.WithTimeout(ctx, 10*time.Second)
		defer cancelAcquire()

		acquired := make(chan error, 1)
		go func() {
			_, err := contender.Acquire(acquireCtx)
			acquired <- err
		}()

		select {
		case err := <-acquired:
			t.Fatalf("contender acquired a held lock: %v", err)
		case <-time.After(100 * time.Millisecond):
		}

		require.NoError(t, held.Unlock(ctx))
		<-lostCh

		select {
		case err := <-acquired:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("contender never acquired the released lock")
		}
		assert.True(t, contender.IsLocked())
		require.NoError(t, contender.Unlock(ctx))
	})
}

func testAcquireAll(t *testing.T, first, second lock.Manager) {
	t.Run("testAcquireAll", func(t *testing.T) {
		ctx := context.Background()

		names := []string{
			lock.ContractKey("acquire-all-b"),
			lock.ContractKey("acquire-all-a"),
			lock.ContractKey("acquire-all-b"),
		}

		set, err := lock.AcquireAll(ctx, first, names)
		require.NoError(t, err)
		assert.Equal(t, 2, set.Size())

		timeoutCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		_, err = lock.AcquireAll(timeoutCtx, second, []string{lock.ContractKey("acquire-all-a")})
		cancel()
		assert.Error(t, err)

		select {
		case <-set.Lost():
			t.Fatal("held locks reported as lost")
		default:
		}

		set.Release(ctx)
		assert.Equal(t, 0, set.Size())

		select {
		case <-set.Lost():
		case <-time.After(5 * time.Second):
			t.Fatal("released locks not reported as lost")
		}

		other, err := lock.AcquireAll(ctx, second, []string{lock.ContractKey("acquire-all-a")})
		require.NoError(t, err)
		assert.Equal(t, 1, other.Size())
		other.Release(ctx)
	})
}
