//go:build integration

package etcd

import (
	"context"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	v3 "go.etcd.io/etcd/client/v3"

	"github.com/code-payments/code-vesting/pkg/etcdtest"
	"github.com/code-payments/code-vesting/pkg/lock"
	"github.com/code-payments/code-vesting/pkg/lock/tests"
)

const testLockRoot = "/vesting/locks"

func TestLockManager(t *testing.T) {
	client := startEtcd(t)

	first, err := NewLockManager(client, testLockRoot, 5*time.Second, "first")
	require.NoError(t, err)
	defer first.Close()

	second, err := NewLockManager(client, testLockRoot, 5*time.Second, "second")
	require.NoError(t, err)
	defer second.Close()

	tests.RunTests(t, first, second)
}

func TestLockManager_InvalidTTL(t *testing.T) {
	for _, ttl := range []time.Duration{0, 500 * time.Millisecond, 2 * time.Minute} {
		_, err := NewLockManager(nil, testLockRoot, ttl, "invalid")
		assert.Error(t, err)
	}
}

func TestLockManager_Close(t *testing.T) {
	ctx := context.Background()
	client := startEtcd(t)

	first, err := NewLockManager(client, testLockRoot, 5*time.Second, "first")
	require.NoError(t, err)

	second, err := NewLockManager(client, testLockRoot, 5*time.Second, "second")
	require.NoError(t, err)
	defer second.Close()

	held, err := first.Create(ctx, lock.ContractKey("close"))
	require.NoError(t, err)
	lostCh, err := held.Acquire(ctx)
	require.NoError(t, err)

	first.Close()

	select {
	case <-lostCh:
	case <-time.After(5 * time.Second):
		t.Fatal("lock not lost after close")
	}
	require.Eventually(t, func() bool { return !held.IsLocked() }, 5*time.Second, 10*time.Millisecond)

	_, err = first.Create(ctx, lock.ContractKey("close"))
	assert.ErrorIs(t, err, lock.ErrManagerClosed)

	// Closing the session revokes its lease, so the key is free immediately
	contender, err := second.Create(ctx, lock.ContractKey("close"))
	require.NoError(t, err)

	acquireCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = contender.Acquire(acquireCtx)
	require.NoError(t, err)
	require.NoError(t, contender.Unlock(ctx))
}

func TestLock_KeyRemoved(t *testing.T) {
	ctx := context.Background()
	client := startEtcd(t)

	m, err := NewLockManager(client, testLockRoot, 5*time.Second, "owner")
	require.NoError(t, err)
	defer m.Close()

	l, err := m.Create(ctx, lock.ContractKey("removed"))
	require.NoError(t, err)
	lostCh, err := l.Acquire(ctx)
	require.NoError(t, err)

	_, err = client.Delete(ctx, testLockRoot+"/", v3.WithPrefix())
	require.NoError(t, err)

	select {
	case <-lostCh:
	case <-time.After(5 * time.Second):
		t.Fatal("lock not lost after key removal")
	}

	require.Eventually(t, func() bool { return !l.IsLocked() }, 5*time.Second, 10*time.Millisecond)
}

func startEtcd(t *testing.T) *v3.Client {
	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	client, teardown, err := etcdtest.StartEtcd(pool)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		teardown()
	})

	return client
}
