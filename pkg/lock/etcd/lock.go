package etcd

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.etcd.io/etcd/api/v3/mvccpb"
	v3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/code-payments/code-vesting/pkg/lock"
	"github.com/code-payments/code-vesting/pkg/retry"
	"github.com/code-payments/code-vesting/pkg/retry/backoff"
)

const (
	minLockTTL = time.Second
	maxLockTTL = time.Minute

	sessionRenewalInterval = time.Second
	unlockTimeout          = 5 * time.Second
)

// LockManager is a lock.Manager backed by etcd. All locks share a single
// leased session, so locks are released by etcd once the process stops
// refreshing the lease.
type LockManager struct {
	log      *logrus.Entry
	client   *v3.Client
	rootKey  string
	ttl      int
	ownerTag string

	closeOnce sync.Once
	closeCh   chan struct{}

	sessionMu sync.Mutex
	session   *concurrency.Session
}

// NewLockManager returns a LockManager placing lock keys under rootKey. The
// ttl bounds how long locks survive a crashed process, and must be within
// [1s, 60s].
func NewLockManager(client *v3.Client, rootKey string, ttl time.Duration, ownerTag string) (*LockManager, error) {
	if ttl < minLockTTL || ttl > maxLockTTL {
		return nil, errors.Errorf("invalid lock ttl: %v (must be within [%v, %v])", ttl, minLockTTL, maxLockTTL)
	}

	lm := &LockManager{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type":  "lock/etcd/LockManager",
			"root":  rootKey,
			"owner": ownerTag,
		}),
		client:   client,
		rootKey:  rootKey,
		ttl:      int(ttl.Round(time.Second).Seconds()),
		ownerTag: ownerTag,
		closeCh:  make(chan struct{}),
	}

	session, err := lm.newSession()
	if err != nil {
		return nil, errors.Wrap(err, "error creating etcd session")
	}
	lm.session = session

	go lm.keepSessionAlive()

	return lm, nil
}

// Create implements lock.Manager.Create
func (lm *LockManager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	if lm.currentSession() == nil {
		return nil, lock.ErrManagerClosed
	}

	key := path.Join(lm.rootKey, name)
	return &Lock{
		log: lm.log.WithField("key", key),
		lm:  lm,
		key: key,
	}, nil
}

// Close stops the manager. Every lock it holds is released.
func (lm *LockManager) Close() {
	lm.closeOnce.Do(func() {
		close(lm.closeCh)

		lm.sessionMu.Lock()
		defer lm.sessionMu.Unlock()

		if lm.session == nil {
			return
		}
		if err := lm.session.Close(); err != nil {
			lm.log.WithError(err).Warn("failure closing etcd session")
		}
		lm.session = nil
	})
}

func (lm *LockManager) newSession() (*concurrency.Session, error) {
	return concurrency.NewSession(
		lm.client,
		concurrency.WithTTL(lm.ttl),
		concurrency.WithContext(v3.WithRequireLeader(context.Background())),
	)
}

func (lm *LockManager) currentSession() *concurrency.Session {
	lm.sessionMu.Lock()
	defer lm.sessionMu.Unlock()
	return lm.session
}

// keepSessionAlive replaces the session whenever its lease is lost, which can
// happen when the cluster is leaderless for longer than the ttl. Locks held on
// the expired session are reported as lost to their holders.
func (lm *LockManager) keepSessionAlive() {
	for {
		session := lm.currentSession()
		if session == nil {
			return
		}

		select {
		case <-lm.closeCh:
			return
		case <-session.Done():
		}

		lm.log.Info("etcd session expired, recreating")

		var renewed *concurrency.Session
		_, err := retry.Retry(
			func() error {
				select {
				case <-lm.closeCh:
					return lock.ErrManagerClosed
				default:
				}

				var err error
				renewed, err = lm.newSession()
				if err != nil {
					lm.log.WithError(err).Warn("failure recreating etcd session")
				}
				return err
			},
			retry.NonRetriableErrors(lock.ErrManagerClosed),
			retry.Backoff(backoff.Constant(sessionRenewalInterval), sessionRenewalInterval),
		)
		if err != nil {
			return
		}

		lm.sessionMu.Lock()
		if lm.session == nil {
			lm.sessionMu.Unlock()
			renewed.Close()
			return
		}
		lm.session = renewed
		lm.sessionMu.Unlock()
	}
}

// Lock implements lock.DistributedLock with an etcd mutex
type Lock struct {
	log *logrus.Entry
	lm  *LockManager
	key string

	mu     sync.Mutex
	mutex  *concurrency.Mutex
	cancel context.CancelFunc
}

// Acquire implements lock.DistributedLock.Acquire. The lock is lost when ctx
// is cancelled, its key is removed or the underlying session expires.
func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mutex != nil {
		return nil, lock.ErrAlreadyAcquired
	}

	session := l.lm.currentSession()
	if session == nil {
		return nil, lock.ErrManagerClosed
	}

	mutex := concurrency.NewMutex(session, l.key)
	if err := mutex.Lock(ctx); err != nil {
		return nil, errors.Wrap(err, "error acquiring etcd mutex")
	}

	watchCtx, cancel := context.WithCancel(v3.WithRequireLeader(ctx))
	watchCh := session.Client().Watch(watchCtx, mutex.Key(), v3.WithRev(mutex.Header().Revision))

	l.mutex = mutex
	l.cancel = cancel

	lostCh := make(chan struct{})
	go func() {
		defer l.release(mutex)
		defer close(lostCh)

		for {
			select {
			case <-session.Done():
				l.log.Warn("etcd session ended, lock lost")
				return
			case <-watchCtx.Done():
				return
			case resp, ok := <-watchCh:
				if !ok {
					return
				}
				if err := resp.Err(); err != nil {
					l.log.WithError(err).Warn("failure watching lock key")
					return
				}
				for _, event := range resp.Events {
					if event.Type == mvccpb.DELETE {
						l.log.Debug("lock key removed")
						return
					}
				}
			}
		}
	}()

	l.log.Debug("lock acquired")
	return lostCh, nil
}

// release cleans up after a lock that was lost without an explicit Unlock
func (l *Lock) release(mutex *concurrency.Mutex) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mutex != mutex {
		return
	}

	l.cancel()
	l.mutex = nil
	l.cancel = nil

	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	if err := mutex.Unlock(ctx); err != nil {
		l.log.WithError(err).Warn("failure releasing lost lock")
	}
}

// Unlock implements lock.DistributedLock.Unlock
func (l *Lock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mutex == nil {
		return nil
	}

	mutex := l.mutex
	l.cancel()
	l.mutex = nil
	l.cancel = nil

	return mutex.Unlock(ctx)
}

// IsLocked implements lock.DistributedLock.IsLocked
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.mutex != nil
}
