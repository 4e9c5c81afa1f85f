package lock

import (
	"context"
	"path"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrManagerClosed   = errors.New("lock manager is closed")
	ErrAlreadyAcquired = errors.New("lock is already acquired")
)

// Manager creates locks that exclude each other across processes.
//
// Whether two locks for the same name created by the same Manager exclude
// each other is implementation defined. Callers are expected to coordinate
// local concurrency separately.
type Manager interface {
	// Create creates an unlocked DistributedLock for a specific name.
	Create(ctx context.Context, name string) (DistributedLock, error)
}

// DistributedLock is a handle to a lock shared by multiple processes.
type DistributedLock interface {
	// Acquire blocks until the lock is held or ctx is done.
	//
	// The returned channel is closed when the lock is lost, which happens
	// after Unlock or when the implementation detects the lock might no
	// longer be held.
	Acquire(ctx context.Context) (<-chan struct{}, error)

	// Unlock releases the lock, if it is held. Unlock is idempotent.
	Unlock(ctx context.Context) error

	// IsLocked returns whether the lock is held.
	IsLocked() bool
}

// ContractKey returns the lock name guarding the vesting contract with the
// provided identifier
func ContractKey(identifier string) string {
	return path.Join("vesting", "contract", identifier)
}

// Set is a group of held locks that are released together
type Set struct {
	log   *logrus.Entry
	locks []DistributedLock

	lostOnce sync.Once
	lostCh   chan struct{}
}

// AcquireAll acquires a lock for every distinct name. Names are acquired in
// sorted order so concurrent callers with overlapping names cannot deadlock.
// On failure, every lock acquired so far is released.
func AcquireAll(ctx context.Context, manager Manager, names []string) (*Set, error) {
	unique := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		unique = append(unique, name)
	}
	sort.Strings(unique)

	set := &Set{
		log:    logrus.StandardLogger().WithField("type", "lock/Set"),
		lostCh: make(chan struct{}),
	}
	for _, name := range unique {
		l, err := manager.Create(ctx, name)
		if err != nil {
			set.Release(context.Background())
			return nil, errors.Wrapf(err, "error creating lock %s", name)
		}

		lockLostCh, err := l.Acquire(ctx)
		if err != nil {
			set.Release(context.Background())
			return nil, errors.Wrapf(err, "error acquiring lock %s", name)
		}
		set.locks = append(set.locks, l)

		go func() {
			<-lockLostCh
			set.lostOnce.Do(func() {
				close(set.lostCh)
			})
		}()
	}
	return set, nil
}

// Lost returns a channel that's closed once any lock in the set is lost,
// including through Release
func (s *Set) Lost() <-chan struct{} {
	return s.lostCh
}

// Size returns the number of held locks
func (s *Set) Size() int {
	return len(s.locks)
}

// Release unlocks every lock in the set in reverse acquisition order. Failures
// are logged, since an unreleased lock is eventually reclaimed by its owner.
func (s *Set) Release(ctx context.Context) {
	for i := len(s.locks) - 1; i >= 0; i-- {
		if err := s.locks[i].Unlock(ctx); err != nil {
			s.log.WithError(err).Warn("failure releasing lock")
		}
	}
	s.locks = nil
}
