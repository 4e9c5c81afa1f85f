package memory

import (
	"context"
	"sync"

	"github.com/code-payments/code-vesting/pkg/lock"
)

// Manager is an in-process lock.Manager. Locks for the same name exclude each
// other regardless of which handle created them.
type Manager struct {
	mu     sync.Mutex
	closed bool
	held   map[string]chan struct{}
}

func NewManager() *Manager {
	return &Manager{
		held: make(map[string]chan struct{}),
	}
}

// Create implements lock.Manager.Create
func (m *Manager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, lock.ErrManagerClosed
	}
	return &Lock{m: m, name: name}, nil
}

// Close releases every held lock
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.closed = true
	for name, ch := range m.held {
		close(ch)
		delete(m.held, name)
	}
}

// Lock implements lock.DistributedLock
type Lock struct {
	m    *Manager
	name string

	mu     sync.Mutex
	lostCh chan struct{}
}

// Acquire implements lock.DistributedLock.Acquire
func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lostCh != nil {
		return nil, lock.ErrAlreadyAcquired
	}

	for {
		l.m.mu.Lock()
		if l.m.closed {
			l.m.mu.Unlock()
			return nil, lock.ErrManagerClosed
		}

		released, ok := l.m.held[l.name]
		if !ok {
			lostCh := make(chan struct{})
			l.m.held[l.name] = lostCh
			l.m.mu.Unlock()

			l.lostCh = lostCh
			return lostCh, nil
		}
		l.m.mu.Unlock()

		select {
		case <-released:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Unlock implements lock.DistributedLock.Unlock
func (l *Lock) Unlock(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lostCh == nil {
		return nil
	}

	l.m.mu.Lock()
	if l.m.held[l.name] == l.lostCh {
		delete(l.m.held, l.name)
		close(l.lostCh)
	}
	l.m.mu.Unlock()

	l.lostCh = nil
	return nil
}

// IsLocked implements lock.DistributedLock.IsLocked
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lostCh == nil {
		return false
	}

	select {
	case <-l.lostCh:
		return false
	default:
		return true
	}
}
