package memory

import (
	"context"
	"sync"
	"time"

	"github.com/code-payments/code-vesting/pkg/code/data/tokenaccount"
)

type store struct {
	mu      sync.Mutex
	records map[string]*tokenaccount.Record
	last    uint64
}

// New returns a new in memory tokenaccount.Store
func New() tokenaccount.Store {
	return &store{
		records: make(map[string]*tokenaccount.Record),
	}
}

// Put implements tokenaccount.Store.Put
func (s *store) Put(_ context.Context, data *tokenaccount.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[data.Address]; ok {
		return tokenaccount.ErrAccountExists
	}

	s.last++

	now := time.Now()
	data.Id = s.last
	data.Version = 1
	data.CreatedAt = now
	data.LastUpdatedAt = now

	s.records[data.Address] = data.Clone()

	return nil
}

// Update implements tokenaccount.Store.Update
func (s *store) Update(_ context.Context, data *tokenaccount.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.records[data.Address]
	if !ok {
		return tokenaccount.ErrAccountNotFound
	}

	if item.Version != data.Version {
		return tokenaccount.ErrStaleVersion
	}

	item.Balance = data.Balance
	item.Version++
	item.LastUpdatedAt = time.Now()

	item.CopyTo(data)

	return nil
}

// GetByAddress implements tokenaccount.Store.GetByAddress
func (s *store) GetByAddress(_ context.Context, address string) (*tokenaccount.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.records[address]; ok {
		return item.Clone(), nil
	}
	return nil, tokenaccount.ErrAccountNotFound
}

// Delete implements tokenaccount.Store.Delete
func (s *store) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[address]; !ok {
		return tokenaccount.ErrAccountNotFound
	}

	delete(s.records, address)
	return nil
}

// Checkpoint snapshots the store's contents. Calling the returned function
// restores the snapshot, discarding every change made since.
func (s *store) Checkpoint() func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make(map[string]*tokenaccount.Record, len(s.records))
	for address, item := range s.records {
		records[address] = item.Clone()
	}
	last := s.last

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.records = records
		s.last = last
	}
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*tokenaccount.Record)
	s.last = 0
}
