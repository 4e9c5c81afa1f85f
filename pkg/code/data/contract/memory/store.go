package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/code-payments/code-vesting/pkg/code/data/contract"
	"github.com/code-payments/code-vesting/pkg/database/query"
)

type store struct {
	mu      sync.Mutex
	records []*contract.Record
	last    uint64
}

type ById []*contract.Record

func (a ById) Len() int           { return len(a) }
func (a ById) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ById) Less(i, j int) bool { return a[i].Id < a[j].Id }

// New returns a new in memory contract.Store
func New() contract.Store {
	return &store{}
}

// Put implements contract.Store.Put
func (s *store) Put(_ context.Context, data *contract.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findByAddress(data.Address) != nil || s.findByIdentifier(data.Identifier) != nil {
		return contract.ErrContractExists
	}

	s.last++

	now := time.Now()
	data.Id = s.last
	data.Version = 1
	data.CreatedAt = now
	data.LastUpdatedAt = now

	s.records = append(s.records, data.Clone())

	return nil
}

// Update implements contract.Store.Update
func (s *store) Update(_ context.Context, data *contract.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByAddress(data.Address)
	if item == nil {
		return contract.ErrContractNotFound
	}

	if item.Version != data.Version {
		return contract.ErrStaleVersion
	}

	item.Destination = data.Destination
	item.Cursor = data.Cursor
	item.State = data.State
	item.Version++
	item.LastUpdatedAt = time.Now()

	item.CopyTo(data)

	return nil
}

// GetByAddress implements contract.Store.GetByAddress
func (s *store) GetByAddress(_ context.Context, address string) (*contract.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.findByAddress(address); item != nil {
		return item.Clone(), nil
	}
	return nil, contract.ErrContractNotFound
}

// GetByIdentifier implements contract.Store.GetByIdentifier
func (s *store) GetByIdentifier(_ context.Context, identifier string) (*contract.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.findByIdentifier(identifier); item != nil {
		return item.Clone(), nil
	}
	return nil, contract.ErrContractNotFound
}

// GetAllByInitializer implements contract.Store.GetAllByInitializer
func (s *store) GetAllByInitializer(_ context.Context, initializer string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*contract.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if items := s.findByInitializer(initializer); len(items) > 0 {
		res := s.filter(items, cursor, limit, direction)

		if len(res) == 0 {
			return nil, contract.ErrContractNotFound
		}

		return res, nil
	}

	return nil, contract.ErrContractNotFound
}

// Delete implements contract.Store.Delete
func (s *store) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.records {
		if item.Address == address {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return contract.ErrContractNotFound
}

// Checkpoint snapshots the store's contents. Calling the returned function
// restores the snapshot, discarding every change made since.
func (s *store) Checkpoint() func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]*contract.Record, len(s.records))
	for i, item := range s.records {
		records[i] = item.Clone()
	}
	last := s.last

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.records = records
		s.last = last
	}
}

func (s *store) findByAddress(address string) *contract.Record {
	for _, item := range s.records {
		if address == item.Address {
			return item
		}
	}
	return nil
}

func (s *store) findByIdentifier(identifier string) *contract.Record {
	for _, item := range s.records {
		if identifier == item.Identifier {
			return item
		}
	}
	return nil
}

func (s *store) findByInitializer(initializer string) []*contract.Record {
	res := make([]*contract.Record, 0)
	for _, item := range s.records {
		if item.Initializer == initializer {
			res = append(res, item.Clone())
		}
	}
	return res
}

func (s *store) filter(items []*contract.Record, cursor query.Cursor, limit uint64, direction query.Ordering) []*contract.Record {
	var start uint64

	start = 0
	if direction == query.Descending {
		start = s.last + 1
	}
	if len(cursor) > 0 {
		start = cursor.ToUint64()
	}

	var res []*contract.Record
	for _, item := range items {
		if item.Id > start && direction == query.Ascending {
			res = append(res, item)
		}
		if item.Id < start && direction == query.Descending {
			res = append(res, item)
		}
	}

	if direction == query.Descending {
		sort.Sort(sort.Reverse(ById(res)))
	}

	if limit > 0 && len(res) >= int(limit) {
		return res[:limit]
	}

	return res
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.last = 0
}
