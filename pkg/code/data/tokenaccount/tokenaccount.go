package tokenaccount

import (
	"time"

	"github.com/pkg/errors"
)

var (
	ErrAccountNotFound = errors.New("token account not found")
	ErrAccountExists   = errors.New("token account already exists")
	ErrStaleVersion    = errors.New("token account version is stale")
)

// Record is a token balance held by an owner for a single mint
type Record struct {
	Id uint64

	Address string
	Owner   string
	Mint    string

	Balance uint64

	Version uint64

	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

func (r *Record) Clone() *Record {
	return &Record{
		Id: r.Id,

		Address: r.Address,
		Owner:   r.Owner,
		Mint:    r.Mint,

		Balance: r.Balance,

		Version: r.Version,

		CreatedAt:     r.CreatedAt,
		LastUpdatedAt: r.LastUpdatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.Address = r.Address
	dst.Owner = r.Owner
	dst.Mint = r.Mint

	dst.Balance = r.Balance

	dst.Version = r.Version

	dst.CreatedAt = r.CreatedAt
	dst.LastUpdatedAt = r.LastUpdatedAt
}

func (r *Record) Validate() error {
	if r == nil {
		return errors.New("record is nil")
	}

	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	if len(r.Owner) == 0 {
		return errors.New("owner is required")
	}

	if len(r.Mint) == 0 {
		return errors.New("mint is required")
	}

	return nil
}
