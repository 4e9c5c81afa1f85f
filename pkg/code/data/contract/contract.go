package contract

import (
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/code-vesting/pkg/code/schedule"
	"github.com/code-payments/code-vesting/pkg/solana"
)

var (
	ErrContractNotFound = errors.New("vesting contract not found")
	ErrContractExists   = errors.New("vesting contract already exists")
	ErrStaleVersion     = errors.New("vesting contract version is stale")
)

type State uint8

const (
	StateUnknown State = iota
	StateActive
	StateFullyVested
)

// Closed contracts are deleted, so there is no state for them.

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateFullyVested:
		return "fully_vested"
	}
	return "unknown"
}

// Record is the server-side view of a vesting contract account and the
// escrow token account it controls.
type Record struct {
	Id uint64

	Identifier string

	Address string
	Bump    uint8

	EscrowAddress string
	EscrowBump    uint8

	Initializer string
	Source      string
	Destination string
	Mint        string

	Schedule schedule.Schedule
	Cursor   uint32
	State    State

	// Incremented on every update, and used to reject writes against a
	// record that changed since it was read.
	Version uint64

	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

// StateForCursor returns the state a contract is in for a release cursor
func StateForCursor(s schedule.Schedule, cursor uint32) State {
	if s.IsFullyVested(int(cursor)) {
		return StateFullyVested
	}
	return StateActive
}

func (r *Record) IsFullyVested() bool {
	return r.State == StateFullyVested
}

func (r *Record) Clone() *Record {
	return &Record{
		Id: r.Id,

		Identifier: r.Identifier,

		Address: r.Address,
		Bump:    r.Bump,

		EscrowAddress: r.EscrowAddress,
		EscrowBump:    r.EscrowBump,

		Initializer: r.Initializer,
		Source:      r.Source,
		Destination: r.Destination,
		Mint:        r.Mint,

		Schedule: r.Schedule,
		Cursor:   r.Cursor,
		State:    r.State,

		Version: r.Version,

		CreatedAt:     r.CreatedAt,
		LastUpdatedAt: r.LastUpdatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.Identifier = r.Identifier

	dst.Address = r.Address
	dst.Bump = r.Bump

	dst.EscrowAddress = r.EscrowAddress
	dst.EscrowBump = r.EscrowBump

	dst.Initializer = r.Initializer
	dst.Source = r.Source
	dst.Destination = r.Destination
	dst.Mint = r.Mint

	dst.Schedule = r.Schedule
	dst.Cursor = r.Cursor
	dst.State = r.State

	dst.Version = r.Version

	dst.CreatedAt = r.CreatedAt
	dst.LastUpdatedAt = r.LastUpdatedAt
}

func (r *Record) Validate() error {
	if r == nil {
		return errors.New("record is nil")
	}

	if len(r.Identifier) == 0 {
		return errors.New("identifier is required")
	}

	if len(r.Identifier) > solana.MaxSeedLength {
		return errors.Errorf("identifier exceeds %d bytes", solana.MaxSeedLength)
	}

	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	if len(r.EscrowAddress) == 0 {
		return errors.New("escrow address is required")
	}

	if len(r.Initializer) == 0 {
		return errors.New("initializer is required")
	}

	if len(r.Source) == 0 {
		return errors.New("source is required")
	}

	if len(r.Destination) == 0 {
		return errors.New("destination is required")
	}

	if len(r.Mint) == 0 {
		return errors.New("mint is required")
	}

	if r.Schedule.Len() == 0 {
		return errors.New("schedule is required")
	}

	if int(r.Cursor) > r.Schedule.Len() {
		return errors.New("cursor exceeds schedule length")
	}

	if r.State != StateForCursor(r.Schedule, r.Cursor) {
		return errors.Errorf("state %s is inconsistent with cursor %d", r.State, r.Cursor)
	}

	return nil
}
