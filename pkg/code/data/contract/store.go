package contract

import (
	"context"

	"github.com/code-payments/code-vesting/pkg/database/query"
)

type Store interface {
	// Put creates a new vesting contract record. ErrContractExists is returned
	// when a record already exists at the address or identifier.
	Put(ctx context.Context, record *Record) error

	// Update saves the mutable fields of a vesting contract record (destination,
	// cursor and state). The record's version must match the stored version,
	// otherwise ErrStaleVersion is returned. On success, the version is
	// incremented.
	Update(ctx context.Context, record *Record) error

	// GetByAddress gets a vesting contract by its account address
	GetByAddress(ctx context.Context, address string) (*Record, error)

	// GetByIdentifier gets a vesting contract by the identifier that derived its address
	GetByIdentifier(ctx context.Context, identifier string) (*Record, error)

	// GetAllByInitializer gets a page of vesting contracts created by an initializer
	GetAllByInitializer(ctx context.Context, initializer string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)

	// Delete removes a vesting contract record. ErrContractNotFound is returned
	// when it doesn't exist.
	Delete(ctx context.Context, address string) error
}
