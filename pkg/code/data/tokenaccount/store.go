package tokenaccount

import (
	"context"
)

type Store interface {
	// Put creates a new token account. ErrAccountExists is returned when an
	// account already exists at the address.
	Put(ctx context.Context, record *Record) error

	// Update saves the balance of a token account. The record's version must
	// match the stored version, otherwise ErrStaleVersion is returned. On
	// success, the version is incremented.
	Update(ctx context.Context, record *Record) error

	// GetByAddress gets a token account by its address
	GetByAddress(ctx context.Context, address string) (*Record, error)

	// Delete removes a token account. ErrAccountNotFound is returned when it
	// doesn't exist.
	Delete(ctx context.Context, address string) error
}
