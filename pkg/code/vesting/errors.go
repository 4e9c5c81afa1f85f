package vesting

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-vesting/pkg/code/ledger"
	"github.com/code-payments/code-vesting/pkg/code/schedule"
	"github.com/code-payments/code-vesting/pkg/solana"
)

var (
	// Validation
	ErrMalformedSchedule = schedule.ErrMalformedSchedule
	ErrInvalidIdentifier = errors.New("invalid vesting contract identifier")

	// Authorization
	ErrUnauthorized            = errors.New("unauthorized")
	ErrWrongDestinationAccount = errors.New("wrong destination account")
	ErrAddressMismatch         = solana.ErrAddressMismatch
	ErrInvalidTokenAccount     = errors.New("invalid token account")

	// Temporal and state
	ErrNothingToRelease = errors.New("nothing to release")
	ErrNotFullyVested   = errors.New("vesting contract is not fully vested")

	// Resource
	ErrInsufficientFunds    = ledger.ErrInsufficientFunds
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrContractNotFound     = errors.New("vesting contract not found")

	ErrUnsupportedInstruction = errors.New("unsupported instruction")
)

// IsValidationError returns whether err is caused by malformed caller input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMalformedSchedule) ||
		errors.Is(err, ErrInvalidIdentifier) ||
		errors.Is(err, ErrUnsupportedInstruction) ||
		errors.Is(err, ledger.ErrInvalidAmount)
}

// IsAuthorizationError returns whether err rejects the caller's authority or
// the accounts they supplied
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrWrongDestinationAccount) ||
		errors.Is(err, ErrAddressMismatch) ||
		errors.Is(err, ErrInvalidTokenAccount) ||
		errors.Is(err, solana.ErrSignatureFailure) ||
		errors.Is(err, ledger.ErrInvalidAuthority)
}

// IsStateError returns whether err is an expected condition the caller can
// retry once the contract's state or time has advanced
func IsStateError(err error) bool {
	return errors.Is(err, ErrNothingToRelease) ||
		errors.Is(err, ErrNotFullyVested)
}

// IsResourceError returns whether err is caused by the state of the accounts
// the operation touches
func IsResourceError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAccountAlreadyExists) ||
		errors.Is(err, ledger.ErrMintMismatch) ||
		errors.Is(err, ledger.ErrBalanceOverflow)
}

// IsNotFoundError returns whether err is caused by a missing contract or
// token account
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrContractNotFound) ||
		errors.Is(err, ledger.ErrAccountNotFound)
}
