package vesting

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-vesting/pkg/cache"
	"github.com/code-payments/code-vesting/pkg/solana"
	vesting_program "github.com/code-payments/code-vesting/pkg/solana/vesting"
)

// addressDeriver derives vesting contract and escrow addresses. Bump searches
// for contract addresses are memoized, but every cached result is re-checked
// against its seeds before it's handed out.
type addressDeriver struct {
	program ed25519.PublicKey
	cache   *cache.Cache[*solana.ProgramAddress]
}

func newAddressDeriver(program ed25519.PublicKey, cacheSize int) *addressDeriver {
	return &addressDeriver{
		program: program,
		cache:   cache.New[*solana.ProgramAddress](cacheSize),
	}
}

func (d *addressDeriver) contractAddress(identifier string) (*solana.ProgramAddress, error) {
	if err := validateIdentifier(identifier); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("contract:%s", identifier)
	if address, ok := d.cache.Get(key); ok {
		err := solana.VerifyProgramAddress(d.program, address.Address, address.Bump, []byte(identifier))
		if err == nil {
			return copyProgramAddress(address), nil
		}
		d.cache.Remove(key)
	}

	address, bump, err := vesting_program.GetVestingContractAddress(d.program, &vesting_program.GetVestingContractAddressArgs{
		Identifier: identifier,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error deriving vesting contract address")
	}

	derived := &solana.ProgramAddress{
		Address: address,
		Bump:    bump,
	}
	d.cache.Put(key, derived, 1)

	return copyProgramAddress(derived), nil
}

// copyProgramAddress keeps cached addresses from being modified by callers
func copyProgramAddress(address *solana.ProgramAddress) *solana.ProgramAddress {
	return &solana.ProgramAddress{
		Address: append(ed25519.PublicKey(nil), address.Address...),
		Bump:    address.Bump,
	}
}

func (d *addressDeriver) escrowAddress(mint, contract ed25519.PublicKey) (*solana.ProgramAddress, error) {
	address, bump, err := vesting_program.GetEscrowAddress(d.program, &vesting_program.GetEscrowAddressArgs{
		Mint:            mint,
		VestingContract: contract,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error deriving escrow address")
	}

	return &solana.ProgramAddress{
		Address: address,
		Bump:    bump,
	}, nil
}

// verifyContractAddress recomputes the contract address for the identifier and
// bump, and checks it against the caller supplied address
func (d *addressDeriver) verifyContractAddress(identifier string, bump uint8, supplied ed25519.PublicKey) error {
	return solana.VerifyProgramAddress(d.program, supplied, bump, []byte(identifier))
}

// verifyEscrowAddress recomputes the escrow address for the mint, contract and
// bump, and checks it against the caller supplied address
func (d *addressDeriver) verifyEscrowAddress(mint, contract ed25519.PublicKey, bump uint8, supplied ed25519.PublicKey) error {
	return solana.VerifyProgramAddress(d.program, supplied, bump, mint, contract)
}

func validateIdentifier(identifier string) error {
	if len(identifier) == 0 {
		return errors.Wrap(ErrInvalidIdentifier, "identifier is empty")
	}
	if len(identifier) > solana.MaxSeedLength {
		return errors.Wrapf(ErrInvalidIdentifier, "identifier exceeds %d bytes", solana.MaxSeedLength)
	}
	return nil
}

func checkAddress(expected, supplied ed25519.PublicKey, name string) error {
	if !bytes.Equal(expected, supplied) {
		return errors.Wrapf(ErrAddressMismatch, "%s: expected %s, got %s", name, base58.Encode(expected), base58.Encode(supplied))
	}
	return nil
}
