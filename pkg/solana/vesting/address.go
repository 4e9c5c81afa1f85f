package vesting_program

import (
	"crypto/ed25519"

	"github.com/code-payments/code-vesting/pkg/solana"
)

type GetVestingContractAddressArgs struct {
	Identifier string
}

// GetVestingContractAddress derives the vesting contract record address from
// the caller chosen identifier.
func GetVestingContractAddress(program ed25519.PublicKey, args *GetVestingContractAddressArgs) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		program,
		[]byte(args.Identifier),
	)
}

type GetEscrowAddressArgs struct {
	Mint            ed25519.PublicKey
	VestingContract ed25519.PublicKey
}

// GetEscrowAddress derives the token account that holds the escrowed balance
// of a vesting contract.
func GetEscrowAddress(program ed25519.PublicKey, args *GetEscrowAddressArgs) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		program,
		args.Mint,
		args.VestingContract,
	)
}

// VestingContractSeeds returns the signer seeds the program uses to prove
// authority over the vesting contract address.
func VestingContractSeeds(identifier string, bump uint8) [][]byte {
	return [][]byte{
		[]byte(identifier),
		{bump},
	}
}
