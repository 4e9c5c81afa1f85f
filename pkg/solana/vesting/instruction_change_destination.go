package vesting_program

import (
	"crypto/ed25519"

	"github.com/code-payments/code-vesting/pkg/solana"
)

var changeDestinationInstructionDiscriminator = []byte{
	21, 129, 150, 185, 138, 179, 204, 142,
}

const (
	ChangeDestinationInstructionNumAccounts = 4
)

type ChangeDestinationInstructionArgs struct {
	Identifier string
}

type ChangeDestinationInstructionAccounts struct {
	VestingContract                ed25519.PublicKey
	CurrentDestinationOwner        ed25519.PublicKey
	CurrentDestinationTokenAccount ed25519.PublicKey
	NewDestinationTokenAccount     ed25519.PublicKey
}

func NewChangeDestinationInstruction(
	program ed25519.PublicKey,
	accounts *ChangeDestinationInstructionAccounts,
	args *ChangeDestinationInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(changeDestinationInstructionDiscriminator)+
			stringSize(args.Identifier))

	putDiscriminator(data, changeDestinationInstructionDiscriminator, &offset)
	putString(data, args.Identifier, &offset)

	return solana.NewInstruction(
		program,
		data,
		solana.NewAccountMeta(accounts.VestingContract, false),
		solana.NewReadonlyAccountMeta(accounts.CurrentDestinationOwner, true),
		solana.NewReadonlyAccountMeta(accounts.CurrentDestinationTokenAccount, false),
		solana.NewReadonlyAccountMeta(accounts.NewDestinationTokenAccount, false),
	)
}

func ChangeDestinationInstructionFromLegacyInstruction(program ed25519.PublicKey, txn solana.Transaction, idx int) (*ChangeDestinationInstructionArgs, *ChangeDestinationInstructionAccounts, error) {
	instruction, err := decompile(program, txn, idx, changeDestinationInstructionDiscriminator, ChangeDestinationInstructionNumAccounts)
	if err != nil {
		return nil, nil, err
	}

	offset := len(changeDestinationInstructionDiscriminator)

	var args ChangeDestinationInstructionArgs
	var accounts ChangeDestinationInstructionAccounts

	// Instruction Args
	if !getString(instruction.Data, &args.Identifier, &offset) {
		return nil, nil, ErrInvalidInstructionData
	}

	// Instruction Accounts
	accounts.VestingContract = instruction.Accounts[0].PublicKey
	accounts.CurrentDestinationOwner = instruction.Accounts[1].PublicKey
	accounts.CurrentDestinationTokenAccount = instruction.Accounts[2].PublicKey
	accounts.NewDestinationTokenAccount = instruction.Accounts[3].PublicKey

	return &args, &accounts, nil
}

func IsChangeDestinationInstruction(data []byte) bool {
	return hasDiscriminator(data, changeDestinationInstructionDiscriminator)
}
