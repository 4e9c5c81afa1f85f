package vesting_program

import (
	"crypto/ed25519"

	"github.com/code-payments/code-vesting/pkg/solana"
)

var unlockInstructionDiscriminator = []byte{
	101, 155, 40, 21, 158, 189, 56, 203,
}

const (
	UnlockInstructionNumAccounts = 5
)

type UnlockInstructionArgs struct {
	Identifier string
}

type UnlockInstructionAccounts struct {
	VestingContract         ed25519.PublicKey
	EscrowAccount           ed25519.PublicKey
	DestinationTokenAccount ed25519.PublicKey
}

func NewUnlockInstruction(
	program ed25519.PublicKey,
	accounts *UnlockInstructionAccounts,
	args *UnlockInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(unlockInstructionDiscriminator)+
			stringSize(args.Identifier))

	putDiscriminator(data, unlockInstructionDiscriminator, &offset)
	putString(data, args.Identifier, &offset)

	return solana.NewInstruction(
		program,
		data,
		solana.NewAccountMeta(accounts.VestingContract, false),
		solana.NewAccountMeta(accounts.EscrowAccount, false),
		solana.NewAccountMeta(accounts.DestinationTokenAccount, false),
		solana.NewReadonlyAccountMeta(SYSVAR_CLOCK_PUBKEY, false),
		solana.NewReadonlyAccountMeta(SPL_TOKEN_PROGRAM_ID, false),
	)
}

func UnlockInstructionFromLegacyInstruction(program ed25519.PublicKey, txn solana.Transaction, idx int) (*UnlockInstructionArgs, *UnlockInstructionAccounts, error) {
	instruction, err := decompile(program, txn, idx, unlockInstructionDiscriminator, UnlockInstructionNumAccounts)
	if err != nil {
		return nil, nil, err
	}

	offset := len(unlockInstructionDiscriminator)

	var args UnlockInstructionArgs
	var accounts UnlockInstructionAccounts

	// Instruction Args
	if !getString(instruction.Data, &args.Identifier, &offset) {
		return nil, nil, ErrInvalidInstructionData
	}

	// Instruction Accounts
	accounts.VestingContract = instruction.Accounts[0].PublicKey
	accounts.EscrowAccount = instruction.Accounts[1].PublicKey
	accounts.DestinationTokenAccount = instruction.Accounts[2].PublicKey

	return &args, &accounts, nil
}

func IsUnlockInstruction(data []byte) bool {
	return hasDiscriminator(data, unlockInstructionDiscriminator)
}
