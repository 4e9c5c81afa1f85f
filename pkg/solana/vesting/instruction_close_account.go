package vesting_program

import (
	"crypto/ed25519"

	"github.com/code-payments/code-vesting/pkg/solana"
)

var closeAccountInstructionDiscriminator = []byte{
	125, 255, 149, 14, 110, 34, 72, 24,
}

const (
	CloseAccountInstructionNumAccounts = 6
)

type CloseAccountInstructionArgs struct {
	Identifier string
}

type CloseAccountInstructionAccounts struct {
	Initializer        ed25519.PublicKey
	VestingContract    ed25519.PublicKey
	EscrowAccount      ed25519.PublicKey
	ReturnTokenAccount ed25519.PublicKey
}

func NewCloseAccountInstruction(
	program ed25519.PublicKey,
	accounts *CloseAccountInstructionAccounts,
	args *CloseAccountInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(closeAccountInstructionDiscriminator)+
			stringSize(args.Identifier))

	putDiscriminator(data, closeAccountInstructionDiscriminator, &offset)
	putString(data, args.Identifier, &offset)

	return solana.NewInstruction(
		program,
		data,
		solana.NewAccountMeta(accounts.Initializer, true),
		solana.NewAccountMeta(accounts.VestingContract, false),
		solana.NewAccountMeta(accounts.EscrowAccount, false),
		solana.NewAccountMeta(accounts.ReturnTokenAccount, false),
		solana.NewReadonlyAccountMeta(SYSVAR_CLOCK_PUBKEY, false),
		solana.NewReadonlyAccountMeta(SPL_TOKEN_PROGRAM_ID, false),
	)
}

func CloseAccountInstructionFromLegacyInstruction(program ed25519.PublicKey, txn solana.Transaction, idx int) (*CloseAccountInstructionArgs, *CloseAccountInstructionAccounts, error) {
	instruction, err := decompile(program, txn, idx, closeAccountInstructionDiscriminator, CloseAccountInstructionNumAccounts)
	if err != nil {
		return nil, nil, err
	}

	offset := len(closeAccountInstructionDiscriminator)

	var args CloseAccountInstructionArgs
	var accounts CloseAccountInstructionAccounts

	// Instruction Args
	if !getString(instruction.Data, &args.Identifier, &offset) {
		return nil, nil, ErrInvalidInstructionData
	}

	// Instruction Accounts
	accounts.Initializer = instruction.Accounts[0].PublicKey
	accounts.VestingContract = instruction.Accounts[1].PublicKey
	accounts.EscrowAccount = instruction.Accounts[2].PublicKey
	accounts.ReturnTokenAccount = instruction.Accounts[3].PublicKey

	return &args, &accounts, nil
}

func IsCloseAccountInstruction(data []byte) bool {
	return hasDiscriminator(data, closeAccountInstructionDiscriminator)
}
