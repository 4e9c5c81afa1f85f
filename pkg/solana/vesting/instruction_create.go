package vesting_program

import (
	"bytes"
	"crypto/ed25519"

	"github.com/code-payments/code-vesting/pkg/solana"
)

var createInstructionDiscriminator = []byte{
	24, 30, 200, 40, 5, 28, 7, 119,
}

const (
	CreateInstructionNumAccounts = 9
)

type CreateInstructionArgs struct {
	ReleaseTimes []uint64
	Amounts      []uint64
	Identifier   string
}

type CreateInstructionAccounts struct {
	Initializer             ed25519.PublicKey
	VestingContract         ed25519.PublicKey
	EscrowAccount           ed25519.PublicKey
	SourceTokenAccount      ed25519.PublicKey
	DestinationTokenAccount ed25519.PublicKey
	Mint                    ed25519.PublicKey
}

func NewCreateInstruction(
	program ed25519.PublicKey,
	accounts *CreateInstructionAccounts,
	args *CreateInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(createInstructionDiscriminator)+
			uint64VecSize(args.ReleaseTimes)+
			uint64VecSize(args.Amounts)+
			stringSize(args.Identifier))

	putDiscriminator(data, createInstructionDiscriminator, &offset)
	putUint64Vec(data, args.ReleaseTimes, &offset)
	putUint64Vec(data, args.Amounts, &offset)
	putString(data, args.Identifier, &offset)

	return solana.NewInstruction(
		program,
		data,
		solana.NewAccountMeta(accounts.Initializer, true),
		solana.NewAccountMeta(accounts.VestingContract, false),
		solana.NewAccountMeta(accounts.EscrowAccount, false),
		solana.NewAccountMeta(accounts.SourceTokenAccount, false),
		solana.NewReadonlyAccountMeta(accounts.DestinationTokenAccount, false),
		solana.NewReadonlyAccountMeta(accounts.Mint, false),
		solana.NewReadonlyAccountMeta(SYSTEM_PROGRAM_ID, false),
		solana.NewReadonlyAccountMeta(SPL_TOKEN_PROGRAM_ID, false),
		solana.NewReadonlyAccountMeta(SYSVAR_RENT_PUBKEY, false),
	)
}

func CreateInstructionFromLegacyInstruction(program ed25519.PublicKey, txn solana.Transaction, idx int) (*CreateInstructionArgs, *CreateInstructionAccounts, error) {
	instruction, err := decompile(program, txn, idx, createInstructionDiscriminator, CreateInstructionNumAccounts)
	if err != nil {
		return nil, nil, err
	}

	offset := len(createInstructionDiscriminator)

	var args CreateInstructionArgs
	var accounts CreateInstructionAccounts

	// Instruction Args
	if !getUint64Vec(instruction.Data, &args.ReleaseTimes, &offset) {
		return nil, nil, ErrInvalidInstructionData
	}
	if !getUint64Vec(instruction.Data, &args.Amounts, &offset) {
		return nil, nil, ErrInvalidInstructionData
	}
	if !getString(instruction.Data, &args.Identifier, &offset) {
		return nil, nil, ErrInvalidInstructionData
	}

	// Instruction Accounts
	accounts.Initializer = instruction.Accounts[0].PublicKey
	accounts.VestingContract = instruction.Accounts[1].PublicKey
	accounts.EscrowAccount = instruction.Accounts[2].PublicKey
	accounts.SourceTokenAccount = instruction.Accounts[3].PublicKey
	accounts.DestinationTokenAccount = instruction.Accounts[4].PublicKey
	accounts.Mint = instruction.Accounts[5].PublicKey

	return &args, &accounts, nil
}

// decompile resolves the instruction at idx and checks that it targets the
// program with the expected discriminator and account count.
func decompile(program ed25519.PublicKey, txn solana.Transaction, idx int, discriminator []byte, numAccounts int) (*solana.Instruction, error) {
	instruction, err := txn.DecompileInstruction(idx)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(program, instruction.Program) {
		return nil, ErrInvalidProgram
	}

	if len(instruction.Data) < len(discriminator) || !bytes.Equal(instruction.Data[:len(discriminator)], discriminator) {
		return nil, ErrInvalidInstructionData
	}

	if len(instruction.Accounts) < numAccounts {
		return nil, ErrInvalidInstructionData
	}

	return &instruction, nil
}

// IsCreateInstruction returns whether the instruction data carries the create
// discriminator
func IsCreateInstruction(data []byte) bool {
	return hasDiscriminator(data, createInstructionDiscriminator)
}

func hasDiscriminator(data, discriminator []byte) bool {
	return len(data) >= len(discriminator) && bytes.Equal(data[:len(discriminator)], discriminator)
}
