package vesting

import (
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-vesting/pkg/solana"
	vesting_program "github.com/code-payments/code-vesting/pkg/solana/vesting"
	"github.com/code-payments/code-vesting/pkg/testutil"
)

func TestProcessTransaction_Lifecycle(t *testing.T) {
	env := setup(t)
	processor := NewProcessor(env.program)
	programId := env.program.ProgramId()

	// Create
	txn := env.signedTransaction(t, env.initializer, vesting_program.NewCreateInstruction(
		programId,
		env.createAccounts(),
		env.defaultCreateArgs(),
	))
	results, err := processor.ProcessTransaction(env.ctx, txn)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, InstructionTypeCreate, results[0].Type)
	assert.Equal(t, testIdentifier, results[0].Identifier)
	require.NotNil(t, results[0].Contract)
	assert.Equal(t, base58.Encode(env.contractAddress), results[0].Contract.Address)
	env.assertBalance(t, env.escrowAddress, 350)

	// Change destination, signed by the beneficiary
	newDestination := env.newTokenAccount(t, env.beneficiary.Public().(ed25519.PublicKey), env.mint)
	txn = env.signedTransaction(t, env.beneficiary, vesting_program.NewChangeDestinationInstruction(
		programId,
		env.changeDestinationAccounts(newDestination),
		&vesting_program.ChangeDestinationInstructionArgs{Identifier: testIdentifier},
	))
	results, err = processor.ProcessTransaction(env.ctx, txn)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, InstructionTypeChangeDestination, results[0].Type)

	// Unlock, which anyone can crank
	env.clock.Set(t3)
	unlockAccounts := env.unlockAccounts()
	unlockAccounts.DestinationTokenAccount = newDestination
	txn = env.signedTransaction(t, testutil.GenerateSolanaKeypair(t), vesting_program.NewUnlockInstruction(
		programId,
		unlockAccounts,
		&vesting_program.UnlockInstructionArgs{Identifier: testIdentifier},
	))
	results, err = processor.ProcessTransaction(env.ctx, txn)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, InstructionTypeUnlock, results[0].Type)
	assert.EqualValues(t, 350, results[0].Released)
	env.assertBalance(t, newDestination, 350)

	// Close
	txn = env.signedTransaction(t, env.initializer, vesting_program.NewCloseAccountInstruction(
		programId,
		env.closeAccounts(),
		&vesting_program.CloseAccountInstructionArgs{Identifier: testIdentifier},
	))
	results, err = processor.ProcessTransaction(env.ctx, txn)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, InstructionTypeClose, results[0].Type)

	env.assertNoContract(t)
}

func TestProcessTransaction_MultipleInstructions(t *testing.T) {
	env := setup(t)
	processor := NewProcessor(env.program)
	programId := env.program.ProgramId()

	env.clock.Set(t2)

	txn := env.signedTransaction(
		t,
		env.initializer,
		vesting_program.NewCreateInstruction(programId, env.createAccounts(), env.defaultCreateArgs()),
		vesting_program.NewUnlockInstruction(programId, env.unlockAccounts(), &vesting_program.UnlockInstructionArgs{Identifier: testIdentifier}),
	)

	results, err := processor.ProcessTransaction(env.ctx, txn)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, InstructionTypeCreate, results[0].Type)
	assert.Equal(t, InstructionTypeUnlock, results[1].Type)
	assert.EqualValues(t, 220, results[1].Released)

	env.assertBalance(t, env.escrowAddress, 130)
	env.assertBalance(t, env.destination, 220)
	assert.EqualValues(t, 2, env.getContract(t).Cursor)
}

func TestProcessTransaction_AtomicAcrossInstructions(t *testing.T) {
	env := setup(t)
	processor := NewProcessor(env.program)
	programId := env.program.ProgramId()

	// The unlock fails because nothing is due yet, which must also undo the
	// create that preceded it
	txn := env.signedTransaction(
		t,
		env.initializer,
		vesting_program.NewCreateInstruction(programId, env.createAccounts(), env.defaultCreateArgs()),
		vesting_program.NewUnlockInstruction(programId, env.unlockAccounts(), &vesting_program.UnlockInstructionArgs{Identifier: testIdentifier}),
	)

	_, err := processor.ProcessTransaction(env.ctx, txn)
	assert.True(t, errors.Is(err, ErrNothingToRelease))

	env.assertNoContract(t)
	env.assertBalance(t, env.source, 1000)
}

func TestProcessTransaction_SignatureFailures(t *testing.T) {
	env := setup(t)
	processor := NewProcessor(env.program)

	instruction := vesting_program.NewCreateInstruction(env.program.ProgramId(), env.createAccounts(), env.defaultCreateArgs())

	// Unsigned
	txn := solana.NewTransaction(env.initializer.Public().(ed25519.PublicKey), instruction)
	_, err := processor.ProcessTransaction(env.ctx, txn)
	assert.True(t, errors.Is(err, solana.ErrSignatureFailure))

	// Tampered after signing
	txn = env.signedTransaction(t, env.initializer, instruction)
	txn.Message.Instructions[0].Data[len(txn.Message.Instructions[0].Data)-1] ^= 0xff
	_, err = processor.ProcessTransaction(env.ctx, txn)
	assert.True(t, errors.Is(err, solana.ErrSignatureFailure))

	// Create signed by the payer, but the initializer is someone else
	accounts := env.createAccounts()
	accounts.Initializer = env.beneficiary.Public().(ed25519.PublicKey)
	payer := testutil.GenerateSolanaKeypair(t)
	txn = solana.NewTransaction(payer.Public().(ed25519.PublicKey), vesting_program.NewCreateInstruction(env.program.ProgramId(), accounts, env.defaultCreateArgs()))
	require.NoError(t, txn.Sign(payer))
	_, err = processor.ProcessTransaction(env.ctx, txn)
	assert.True(t, errors.Is(err, solana.ErrSignatureFailure))

	env.assertNoContract(t)
}

func TestProcessTransaction_UnsupportedInstructions(t *testing.T) {
	env := setup(t)
	processor := NewProcessor(env.program)

	// Another program
	txn := env.signedTransaction(t, env.initializer, vesting_program.NewCreateInstruction(
		testutil.NewRandomPublicKey(t),
		env.createAccounts(),
		env.defaultCreateArgs(),
	))
	_, err := processor.ProcessTransaction(env.ctx, txn)
	assert.True(t, errors.Is(err, ErrUnsupportedInstruction))

	// Unknown discriminator
	txn = env.signedTransaction(t, env.initializer, solana.NewInstruction(
		env.program.ProgramId(),
		[]byte{1, 2, 3, 4, 5, 6, 7, 8},
	))
	_, err = processor.ProcessTransaction(env.ctx, txn)
	assert.True(t, errors.Is(err, ErrUnsupportedInstruction))

	// Truncated instruction data
	instruction := vesting_program.NewUnlockInstruction(env.program.ProgramId(), env.unlockAccounts(), &vesting_program.UnlockInstructionArgs{Identifier: testIdentifier})
	instruction.Data = instruction.Data[:len(instruction.Data)-2]
	txn = env.signedTransaction(t, env.initializer, instruction)
	_, err = processor.ProcessTransaction(env.ctx, txn)
	assert.True(t, errors.Is(err, ErrUnsupportedInstruction))

	env.assertNoContract(t)
}

func (e *testEnv) signedTransaction(t *testing.T, payer ed25519.PrivateKey, instructions ...solana.Instruction) solana.Transaction {
	txn := solana.NewTransaction(payer.Public().(ed25519.PublicKey), instructions...)
	require.NoError(t, txn.Sign(payer))
	return txn
}
