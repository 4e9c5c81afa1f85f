package vesting

import (
	"context"
	"crypto/ed25519"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	code_data "github.com/code-payments/code-vesting/pkg/code/data"
	"github.com/code-payments/code-vesting/pkg/code/data/contract"
	"github.com/code-payments/code-vesting/pkg/code/ledger"
	"github.com/code-payments/code-vesting/pkg/lock"
	memory_lock "github.com/code-payments/code-vesting/pkg/lock/memory"
	"github.com/code-payments/code-vesting/pkg/testutil"
	vesting_program "github.com/code-payments/code-vesting/pkg/solana/vesting"
)

const (
	testIdentifier = "test-vesting-contract"
	baseTime       = int64(1_700_000_000)
)

var (
	t1 = time.Unix(baseTime+100, 0)
	t2 = time.Unix(baseTime+200, 0)
	t3 = time.Unix(baseTime+300, 0)
)

func TestCreate_HappyPath(t *testing.T) {
	env := setup(t)

	record := env.createContract(t)

	assert.Equal(t, testIdentifier, record.Identifier)
	assert.Equal(t, contract.StateActive, record.State)
	assert.EqualValues(t, 0, record.Cursor)
	assert.EqualValues(t, 350, record.Schedule.Total())
	assert.Equal(t, base58.Encode(env.initializer.Public().(ed25519.PublicKey)), record.Initializer)
	assert.Equal(t, base58.Encode(env.destination), record.Destination)
	assert.Equal(t, base58.Encode(env.source), record.Source)
	assert.Equal(t, base58.Encode(env.mint), record.Mint)
	assert.Equal(t, base58.Encode(env.contractAddress), record.Address)
	assert.Equal(t, base58.Encode(env.escrowAddress), record.EscrowAddress)

	env.assertBalance(t, env.escrowAddress, 350)
	env.assertBalance(t, env.source, 650)
	env.assertBalance(t, env.destination, 0)

	escrow, err := env.ledger.GetAccount(env.ctx, env.escrowAddress)
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(env.contractAddress), escrow.Owner)
	assert.Equal(t, base58.Encode(env.mint), escrow.Mint)

	stored, err := env.program.GetContract(env.ctx, testIdentifier)
	require.NoError(t, err)
	assert.Equal(t, record.Address, stored.Address)
	assert.Equal(t, record.Schedule.Tranches(), stored.Schedule.Tranches())

	records, err := env.program.GetContractsByInitializer(env.ctx, env.initializer.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.Address, records[0].Address)
}

func TestCreate_EscrowMatchesTotalForAnySchedule(t *testing.T) {
	for _, amounts := range [][]uint64{
		{1},
		{10, 20},
		{999},
		{1, 1, 1, 1, 1, 1, 1, 1},
	} {
		env := setup(t)

		times := make([]uint64, len(amounts))
		var total uint64
		for i, amount := range amounts {
			times[i] = uint64(baseTime) + uint64(i+1)*60
			total += amount
		}

		_, err := env.create(env.createArgs(times, amounts), env.createAccounts(), env.initializerSigners())
		require.NoError(t, err)

		env.assertBalance(t, env.escrowAddress, total)
		env.assertBalance(t, env.source, 1000-total)
	}
}

func TestCreate_AlreadyExists(t *testing.T) {
	env := setup(t)

	env.createContract(t)

	_, err := env.create(env.defaultCreateArgs(), env.createAccounts(), env.initializerSigners())
	assert.True(t, errors.Is(err, ErrAccountAlreadyExists))

	env.assertBalance(t, env.escrowAddress, 350)
	env.assertBalance(t, env.source, 650)
}

func TestCreate_MalformedSchedule(t *testing.T) {
	env := setup(t)

	for _, tc := range []struct {
		times   []uint64
		amounts []uint64
	}{
		{nil, nil},
		{[]uint64{1, 2}, []uint64{10}},
		{[]uint64{2, 1}, []uint64{10, 10}},
		{[]uint64{1, 1}, []uint64{10, 10}},
		{[]uint64{1}, []uint64{0}},
	} {
		_, err := env.create(env.createArgs(tc.times, tc.amounts), env.createAccounts(), env.initializerSigners())
		assert.True(t, errors.Is(err, ErrMalformedSchedule))
	}

	env.assertNoContract(t)
	env.assertBalance(t, env.source, 1000)
}

func TestCreate_InvalidIdentifier(t *testing.T) {
	env := setup(t)

	for _, identifier := range []string{"", "this-identifier-is-much-longer-than-32-bytes"} {
		args := env.defaultCreateArgs()
		args.Identifier = identifier

		_, err := env.create(args, env.createAccounts(), env.initializerSigners())
		assert.True(t, errors.Is(err, ErrInvalidIdentifier))
	}
}

func TestCreate_InsufficientFunds(t *testing.T) {
	env := setup(t)

	_, err := env.create(env.createArgs([]uint64{uint64(t1.Unix())}, []uint64{1001}), env.createAccounts(), env.initializerSigners())
	assert.True(t, errors.Is(err, ErrInsufficientFunds))

	env.assertNoContract(t)
	env.assertBalance(t, env.source, 1000)

	_, err = env.ledger.GetAccount(env.ctx, env.escrowAddress)
	assert.True(t, errors.Is(err, ledger.ErrAccountNotFound))
}

func TestCreate_Unauthorized(t *testing.T) {
	env := setup(t)

	_, err := env.create(env.defaultCreateArgs(), env.createAccounts(), []ed25519.PublicKey{env.beneficiary.Public().(ed25519.PublicKey)})
	assert.True(t, errors.Is(err, ErrUnauthorized))

	env.assertNoContract(t)
}

func TestCreate_AddressMismatch(t *testing.T) {
	env := setup(t)

	accounts := env.createAccounts()
	accounts.VestingContract = testutil.NewRandomPublicKey(t)
	_, err := env.create(env.defaultCreateArgs(), accounts, env.initializerSigners())
	assert.True(t, errors.Is(err, ErrAddressMismatch))

	accounts = env.createAccounts()
	accounts.EscrowAccount = testutil.NewRandomPublicKey(t)
	_, err = env.create(env.defaultCreateArgs(), accounts, env.initializerSigners())
	assert.True(t, errors.Is(err, ErrAddressMismatch))

	env.assertNoContract(t)
	env.assertBalance(t, env.source, 1000)
}

func TestCreate_InvalidTokenAccounts(t *testing.T) {
	env := setup(t)

	// Source owned by someone other than the initializer
	accounts := env.createAccounts()
	accounts.SourceTokenAccount = env.destination
	_, err := env.create(env.defaultCreateArgs(), accounts, env.initializerSigners())
	assert.True(t, errors.Is(err, ErrInvalidTokenAccount))

	// Destination for another mint
	accounts = env.createAccounts()
	accounts.DestinationTokenAccount = env.newTokenAccount(t, env.beneficiary.Public().(ed25519.PublicKey), testutil.NewRandomPublicKey(t))
	_, err = env.create(env.defaultCreateArgs(), accounts, env.initializerSigners())
	assert.True(t, errors.Is(err, ErrInvalidTokenAccount))

	// Missing destination
	accounts = env.createAccounts()
	accounts.DestinationTokenAccount = testutil.NewRandomPublicKey(t)
	_, err = env.create(env.defaultCreateArgs(), accounts, env.initializerSigners())
	assert.True(t, errors.Is(err, ErrInvalidTokenAccount))

	env.assertNoContract(t)
}

func TestUnlock_Scenario(t *testing.T) {
	env := setup(t)
	env.createContract(t)

	env.clock.Set(t1.Add(-time.Second))
	_, err := env.unlock(env.unlockAccounts())
	assert.True(t, errors.Is(err, ErrNothingToRelease))
	assert.Empty(t, env.ledger.Transfers())

	env.clock.Set(t3)
	released, err := env.unlock(env.unlockAccounts())
	require.NoError(t, err)
	assert.EqualValues(t, 350, released)

	transfers := env.ledger.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, env.escrowAddress, transfers[0].from)
	assert.Equal(t, env.destination, transfers[0].to)
	assert.EqualValues(t, 350, transfers[0].amount)

	record := env.getContract(t)
	assert.EqualValues(t, 3, record.Cursor)
	assert.Equal(t, contract.StateFullyVested, record.State)

	env.assertBalance(t, env.escrowAddress, 0)
	env.assertBalance(t, env.destination, 350)

	// Immediately unlocking again releases nothing and performs no transfer
	_, err = env.unlock(env.unlockAccounts())
	assert.True(t, errors.Is(err, ErrNothingToRelease))
	assert.Len(t, env.ledger.Transfers(), 1)
}

func TestUnlock_Incremental(t *testing.T) {
	env := setup(t)
	env.createContract(t)

	for _, tc := range []struct {
		now            time.Time
		expectedAmount uint64
		expectedCursor uint32
		expectedState  contract.State
	}{
		{t1, 100, 1, contract.StateActive},
		{t1.Add(50 * time.Second), 0, 1, contract.StateActive},
		{t2.Add(50 * time.Second), 120, 2, contract.StateActive},
		{t2.Add(60 * time.Second), 0, 2, contract.StateActive},
		{t3.Add(time.Hour), 130, 3, contract.StateFullyVested},
		{t3.Add(2 * time.Hour), 0, 3, contract.StateFullyVested},
	} {
		env.clock.Set(tc.now)

		released, err := env.unlock(env.unlockAccounts())
		if tc.expectedAmount == 0 {
			assert.True(t, errors.Is(err, ErrNothingToRelease))
		} else {
			require.NoError(t, err)
		}
		assert.Equal(t, tc.expectedAmount, released)

		record := env.getContract(t)
		assert.Equal(t, tc.expectedCursor, record.Cursor)
		assert.Equal(t, tc.expectedState, record.State)
	}

	assert.Len(t, env.ledger.Transfers(), 3)
	env.assertBalance(t, env.destination, 350)
	env.assertBalance(t, env.escrowAddress, 0)
}

func TestUnlock_CursorIsMonotonic(t *testing.T) {
	env := setup(t)
	env.createContract(t)

	var previous uint32
	for now := baseTime; now <= t3.Unix()+10; now += 7 {
		env.clock.Set(time.Unix(now, 0))
		_, _ = env.unlock(env.unlockAccounts())

		record := env.getContract(t)
		assert.True(t, record.Cursor >= previous)
		previous = record.Cursor
	}
	assert.EqualValues(t, 3, previous)
	env.assertBalance(t, env.destination, 350)
}

func TestUnlock_MismatchedAccounts(t *testing.T) {
	env := setup(t)
	env.createContract(t)
	env.clock.Set(t3)

	accounts := env.unlockAccounts()
	accounts.DestinationTokenAccount = env.newTokenAccount(t, env.beneficiary.Public().(ed25519.PublicKey), env.mint)
	_, err := env.unlock(accounts)
	assert.True(t, errors.Is(err, ErrWrongDestinationAccount))

	accounts = env.unlockAccounts()
	accounts.EscrowAccount = env.newTokenAccount(t, env.contractAddress, env.mint)
	_, err = env.unlock(accounts)
	assert.True(t, errors.Is(err, ErrAddressMismatch))

	accounts = env.unlockAccounts()
	accounts.VestingContract = testutil.NewRandomPublicKey(t)
	_, err = env.unlock(accounts)
	assert.True(t, errors.Is(err, ErrAddressMismatch))

	assert.Empty(t, env.ledger.Transfers())
	env.assertBalance(t, env.escrowAddress, 350)
	assert.EqualValues(t, 0, env.getContract(t).Cursor)
}

func TestUnlock_NotFound(t *testing.T) {
	env := setup(t)

	_, err := env.unlock(env.unlockAccounts())
	assert.True(t, errors.Is(err, ErrContractNotFound))
}

func TestUnlock_FailAtomic(t *testing.T) {
	env := setup(t)
	env.createContract(t)
	env.clock.Set(t2)

	env.ledger.failAfterTransfer = errors.New("induced failure")

	_, err := env.unlock(env.unlockAccounts())
	assert.Equal(t, env.ledger.failAfterTransfer, errors.Cause(err))

	env.assertBalance(t, env.escrowAddress, 350)
	env.assertBalance(t, env.destination, 0)
	assert.EqualValues(t, 0, env.getContract(t).Cursor)

	env.ledger.failAfterTransfer = nil

	released, err := env.unlock(env.unlockAccounts())
	require.NoError(t, err)
	assert.EqualValues(t, 220, released)
}

func TestUnlock_Concurrent(t *testing.T) {
	env := setup(t)
	env.createContract(t)
	env.clock.Set(t3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes int
	var total uint64

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			released, err := env.unlock(env.unlockAccounts())
			if err != nil {
				assert.True(t, errors.Is(err, ErrNothingToRelease))
				return
			}

			mu.Lock()
			successes++
			total += released
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.EqualValues(t, 350, total)
	assert.Len(t, env.ledger.Transfers(), 1)
	env.assertBalance(t, env.destination, 350)
}

func TestUnlock_DistributedLocks(t *testing.T) {
	distributedLocks := memory_lock.NewManager()
	defer distributedLocks.Close()

	env := setupWithLocks(t, distributedLocks)
	env.createContract(t)
	env.clock.Set(t3)

	// A second process operating on the same contracts
	other, err := NewProgram(env.data, env.ledger, env.clock, distributedLocks, withManualTestOverrides(&testOverrides{
		enableDistributedLock: true,
	}))
	require.NoError(t, err)

	held, err := lock.AcquireAll(env.ctx, distributedLocks, []string{lock.ContractKey(testIdentifier)})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(env.ctx, 50*time.Millisecond)
	_, err = env.program.Unlock(ctx, &vesting_program.UnlockInstructionArgs{Identifier: testIdentifier}, env.unlockAccounts())
	cancel()
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	env.assertBalance(t, env.escrowAddress, 350)

	held.Release(env.ctx)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes int
	for i, program := range []*Program{env.program, other, env.program, other} {
		wg.Add(1)
		go func(i int, program *Program) {
			defer wg.Done()

			_, err := program.Unlock(env.ctx, &vesting_program.UnlockInstructionArgs{Identifier: testIdentifier}, env.unlockAccounts())
			if err != nil {
				assert.True(t, errors.Is(err, ErrNothingToRelease), "attempt %d: %v", i, err)
				return
			}

			mu.Lock()
			successes++
			mu.Unlock()
		}(i, program)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Len(t, env.ledger.Transfers(), 1)
	env.assertBalance(t, env.destination, 350)
}

func TestChangeDestination_HappyPath(t *testing.T) {
	env := setup(t)
	env.createContract(t)

	newOwner := testutil.NewRandomPublicKey(t)
	newDestination := env.newTokenAccount(t, newOwner, env.mint)

	err := env.changeDestination(env.changeDestinationAccounts(newDestination), env.beneficiarySigners())
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(newDestination), env.getContract(t).Destination)

	env.clock.Set(t1)

	// The previous destination is no longer paid
	_, err = env.unlock(env.unlockAccounts())
	assert.True(t, errors.Is(err, ErrWrongDestinationAccount))

	accounts := env.unlockAccounts()
	accounts.DestinationTokenAccount = newDestination
	released, err := env.unlock(accounts)
	require.NoError(t, err)
	assert.EqualValues(t, 100, released)

	env.assertBalance(t, newDestination, 100)
	env.assertBalance(t, env.destination, 0)
}

func TestChangeDestination_Unauthorized(t *testing.T) {
	env := setup(t)
	env.createContract(t)

	newDestination := env.newTokenAccount(t, env.initializer.Public().(ed25519.PublicKey), env.mint)

	// The initializer can't redirect releases, neither as signer nor as
	// claimed owner
	accounts := env.changeDestinationAccounts(newDestination)
	err := env.changeDestination(accounts, env.initializerSigners())
	assert.True(t, errors.Is(err, ErrUnauthorized))

	accounts.CurrentDestinationOwner = env.initializer.Public().(ed25519.PublicKey)
	err = env.changeDestination(accounts, env.initializerSigners())
	assert.True(t, errors.Is(err, ErrUnauthorized))

	// A random signer fails too
	stranger := testutil.NewRandomPublicKey(t)
	accounts.CurrentDestinationOwner = stranger
	err = env.changeDestination(accounts, []ed25519.PublicKey{stranger})
	assert.True(t, errors.Is(err, ErrUnauthorized))

	assert.Equal(t, base58.Encode(env.destination), env.getContract(t).Destination)
}

func TestChangeDestination_InvalidAccounts(t *testing.T) {
	env := setup(t)
	env.createContract(t)

	// Current destination doesn't match the record
	other := env.newTokenAccount(t, env.beneficiary.Public().(ed25519.PublicKey), env.mint)
	accounts := env.changeDestinationAccounts(other)
	accounts.CurrentDestinationTokenAccount = other
	err := env.changeDestination(accounts, env.beneficiarySigners())
	assert.True(t, errors.Is(err, ErrWrongDestinationAccount))

	// New destination for another mint
	wrongMint := env.newTokenAccount(t, env.beneficiary.Public().(ed25519.PublicKey), testutil.NewRandomPublicKey(t))
	err = env.changeDestination(env.changeDestinationAccounts(wrongMint), env.beneficiarySigners())
	assert.True(t, errors.Is(err, ErrInvalidTokenAccount))

	// The contract's own escrow, or any account the contract controls
	err = env.changeDestination(env.changeDestinationAccounts(env.escrowAddress), env.beneficiarySigners())
	assert.True(t, errors.Is(err, ErrInvalidTokenAccount))

	contractOwned := env.newTokenAccount(t, env.contractAddress, env.mint)
	err = env.changeDestination(env.changeDestinationAccounts(contractOwned), env.beneficiarySigners())
	assert.True(t, errors.Is(err, ErrInvalidTokenAccount))

	// Forged contract address
	accounts = env.changeDestinationAccounts(other)
	accounts.VestingContract = testutil.NewRandomPublicKey(t)
	err = env.changeDestination(accounts, env.beneficiarySigners())
	assert.True(t, errors.Is(err, ErrAddressMismatch))

	assert.Equal(t, base58.Encode(env.destination), env.getContract(t).Destination)
}

func TestClose_NotFullyVested(t *testing.T) {
	env := setup(t)
	env.createContract(t)

	stranger := testutil.NewRandomPublicKey(t)
	for _, now := range []time.Time{t1.Add(-time.Second), t1, t2} {
		env.clock.Set(now)
		_, _ = env.unlock(env.unlockAccounts())

		err := env.close(env.closeAccounts(), env.initializerSigners())
		assert.True(t, errors.Is(err, ErrNotFullyVested))

		accounts := env.closeAccounts()
		accounts.Initializer = stranger
		err = env.close(accounts, []ed25519.PublicKey{stranger})
		assert.True(t, errors.Is(err, ErrNotFullyVested))
	}

	env.getContract(t)
}

func TestClose_NonZeroEscrow(t *testing.T) {
	env := setup(t)
	env.createContract(t)

	env.clock.Set(t3)
	_, err := env.unlock(env.unlockAccounts())
	require.NoError(t, err)

	require.NoError(t, env.ledger.MintTo(env.ctx, env.escrowAddress, 5))

	err = env.close(env.closeAccounts(), env.initializerSigners())
	assert.True(t, errors.Is(err, ErrNotFullyVested))

	env.getContract(t)
}

func TestClose_HappyPath(t *testing.T) {
	env := setup(t)
	env.createContract(t)

	env.clock.Set(t3)
	_, err := env.unlock(env.unlockAccounts())
	require.NoError(t, err)

	stranger := testutil.NewRandomPublicKey(t)
	accounts := env.closeAccounts()
	accounts.Initializer = stranger
	err = env.close(accounts, []ed25519.PublicKey{stranger})
	assert.True(t, errors.Is(err, ErrUnauthorized))

	// Initializer listed but not signing
	err = env.close(env.closeAccounts(), env.beneficiarySigners())
	assert.True(t, errors.Is(err, ErrUnauthorized))

	// Return account not owned by the initializer
	accounts = env.closeAccounts()
	accounts.ReturnTokenAccount = env.destination
	err = env.close(accounts, env.initializerSigners())
	assert.True(t, errors.Is(err, ErrInvalidTokenAccount))

	env.getContract(t)

	require.NoError(t, env.close(env.closeAccounts(), env.initializerSigners()))

	_, err = env.program.GetContract(env.ctx, testIdentifier)
	assert.True(t, errors.Is(err, ErrContractNotFound))

	_, err = env.ledger.GetAccount(env.ctx, env.escrowAddress)
	assert.True(t, errors.Is(err, ledger.ErrAccountNotFound))

	err = env.close(env.closeAccounts(), env.initializerSigners())
	assert.True(t, errors.Is(err, ErrContractNotFound))

	_, err = env.unlock(env.unlockAccounts())
	assert.True(t, errors.Is(err, ErrContractNotFound))

	// The identifier can be reused once closed
	env.clock.Set(time.Unix(baseTime, 0))
	_, err = env.create(env.defaultCreateArgs(), env.createAccounts(), env.initializerSigners())
	require.NoError(t, err)
}

func TestDeriveAddresses(t *testing.T) {
	env := setup(t)

	expectedContract, expectedContractBump, err := vesting_program.GetVestingContractAddress(env.program.ProgramId(), &vesting_program.GetVestingContractAddressArgs{
		Identifier: testIdentifier,
	})
	require.NoError(t, err)

	expectedEscrow, expectedEscrowBump, err := vesting_program.GetEscrowAddress(env.program.ProgramId(), &vesting_program.GetEscrowAddressArgs{
		Mint:            env.mint,
		VestingContract: expectedContract,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		contractAddress, escrowAddress, err := env.program.DeriveAddresses(testIdentifier, env.mint)
		require.NoError(t, err)

		assert.Equal(t, expectedContract, contractAddress.Address)
		assert.Equal(t, expectedContractBump, contractAddress.Bump)
		assert.Equal(t, expectedEscrow, escrowAddress.Address)
		assert.Equal(t, expectedEscrowBump, escrowAddress.Bump)
	}

	otherContract, _, err := env.program.DeriveAddresses(testIdentifier+"-other", env.mint)
	require.NoError(t, err)
	assert.NotEqual(t, expectedContract, otherContract.Address)

	_, _, err = env.program.DeriveAddresses("", env.mint)
	assert.True(t, errors.Is(err, ErrInvalidIdentifier))
}

func TestNewProgram_InvalidConfig(t *testing.T) {
	data := code_data.NewTestDataProvider()

	_, err := NewProgram(data, ledger.New(data), &testClock{}, nil, withManualTestOverrides(&testOverrides{
		programId: "invalid",
	}))
	assert.Error(t, err)

	_, err = NewProgram(data, ledger.New(data), &testClock{}, nil, withManualTestOverrides(&testOverrides{
		enableDistributedLock: true,
	}))
	assert.Error(t, err)
}

type testEnv struct {
	ctx     context.Context
	data    code_data.Provider
	ledger  *recordingLedger
	clock   *testClock
	program *Program

	initializer ed25519.PrivateKey
	beneficiary ed25519.PrivateKey

	mint        ed25519.PublicKey
	source      ed25519.PublicKey
	destination ed25519.PublicKey

	contractAddress ed25519.PublicKey
	escrowAddress   ed25519.PublicKey
}

func setup(t *testing.T) *testEnv {
	return setupWithLocks(t, nil)
}

func setupWithLocks(t *testing.T, distributedLocks lock.Manager) *testEnv {
	ctx := context.Background()

	data := code_data.NewTestDataProvider()
	recording := &recordingLedger{Ledger: ledger.New(data)}
	clock := &testClock{now: time.Unix(baseTime, 0)}

	program, err := NewProgram(data, recording, clock, distributedLocks, withManualTestOverrides(&testOverrides{
		enableDistributedLock: distributedLocks != nil,
	}))
	require.NoError(t, err)

	env := &testEnv{
		ctx:     ctx,
		data:    data,
		ledger:  recording,
		clock:   clock,
		program: program,

		initializer: testutil.GenerateSolanaKeypair(t),
		beneficiary: testutil.GenerateSolanaKeypair(t),
		mint:        testutil.NewRandomPublicKey(t),
	}

	env.source = env.newTokenAccount(t, env.initializer.Public().(ed25519.PublicKey), env.mint)
	require.NoError(t, recording.MintTo(ctx, env.source, 1000))

	env.destination = env.newTokenAccount(t, env.beneficiary.Public().(ed25519.PublicKey), env.mint)

	contractAddress, escrowAddress, err := program.DeriveAddresses(testIdentifier, env.mint)
	require.NoError(t, err)
	env.contractAddress = contractAddress.Address
	env.escrowAddress = escrowAddress.Address

	return env
}

func (e *testEnv) newTokenAccount(t *testing.T, owner, mint ed25519.PublicKey) ed25519.PublicKey {
	address := testutil.NewRandomPublicKey(t)
	_, err := e.ledger.CreateAccount(e.ctx, address, owner, mint)
	require.NoError(t, err)
	return address
}

func (e *testEnv) createArgs(times, amounts []uint64) *vesting_program.CreateInstructionArgs {
	return &vesting_program.CreateInstructionArgs{
		ReleaseTimes: times,
		Amounts:      amounts,
		Identifier:   testIdentifier,
	}
}

func (e *testEnv) defaultCreateArgs() *vesting_program.CreateInstructionArgs {
	return e.createArgs(
		[]uint64{uint64(t1.Unix()), uint64(t2.Unix()), uint64(t3.Unix())},
		[]uint64{100, 120, 130},
	)
}

func (e *testEnv) createAccounts() *vesting_program.CreateInstructionAccounts {
	return &vesting_program.CreateInstructionAccounts{
		Initializer:             e.initializer.Public().(ed25519.PublicKey),
		VestingContract:         e.contractAddress,
		EscrowAccount:           e.escrowAddress,
		SourceTokenAccount:      e.source,
		DestinationTokenAccount: e.destination,
		Mint:                    e.mint,
	}
}

func (e *testEnv) unlockAccounts() *vesting_program.UnlockInstructionAccounts {
	return &vesting_program.UnlockInstructionAccounts{
		VestingContract:         e.contractAddress,
		EscrowAccount:           e.escrowAddress,
		DestinationTokenAccount: e.destination,
	}
}

func (e *testEnv) changeDestinationAccounts(newDestination ed25519.PublicKey) *vesting_program.ChangeDestinationInstructionAccounts {
	return &vesting_program.ChangeDestinationInstructionAccounts{
		VestingContract:                e.contractAddress,
		CurrentDestinationOwner:        e.beneficiary.Public().(ed25519.PublicKey),
		CurrentDestinationTokenAccount: e.destination,
		NewDestinationTokenAccount:     newDestination,
	}
}

func (e *testEnv) closeAccounts() *vesting_program.CloseAccountInstructionAccounts {
	return &vesting_program.CloseAccountInstructionAccounts{
		Initializer:        e.initializer.Public().(ed25519.PublicKey),
		VestingContract:    e.contractAddress,
		EscrowAccount:      e.escrowAddress,
		ReturnTokenAccount: e.source,
	}
}

func (e *testEnv) initializerSigners() []ed25519.PublicKey {
	return []ed25519.PublicKey{e.initializer.Public().(ed25519.PublicKey)}
}

func (e *testEnv) beneficiarySigners() []ed25519.PublicKey {
	return []ed25519.PublicKey{e.beneficiary.Public().(ed25519.PublicKey)}
}

func (e *testEnv) create(args *vesting_program.CreateInstructionArgs, accounts *vesting_program.CreateInstructionAccounts, signers []ed25519.PublicKey) (*contract.Record, error) {
	return e.program.Create(e.ctx, args, accounts, signers)
}

func (e *testEnv) createContract(t *testing.T) *contract.Record {
	record, err := e.create(e.defaultCreateArgs(), e.createAccounts(), e.initializerSigners())
	require.NoError(t, err)
	e.ledger.ResetTransfers()
	return record
}

func (e *testEnv) unlock(accounts *vesting_program.UnlockInstructionAccounts) (uint64, error) {
	return e.program.Unlock(e.ctx, &vesting_program.UnlockInstructionArgs{Identifier: testIdentifier}, accounts)
}

func (e *testEnv) changeDestination(accounts *vesting_program.ChangeDestinationInstructionAccounts, signers []ed25519.PublicKey) error {
	return e.program.ChangeDestination(e.ctx, &vesting_program.ChangeDestinationInstructionArgs{Identifier: testIdentifier}, accounts, signers)
}

func (e *testEnv) close(accounts *vesting_program.CloseAccountInstructionAccounts, signers []ed25519.PublicKey) error {
	return e.program.Close(e.ctx, &vesting_program.CloseAccountInstructionArgs{Identifier: testIdentifier}, accounts, signers)
}

func (e *testEnv) getContract(t *testing.T) *contract.Record {
	record, err := e.program.GetContract(e.ctx, testIdentifier)
	require.NoError(t, err)
	return record
}

func (e *testEnv) assertNoContract(t *testing.T) {
	_, err := e.program.GetContract(e.ctx, testIdentifier)
	assert.True(t, errors.Is(err, ErrContractNotFound))
}

func (e *testEnv) assertBalance(t *testing.T, address ed25519.PublicKey, expected uint64) {
	balance, err := e.ledger.BalanceOf(e.ctx, address)
	require.NoError(t, err)
	assert.Equal(t, expected, balance)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type transferCall struct {
	from   ed25519.PublicKey
	to     ed25519.PublicKey
	amount uint64
}

// recordingLedger records successful transfers, and optionally fails after a
// transfer has been applied
type recordingLedger struct {
	*ledger.Ledger

	mu                sync.Mutex
	transfers         []transferCall
	failAfterTransfer error
}

func (l *recordingLedger) Transfer(ctx context.Context, from, to ed25519.PublicKey, amount uint64, authority ledger.Authority) error {
	if err := l.Ledger.Transfer(ctx, from, to, amount, authority); err != nil {
		return err
	}

	if l.failAfterTransfer != nil {
		return l.failAfterTransfer
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.transfers = append(l.transfers, transferCall{
		from:   from,
		to:     to,
		amount: amount,
	})
	return nil
}

func (l *recordingLedger) Transfers() []transferCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]transferCall{}, l.transfers...)
}

func (l *recordingLedger) ResetTransfers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transfers = nil
}
