package vesting

import (
	"context"
	"crypto/ed25519"
	"database/sql"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-vesting/pkg/code/data"
	"github.com/code-payments/code-vesting/pkg/code/data/contract"
	"github.com/code-payments/code-vesting/pkg/code/data/tokenaccount"
	"github.com/code-payments/code-vesting/pkg/code/ledger"
	"github.com/code-payments/code-vesting/pkg/code/schedule"
	"github.com/code-payments/code-vesting/pkg/database/query"
	"github.com/code-payments/code-vesting/pkg/lock"
	"github.com/code-payments/code-vesting/pkg/metrics"
	"github.com/code-payments/code-vesting/pkg/solana"
	"github.com/code-payments/code-vesting/pkg/sync"
	vesting_program "github.com/code-payments/code-vesting/pkg/solana/vesting"
)

const (
	metricsStructName = "vesting.Program"

	unlockedEventName    = "VestingContractUnlocked"
	releasedAmountMetric = "Vesting/ReleasedAmount"
)

// Ledger is the subset of the token ledger the vesting program moves funds
// through
type Ledger interface {
	CreateAccount(ctx context.Context, address, owner, mint ed25519.PublicKey) (*tokenaccount.Record, error)
	Transfer(ctx context.Context, from, to ed25519.PublicKey, amount uint64, authority ledger.Authority) error
	BalanceOf(ctx context.Context, address ed25519.PublicKey) (uint64, error)
	GetAccount(ctx context.Context, address ed25519.PublicKey) (*tokenaccount.Record, error)
	CloseAccount(ctx context.Context, address, destination ed25519.PublicKey, authority ledger.Authority) error
}

// Program is the vesting contract state machine. Each operation executes as a
// single atomic unit against the contract record and its escrow account while
// holding the contract's lock.
type Program struct {
	log    *logrus.Entry
	conf   *conf
	data   data.DatabaseData
	ledger Ledger
	clock  Clock

	id        ed25519.PublicKey
	addresses *addressDeriver

	contractLocks    *sync.StripedLock
	distributedLocks lock.Manager
}

// NewProgram returns a new vesting Program. distributedLocks may be nil when
// only a single process operates on contracts.
func NewProgram(
	data data.DatabaseData,
	ledger Ledger,
	clock Clock,
	distributedLocks lock.Manager,
	configProvider ConfigProvider,
) (*Program, error) {
	ctx := context.Background()
	conf := configProvider()

	id, err := base58.Decode(conf.programId.Get(ctx))
	if err != nil || len(id) != ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid program id: %s", conf.programId.Get(ctx))
	}

	if conf.enableDistributedLock.Get(ctx) && distributedLocks == nil {
		return nil, errors.New("distributed locks are enabled without a lock manager")
	}

	return &Program{
		log:    logrus.StandardLogger().WithField("type", "vesting/program"),
		conf:   conf,
		data:   data,
		ledger: ledger,
		clock:  clock,

		id:        id,
		addresses: newAddressDeriver(id, int(conf.addressCacheSize.Get(ctx))),

		contractLocks:    sync.NewStripedLock(uint(conf.lockStripes.Get(ctx))),
		distributedLocks: distributedLocks,
	}, nil
}

// ProgramId returns the address of the vesting program
func (p *Program) ProgramId() ed25519.PublicKey {
	return p.id
}

// Create initializes a vesting contract for the identifier and moves the total
// scheduled amount from the initializer's source account into escrow.
func (p *Program) Create(
	ctx context.Context,
	args *vesting_program.CreateInstructionArgs,
	accounts *vesting_program.CreateInstructionAccounts,
	signers []ed25519.PublicKey,
) (*contract.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Create")
	defer tracer.End()

	var record *contract.Record
	err := p.execute(ctx, []string{args.Identifier}, func(ctx context.Context) error {
		var err error
		record, err = p.create(ctx, args, accounts, signers)
		return err
	})
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}
	return record, nil
}

// Unlock releases every tranche that's due and not yet released to the
// contract's destination, returning the released amount.
func (p *Program) Unlock(
	ctx context.Context,
	args *vesting_program.UnlockInstructionArgs,
	accounts *vesting_program.UnlockInstructionAccounts,
) (uint64, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Unlock")
	defer tracer.End()

	var released uint64
	err := p.execute(ctx, []string{args.Identifier}, func(ctx context.Context) error {
		var err error
		released, err = p.unlock(ctx, args, accounts)
		return err
	})
	if err != nil {
		tracer.OnError(err)
		return 0, err
	}
	return released, nil
}

// ChangeDestination redirects future releases. Only the owner of the current
// destination account may do so.
func (p *Program) ChangeDestination(
	ctx context.Context,
	args *vesting_program.ChangeDestinationInstructionArgs,
	accounts *vesting_program.ChangeDestinationInstructionAccounts,
	signers []ed25519.PublicKey,
) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "ChangeDestination")
	defer tracer.End()

	err := p.execute(ctx, []string{args.Identifier}, func(ctx context.Context) error {
		return p.changeDestination(ctx, args, accounts, signers)
	})
	if err != nil {
		tracer.OnError(err)
	}
	return err
}

// Close deletes a fully vested contract and its empty escrow account.
func (p *Program) Close(
	ctx context.Context,
	args *vesting_program.CloseAccountInstructionArgs,
	accounts *vesting_program.CloseAccountInstructionAccounts,
	signers []ed25519.PublicKey,
) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Close")
	defer tracer.End()

	err := p.execute(ctx, []string{args.Identifier}, func(ctx context.Context) error {
		return p.close(ctx, args, accounts, signers)
	})
	if err != nil {
		tracer.OnError(err)
	}
	return err
}

// GetContract returns the contract for an identifier
func (p *Program) GetContract(ctx context.Context, identifier string) (*contract.Record, error) {
	if err := validateIdentifier(identifier); err != nil {
		return nil, err
	}

	record, err := p.data.GetVestingContractByIdentifier(ctx, identifier)
	if err == contract.ErrContractNotFound {
		return nil, errors.Wrapf(ErrContractNotFound, "identifier %s", identifier)
	} else if err != nil {
		return nil, errors.Wrap(err, "error getting vesting contract")
	}
	return record, nil
}

// GetContractsByInitializer returns a page of contracts created by initializer
func (p *Program) GetContractsByInitializer(ctx context.Context, initializer ed25519.PublicKey, opts ...query.Option) ([]*contract.Record, error) {
	records, err := p.data.GetAllVestingContractsByInitializer(ctx, base58.Encode(initializer), opts...)
	if err == contract.ErrContractNotFound {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "error getting vesting contracts")
	}
	return records, nil
}

// DeriveAddresses returns the contract and escrow addresses for an identifier
// and mint
func (p *Program) DeriveAddresses(identifier string, mint ed25519.PublicKey) (contractAddress, escrowAddress *solana.ProgramAddress, err error) {
	contractAddress, err = p.addresses.contractAddress(identifier)
	if err != nil {
		return nil, nil, err
	}

	escrowAddress, err = p.addresses.escrowAddress(mint, contractAddress.Address)
	if err != nil {
		return nil, nil, err
	}

	return contractAddress, escrowAddress, nil
}

func (p *Program) create(
	ctx context.Context,
	args *vesting_program.CreateInstructionArgs,
	accounts *vesting_program.CreateInstructionAccounts,
	signers []ed25519.PublicKey,
) (*contract.Record, error) {
	log := p.log.WithFields(logrus.Fields{
		"method":      "Create",
		"identifier":  args.Identifier,
		"initializer": base58.Encode(accounts.Initializer),
	})

	if err := validateIdentifier(args.Identifier); err != nil {
		return nil, err
	}

	vestingSchedule, err := schedule.New(args.ReleaseTimes, args.Amounts)
	if err != nil {
		return nil, err
	}

	if !isSigner(signers, accounts.Initializer) {
		return nil, errors.Wrap(ErrUnauthorized, "initializer must sign")
	}

	contractAddress, escrowAddress, err := p.DeriveAddresses(args.Identifier, accounts.Mint)
	if err != nil {
		return nil, err
	}
	if err := checkAddress(contractAddress.Address, accounts.VestingContract, "vesting contract"); err != nil {
		return nil, err
	}
	if err := checkAddress(escrowAddress.Address, accounts.EscrowAccount, "escrow account"); err != nil {
		return nil, err
	}

	_, err = p.data.GetVestingContractByAddress(ctx, contractAddress.ToBase58())
	if err == nil {
		return nil, errors.Wrapf(ErrAccountAlreadyExists, "vesting contract %s", contractAddress.ToBase58())
	} else if err != contract.ErrContractNotFound {
		return nil, errors.Wrap(err, "error checking for existing vesting contract")
	}

	source, err := p.getTokenAccount(ctx, accounts.SourceTokenAccount, "source")
	if err != nil {
		return nil, err
	}
	if source.Owner != base58.Encode(accounts.Initializer) || source.Mint != base58.Encode(accounts.Mint) {
		return nil, errors.Wrap(ErrInvalidTokenAccount, "source must be an initializer owned account for the mint")
	}

	destination, err := p.getTokenAccount(ctx, accounts.DestinationTokenAccount, "destination")
	if err != nil {
		return nil, err
	}
	if destination.Mint != base58.Encode(accounts.Mint) {
		return nil, errors.Wrap(ErrInvalidTokenAccount, "destination must be an account for the mint")
	}

	_, err = p.ledger.CreateAccount(ctx, escrowAddress.Address, contractAddress.Address, accounts.Mint)
	if errors.Is(err, ledger.ErrAccountAlreadyExists) {
		return nil, errors.Wrapf(ErrAccountAlreadyExists, "escrow account %s", escrowAddress.ToBase58())
	} else if err != nil {
		return nil, errors.Wrap(err, "error creating escrow account")
	}

	err = p.ledger.Transfer(
		ctx,
		accounts.SourceTokenAccount,
		escrowAddress.Address,
		vestingSchedule.Total(),
		ledger.SignerAuthority(accounts.Initializer),
	)
	if err != nil {
		return nil, errors.Wrap(err, "error funding escrow account")
	}

	record := &contract.Record{
		Identifier:    args.Identifier,
		Address:       contractAddress.ToBase58(),
		Bump:          contractAddress.Bump,
		EscrowAddress: escrowAddress.ToBase58(),
		EscrowBump:    escrowAddress.Bump,
		Initializer:   base58.Encode(accounts.Initializer),
		Source:        base58.Encode(accounts.SourceTokenAccount),
		Destination:   base58.Encode(accounts.DestinationTokenAccount),
		Mint:          base58.Encode(accounts.Mint),
		Schedule:      vestingSchedule,
		Cursor:        0,
		State:         contract.StateActive,
	}

	err = p.data.CreateVestingContract(ctx, record)
	if err == contract.ErrContractExists {
		return nil, errors.Wrapf(ErrAccountAlreadyExists, "vesting contract %s", record.Address)
	} else if err != nil {
		return nil, errors.Wrap(err, "error saving vesting contract")
	}

	log.WithFields(logrus.Fields{
		"contract": record.Address,
		"escrow":   record.EscrowAddress,
		"schedule": vestingSchedule.String(),
	}).Info("vesting contract created")

	return record, nil
}

func (p *Program) unlock(
	ctx context.Context,
	args *vesting_program.UnlockInstructionArgs,
	accounts *vesting_program.UnlockInstructionAccounts,
) (uint64, error) {
	log := p.log.WithFields(logrus.Fields{
		"method":     "Unlock",
		"identifier": args.Identifier,
	})

	record, err := p.GetContract(ctx, args.Identifier)
	if err != nil {
		return 0, err
	}

	if err := p.verifyContractAccounts(record, accounts.VestingContract, accounts.EscrowAccount); err != nil {
		return 0, err
	}

	if base58.Encode(accounts.DestinationTokenAccount) != record.Destination {
		return 0, errors.Wrapf(ErrWrongDestinationAccount, "expected %s", record.Destination)
	}

	now := p.clock.Now()
	next, amount := record.Schedule.Due(int(record.Cursor), now)
	if next == int(record.Cursor) {
		nextReleaseTime, ok := record.Schedule.NextReleaseTime(int(record.Cursor))
		if ok {
			return 0, errors.Wrapf(ErrNothingToRelease, "next release at %d", nextReleaseTime.Unix())
		}
		return 0, errors.Wrap(ErrNothingToRelease, "contract is fully vested")
	}

	err = p.ledger.Transfer(
		ctx,
		accounts.EscrowAccount,
		accounts.DestinationTokenAccount,
		amount,
		ledger.ProgramAuthority(p.id, vesting_program.VestingContractSeeds(record.Identifier, record.Bump)...),
	)
	if err != nil {
		return 0, errors.Wrap(err, "error releasing from escrow")
	}

	previousCursor := record.Cursor
	record.Cursor = uint32(next)
	record.State = contract.StateForCursor(record.Schedule, record.Cursor)

	if err := p.data.UpdateVestingContract(ctx, record); err != nil {
		return 0, errors.Wrap(err, "error updating vesting contract")
	}

	log.WithFields(logrus.Fields{
		"amount":          amount,
		"previous_cursor": previousCursor,
		"cursor":          record.Cursor,
		"state":           record.State.String(),
	}).Info("tranches released")

	metrics.RecordEvent(ctx, unlockedEventName, map[string]interface{}{
		"contract": record.Address,
		"amount":   amount,
		"tranches": record.Cursor - previousCursor,
	})
	metrics.RecordCount(ctx, releasedAmountMetric, amount)

	return amount, nil
}

func (p *Program) changeDestination(
	ctx context.Context,
	args *vesting_program.ChangeDestinationInstructionArgs,
	accounts *vesting_program.ChangeDestinationInstructionAccounts,
	signers []ed25519.PublicKey,
) error {
	log := p.log.WithFields(logrus.Fields{
		"method":     "ChangeDestination",
		"identifier": args.Identifier,
	})

	record, err := p.GetContract(ctx, args.Identifier)
	if err != nil {
		return err
	}

	if err := p.verifyContractAccounts(record, accounts.VestingContract, nil); err != nil {
		return err
	}

	if base58.Encode(accounts.CurrentDestinationTokenAccount) != record.Destination {
		return errors.Wrapf(ErrWrongDestinationAccount, "expected %s", record.Destination)
	}

	if !isSigner(signers, accounts.CurrentDestinationOwner) {
		return errors.Wrap(ErrUnauthorized, "current destination owner must sign")
	}

	current, err := p.getTokenAccount(ctx, accounts.CurrentDestinationTokenAccount, "current destination")
	if err != nil {
		return err
	}
	if current.Owner != base58.Encode(accounts.CurrentDestinationOwner) {
		return errors.Wrap(ErrUnauthorized, "signer doesn't own the current destination")
	}

	newDestination, err := p.getTokenAccount(ctx, accounts.NewDestinationTokenAccount, "new destination")
	if err != nil {
		return err
	}
	if newDestination.Mint != record.Mint {
		return errors.Wrap(ErrInvalidTokenAccount, "new destination must be an account for the mint")
	}

	// Releases from the escrow into a program owned account could never leave it
	if newDestination.Address == record.EscrowAddress || newDestination.Owner == record.Address {
		return errors.Wrap(ErrInvalidTokenAccount, "new destination cannot be controlled by the vesting contract")
	}

	previous := record.Destination
	record.Destination = newDestination.Address
	if err := p.data.UpdateVestingContract(ctx, record); err != nil {
		return errors.Wrap(err, "error updating vesting contract")
	}

	log.WithFields(logrus.Fields{
		"previous_destination": previous,
		"destination":          record.Destination,
	}).Info("destination changed")

	return nil
}

func (p *Program) close(
	ctx context.Context,
	args *vesting_program.CloseAccountInstructionArgs,
	accounts *vesting_program.CloseAccountInstructionAccounts,
	signers []ed25519.PublicKey,
) error {
	log := p.log.WithFields(logrus.Fields{
		"method":     "Close",
		"identifier": args.Identifier,
	})

	record, err := p.GetContract(ctx, args.Identifier)
	if err != nil {
		return err
	}

	if err := p.verifyContractAccounts(record, accounts.VestingContract, accounts.EscrowAccount); err != nil {
		return err
	}

	if !record.IsFullyVested() {
		return errors.Wrapf(ErrNotFullyVested, "%d of %d tranches released", record.Cursor, record.Schedule.Len())
	}

	balance, err := p.ledger.BalanceOf(ctx, accounts.EscrowAccount)
	if err != nil {
		return errors.Wrap(err, "error getting escrow balance")
	}
	if balance > 0 {
		return errors.Wrapf(ErrNotFullyVested, "escrow holds %d", balance)
	}

	if !isSigner(signers, accounts.Initializer) || base58.Encode(accounts.Initializer) != record.Initializer {
		return errors.Wrap(ErrUnauthorized, "initializer must sign")
	}

	returnAccount, err := p.getTokenAccount(ctx, accounts.ReturnTokenAccount, "return")
	if err != nil {
		return err
	}
	if returnAccount.Owner != record.Initializer || returnAccount.Mint != record.Mint {
		return errors.Wrap(ErrInvalidTokenAccount, "return account must be an initializer owned account for the mint")
	}

	err = p.ledger.CloseAccount(
		ctx,
		accounts.EscrowAccount,
		accounts.ReturnTokenAccount,
		ledger.ProgramAuthority(p.id, vesting_program.VestingContractSeeds(record.Identifier, record.Bump)...),
	)
	if err != nil {
		return errors.Wrap(err, "error closing escrow account")
	}

	err = p.data.DeleteVestingContract(ctx, record.Address)
	if err == contract.ErrContractNotFound {
		return errors.Wrapf(ErrContractNotFound, "identifier %s", args.Identifier)
	} else if err != nil {
		return errors.Wrap(err, "error deleting vesting contract")
	}

	log.WithField("contract", record.Address).Info("vesting contract closed")

	return nil
}

// verifyContractAccounts checks caller supplied contract and escrow addresses
// against both the stored record and a fresh derivation from its seeds. A nil
// escrow skips the escrow check.
func (p *Program) verifyContractAccounts(record *contract.Record, contractAddress, escrowAddress ed25519.PublicKey) error {
	if err := p.addresses.verifyContractAddress(record.Identifier, record.Bump, contractAddress); err != nil {
		return err
	}
	if base58.Encode(contractAddress) != record.Address {
		return errors.Wrapf(ErrAddressMismatch, "vesting contract: expected %s", record.Address)
	}

	if escrowAddress == nil {
		return nil
	}

	mint, err := base58.Decode(record.Mint)
	if err != nil {
		return errors.Wrap(err, "invalid stored mint")
	}
	if err := p.addresses.verifyEscrowAddress(mint, contractAddress, record.EscrowBump, escrowAddress); err != nil {
		return err
	}
	if base58.Encode(escrowAddress) != record.EscrowAddress {
		return errors.Wrapf(ErrAddressMismatch, "escrow account: expected %s", record.EscrowAddress)
	}
	return nil
}

func (p *Program) getTokenAccount(ctx context.Context, address ed25519.PublicKey, name string) (*tokenaccount.Record, error) {
	account, err := p.ledger.GetAccount(ctx, address)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, errors.Wrapf(ErrInvalidTokenAccount, "%s account %s doesn't exist", name, base58.Encode(address))
	} else if err != nil {
		return nil, errors.Wrapf(err, "error getting %s account", name)
	}
	return account, nil
}

// execute runs fn as a single atomic unit while holding the lock for every
// identifier it touches
func (p *Program) execute(ctx context.Context, identifiers []string, fn func(ctx context.Context) error) error {
	keys := make([][]byte, len(identifiers))
	for i, identifier := range identifiers {
		keys[i] = []byte(identifier)
	}

	for _, mu := range p.contractLocks.GetMany(keys...) {
		mu.Lock()
		defer mu.Unlock()
	}

	if p.conf.enableDistributedLock.Get(ctx) {
		names := make([]string, len(identifiers))
		for i, identifier := range identifiers {
			names[i] = lock.ContractKey(identifier)
		}

		held, err := lock.AcquireAll(ctx, p.distributedLocks, names)
		if err != nil {
			return errors.Wrap(err, "error acquiring distributed locks")
		}
		defer held.Release(context.Background())

		// Abandon the unit of work if another process could now hold the locks
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-held.Lost():
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return p.data.ExecuteInTx(ctx, sql.LevelSerializable, fn)
}

func isSigner(signers []ed25519.PublicKey, account ed25519.PublicKey) bool {
	if len(account) != ed25519.PublicKeySize {
		return false
	}

	for _, signer := range signers {
		if signer.Equal(account) {
			return true
		}
	}
	return false
}
