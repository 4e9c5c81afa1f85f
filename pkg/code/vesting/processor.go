package vesting

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-vesting/pkg/code/data/contract"
	"github.com/code-payments/code-vesting/pkg/metrics"
	"github.com/code-payments/code-vesting/pkg/solana"
	vesting_program "github.com/code-payments/code-vesting/pkg/solana/vesting"
)

const transactionDurationMetric = "Vesting/TransactionDuration"

type InstructionType uint8

const (
	InstructionTypeUnknown InstructionType = iota
	InstructionTypeCreate
	InstructionTypeUnlock
	InstructionTypeChangeDestination
	InstructionTypeClose
)

func (t InstructionType) String() string {
	switch t {
	case InstructionTypeCreate:
		return "create"
	case InstructionTypeUnlock:
		return "unlock"
	case InstructionTypeChangeDestination:
		return "change_destination"
	case InstructionTypeClose:
		return "close_account"
	}
	return "unknown"
}

// InstructionResult is the outcome of a single processed instruction
type InstructionResult struct {
	Index      int
	Type       InstructionType
	Identifier string

	// Set for unlock instructions
	Released uint64

	// Set for create instructions
	Contract *contract.Record
}

type decodedInstruction struct {
	index      int
	kind       InstructionType
	identifier string

	createArgs     *vesting_program.CreateInstructionArgs
	createAccounts *vesting_program.CreateInstructionAccounts

	unlockArgs     *vesting_program.UnlockInstructionArgs
	unlockAccounts *vesting_program.UnlockInstructionAccounts

	changeDestinationArgs     *vesting_program.ChangeDestinationInstructionArgs
	changeDestinationAccounts *vesting_program.ChangeDestinationInstructionAccounts

	closeArgs     *vesting_program.CloseAccountInstructionArgs
	closeAccounts *vesting_program.CloseAccountInstructionAccounts
}

// Processor executes signed transactions against the vesting Program
type Processor struct {
	log     *logrus.Entry
	program *Program
}

func NewProcessor(program *Program) *Processor {
	return &Processor{
		log:     logrus.StandardLogger().WithField("type", "vesting/processor"),
		program: program,
	}
}

// ProcessTransaction verifies every signature on the transaction, then executes
// each of its instructions in order as a single atomic unit. Either every
// instruction succeeds, or none of their effects are kept.
func (p *Processor) ProcessTransaction(ctx context.Context, txn solana.Transaction) ([]*InstructionResult, error) {
	tracer := metrics.TraceMethodCall(ctx, "vesting.Processor", "ProcessTransaction")
	defer tracer.End()

	signers, err := txn.VerifySignatures()
	if err != nil {
		return nil, err
	}

	log := p.log.WithFields(logrus.Fields{
		"method":    "ProcessTransaction",
		"signature": base58.Encode(txn.Signature()),
	})

	if len(txn.Message.Instructions) == 0 {
		return nil, errors.Wrap(ErrUnsupportedInstruction, "transaction has no instructions")
	}

	decoded := make([]*decodedInstruction, len(txn.Message.Instructions))
	identifiers := make([]string, len(txn.Message.Instructions))
	for i := range txn.Message.Instructions {
		decoded[i], err = p.decode(txn, i)
		if err != nil {
			return nil, err
		}
		identifiers[i] = decoded[i].identifier
	}

	start := time.Now()
	results := make([]*InstructionResult, len(decoded))
	err = p.program.execute(ctx, identifiers, func(ctx context.Context) error {
		for i, instruction := range decoded {
			result, err := p.dispatch(ctx, instruction, signers)
			if err != nil {
				return errors.Wrapf(err, "instruction %d (%s) failed", i, instruction.kind)
			}
			results[i] = result
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Debug("transaction failed")
		tracer.OnError(err)
		return nil, err
	}

	metrics.RecordDuration(ctx, transactionDurationMetric, time.Since(start))
	log.WithField("instructions", len(results)).Debug("transaction processed")

	return results, nil
}

func (p *Processor) decode(txn solana.Transaction, index int) (*decodedInstruction, error) {
	compiled := txn.Message.Instructions[index]
	if int(compiled.ProgramIndex) >= len(txn.Message.Accounts) {
		return nil, errors.Wrapf(ErrUnsupportedInstruction, "instruction %d has an invalid program index", index)
	}

	program := txn.Message.Accounts[compiled.ProgramIndex]
	if !bytes.Equal(program, p.program.id) {
		return nil, errors.Wrapf(ErrUnsupportedInstruction, "instruction %d targets program %s", index, base58.Encode(program))
	}

	res := &decodedInstruction{
		index: index,
	}

	var err error
	switch {
	case vesting_program.IsCreateInstruction(compiled.Data):
		res.kind = InstructionTypeCreate
		res.createArgs, res.createAccounts, err = vesting_program.CreateInstructionFromLegacyInstruction(p.program.id, txn, index)
		if err == nil {
			res.identifier = res.createArgs.Identifier
		}
	case vesting_program.IsUnlockInstruction(compiled.Data):
		res.kind = InstructionTypeUnlock
		res.unlockArgs, res.unlockAccounts, err = vesting_program.UnlockInstructionFromLegacyInstruction(p.program.id, txn, index)
		if err == nil {
			res.identifier = res.unlockArgs.Identifier
		}
	case vesting_program.IsChangeDestinationInstruction(compiled.Data):
		res.kind = InstructionTypeChangeDestination
		res.changeDestinationArgs, res.changeDestinationAccounts, err = vesting_program.ChangeDestinationInstructionFromLegacyInstruction(p.program.id, txn, index)
		if err == nil {
			res.identifier = res.changeDestinationArgs.Identifier
		}
	case vesting_program.IsCloseAccountInstruction(compiled.Data):
		res.kind = InstructionTypeClose
		res.closeArgs, res.closeAccounts, err = vesting_program.CloseAccountInstructionFromLegacyInstruction(p.program.id, txn, index)
		if err == nil {
			res.identifier = res.closeArgs.Identifier
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedInstruction, "instruction %d has an unknown discriminator", index)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrUnsupportedInstruction, "instruction %d: %s", index, err.Error())
	}

	return res, nil
}

func (p *Processor) dispatch(ctx context.Context, instruction *decodedInstruction, signers []ed25519.PublicKey) (*InstructionResult, error) {
	result := &InstructionResult{
		Index:      instruction.index,
		Type:       instruction.kind,
		Identifier: instruction.identifier,
	}

	var err error
	switch instruction.kind {
	case InstructionTypeCreate:
		result.Contract, err = p.program.create(ctx, instruction.createArgs, instruction.createAccounts, signers)
	case InstructionTypeUnlock:
		result.Released, err = p.program.unlock(ctx, instruction.unlockArgs, instruction.unlockAccounts)
	case InstructionTypeChangeDestination:
		err = p.program.changeDestination(ctx, instruction.changeDestinationArgs, instruction.changeDestinationAccounts, signers)
	case InstructionTypeClose:
		err = p.program.close(ctx, instruction.closeArgs, instruction.closeAccounts, signers)
	default:
		err = ErrUnsupportedInstruction
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
