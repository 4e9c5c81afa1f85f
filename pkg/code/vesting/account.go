package vesting

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-vesting/pkg/code/data/contract"
	"github.com/code-payments/code-vesting/pkg/code/schedule"
	vesting_program "github.com/code-payments/code-vesting/pkg/solana/vesting"
)

// ToAccount converts a contract record into its on-chain account layout
func ToAccount(record *contract.Record) (*vesting_program.VestingContractAccount, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}

	account := &vesting_program.VestingContractAccount{
		Bump:       record.Bump,
		EscrowBump: record.EscrowBump,
		Cursor:     record.Cursor,
	}

	var err error
	if account.Destination, err = decodeKey(record.Destination, "destination"); err != nil {
		return nil, err
	}
	if account.Source, err = decodeKey(record.Source, "source"); err != nil {
		return nil, err
	}
	if account.Mint, err = decodeKey(record.Mint, "mint"); err != nil {
		return nil, err
	}
	if account.Initializer, err = decodeKey(record.Initializer, "initializer"); err != nil {
		return nil, err
	}

	for _, tranche := range record.Schedule.Tranches() {
		account.Schedule = append(account.Schedule, vesting_program.Tranche{
			ReleaseTime: tranche.ReleaseTime,
			Amount:      tranche.Amount,
		})
	}

	return account, nil
}

// FromAccount converts an on-chain account layout into a schedule and cursor
func FromAccount(account *vesting_program.VestingContractAccount) (schedule.Schedule, uint32, error) {
	tranches := make([]schedule.Tranche, len(account.Schedule))
	for i, tranche := range account.Schedule {
		tranches[i] = schedule.Tranche{
			ReleaseTime: tranche.ReleaseTime,
			Amount:      tranche.Amount,
		}
	}

	s, err := schedule.FromTranches(tranches)
	if err != nil {
		return schedule.Schedule{}, 0, err
	}

	if int(account.Cursor) > s.Len() {
		return schedule.Schedule{}, 0, errors.Errorf("cursor %d exceeds %d tranches", account.Cursor, s.Len())
	}

	return s, account.Cursor, nil
}

func decodeKey(value, name string) (ed25519.PublicKey, error) {
	decoded, err := base58.Decode(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s", name)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid %s length", name)
	}
	return decoded, nil
}
