package vesting

import (
	"encoding/base64"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/code-vesting/pkg/code/data/contract"
	"github.com/code-payments/code-vesting/pkg/code/data/tokenaccount"
	"github.com/code-payments/code-vesting/pkg/code/vesting"
	"github.com/code-payments/code-vesting/pkg/database/query"
	"github.com/code-payments/code-vesting/pkg/solana"
)

type SubmitTransactionRequest struct {
	// Base64 encoded wire transaction
	Transaction string `json:"transaction"`
}

func (r *SubmitTransactionRequest) toTransaction() (solana.Transaction, error) {
	var txn solana.Transaction

	if len(r.Transaction) == 0 {
		return txn, errors.New("transaction is required")
	}

	raw, err := base64.StdEncoding.DecodeString(r.Transaction)
	if err != nil {
		return txn, errors.Wrap(err, "transaction isn't valid base64")
	}

	if err := txn.Unmarshal(raw); err != nil {
		return txn, errors.Wrap(err, "invalid transaction")
	}
	return txn, nil
}

type InstructionResultView struct {
	Index      int    `json:"index"`
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
	Released   uint64 `json:"released,omitempty"`
	Contract   string `json:"contract,omitempty"`
}

func toInstructionResultViews(results []*vesting.InstructionResult) []InstructionResultView {
	views := make([]InstructionResultView, len(results))
	for i, result := range results {
		views[i] = InstructionResultView{
			Index:      result.Index,
			Type:       result.Type.String(),
			Identifier: result.Identifier,
			Released:   result.Released,
		}
		if result.Contract != nil {
			views[i].Contract = result.Contract.Address
		}
	}
	return views
}

type TrancheView struct {
	ReleaseTime uint64 `json:"release_time"`
	Amount      uint64 `json:"amount"`
	Released    bool   `json:"released"`
}

type ContractView struct {
	Identifier    string        `json:"identifier"`
	Address       string        `json:"address"`
	EscrowAddress string        `json:"escrow_address"`
	Initializer   string        `json:"initializer"`
	Source        string        `json:"source"`
	Destination   string        `json:"destination"`
	Mint          string        `json:"mint"`
	Schedule      []TrancheView `json:"schedule"`
	Cursor        uint32        `json:"cursor"`
	State         string        `json:"state"`
	Total         uint64        `json:"total"`
	Remaining     uint64        `json:"remaining"`
	CreatedAt     time.Time     `json:"created_at"`

	// Base64 encoded account data in the on-chain layout
	AccountData string `json:"account_data"`
}

func toContractView(record *contract.Record) (*ContractView, error) {
	account, err := vesting.ToAccount(record)
	if err != nil {
		return nil, err
	}

	view := &ContractView{
		Identifier:    record.Identifier,
		Address:       record.Address,
		EscrowAddress: record.EscrowAddress,
		Initializer:   record.Initializer,
		Source:        record.Source,
		Destination:   record.Destination,
		Mint:          record.Mint,
		Cursor:        record.Cursor,
		State:         record.State.String(),
		Total:         record.Schedule.Total(),
		Remaining:     record.Schedule.Remaining(int(record.Cursor)),
		CreatedAt:     record.CreatedAt,
		AccountData:   base64.StdEncoding.EncodeToString(account.Marshal()),
	}

	for i, tranche := range record.Schedule.Tranches() {
		view.Schedule = append(view.Schedule, TrancheView{
			ReleaseTime: tranche.ReleaseTime,
			Amount:      tranche.Amount,
			Released:    i < int(record.Cursor),
		})
	}

	return view, nil
}

type ContractPageView struct {
	Contracts  []*ContractView `json:"contracts"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func toContractPageView(records []*contract.Record, limit uint64) (*ContractPageView, error) {
	page := &ContractPageView{
		Contracts: make([]*ContractView, 0, len(records)),
	}

	for _, record := range records {
		view, err := toContractView(record)
		if err != nil {
			return nil, err
		}
		page.Contracts = append(page.Contracts, view)
	}

	if len(records) > 0 && uint64(len(records)) == limit {
		page.NextCursor = query.ToCursor(records[len(records)-1].Id).ToBase58()
	}

	return page, nil
}

type TokenAccountView struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
	Mint    string `json:"mint"`
	Balance uint64 `json:"balance"`
}

func toTokenAccountView(record *tokenaccount.Record) *TokenAccountView {
	return &TokenAccountView{
		Address: record.Address,
		Owner:   record.Owner,
		Mint:    record.Mint,
		Balance: record.Balance,
	}
}

type DerivedAddressesView struct {
	Identifier      string `json:"identifier"`
	Mint            string `json:"mint"`
	VestingContract string `json:"vesting_contract"`
	ContractBump    uint8  `json:"contract_bump"`
	EscrowAccount   string `json:"escrow_account"`
	EscrowBump      uint8  `json:"escrow_bump"`
}
