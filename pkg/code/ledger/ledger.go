package ledger

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"math"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-vesting/pkg/code/data"
	"github.com/code-payments/code-vesting/pkg/code/data/tokenaccount"
	"github.com/code-payments/code-vesting/pkg/metrics"
)

const (
	metricsStructName = "ledger.Ledger"
)

var (
	ErrAccountNotFound      = errors.New("token account not found")
	ErrAccountAlreadyExists = errors.New("token account already exists")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidAuthority     = errors.New("invalid authority for token account")
	ErrMintMismatch         = errors.New("token account mint mismatch")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrBalanceOverflow      = errors.New("balance overflow")
	ErrNonZeroBalance       = errors.New("token account has a non-zero balance")
)

// Ledger holds token balances and moves them between token accounts. Every
// mutation executes within a single transaction, joining the caller's when
// one exists.
type Ledger struct {
	log  *logrus.Entry
	data data.DatabaseData
}

func New(data data.DatabaseData) *Ledger {
	return &Ledger{
		log:  logrus.StandardLogger().WithField("type", "ledger"),
		data: data,
	}
}

// CreateAccount opens an empty token account at address for the owner and mint
func (l *Ledger) CreateAccount(ctx context.Context, address, owner, mint ed25519.PublicKey) (*tokenaccount.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "CreateAccount")
	defer tracer.End()

	record := &tokenaccount.Record{
		Address: base58.Encode(address),
		Owner:   base58.Encode(owner),
		Mint:    base58.Encode(mint),
	}

	err := l.data.CreateTokenAccount(ctx, record)
	if err == tokenaccount.ErrAccountExists {
		return nil, errors.Wrapf(ErrAccountAlreadyExists, "account %s", record.Address)
	} else if err != nil {
		tracer.OnError(err)
		return nil, errors.Wrap(err, "error creating token account")
	}

	l.log.WithFields(logrus.Fields{
		"method":  "CreateAccount",
		"address": record.Address,
		"owner":   record.Owner,
		"mint":    record.Mint,
	}).Debug("token account created")

	return record, nil
}

// MintTo credits newly issued tokens to a token account
func (l *Ledger) MintTo(ctx context.Context, address ed25519.PublicKey, amount uint64) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "MintTo")
	defer tracer.End()

	if amount == 0 {
		return ErrInvalidAmount
	}

	err := l.data.ExecuteInTx(ctx, sql.LevelSerializable, func(ctx context.Context) error {
		account, err := l.getAccount(ctx, address)
		if err != nil {
			return err
		}

		if account.Balance > math.MaxUint64-amount {
			return ErrBalanceOverflow
		}
		account.Balance += amount

		return l.data.UpdateTokenAccount(ctx, account)
	})
	if err != nil {
		tracer.OnError(err)
	}
	return err
}

// Transfer moves amount from one token account to another. The authority
// must resolve to the owner of the source account.
func (l *Ledger) Transfer(ctx context.Context, from, to ed25519.PublicKey, amount uint64, authority Authority) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Transfer")
	defer tracer.End()

	log := l.log.WithFields(logrus.Fields{
		"method":    "Transfer",
		"from":      base58.Encode(from),
		"to":        base58.Encode(to),
		"amount":    amount,
		"authority": authority.String(),
	})

	if amount == 0 {
		return ErrInvalidAmount
	}

	if base58.Encode(from) == base58.Encode(to) {
		return errors.Wrap(ErrInvalidAmount, "source and destination are the same account")
	}

	err := l.data.ExecuteInTx(ctx, sql.LevelSerializable, func(ctx context.Context) error {
		source, err := l.getAccount(ctx, from)
		if err != nil {
			return err
		}

		destination, err := l.getAccount(ctx, to)
		if err != nil {
			return err
		}

		if err := checkAuthority(source, authority); err != nil {
			return err
		}

		if source.Mint != destination.Mint {
			return errors.Wrapf(ErrMintMismatch, "%s != %s", source.Mint, destination.Mint)
		}

		if source.Balance < amount {
			return errors.Wrapf(ErrInsufficientFunds, "balance of %d is less than %d", source.Balance, amount)
		}

		if destination.Balance > math.MaxUint64-amount {
			return ErrBalanceOverflow
		}

		source.Balance -= amount
		destination.Balance += amount

		if err := l.data.UpdateTokenAccount(ctx, source); err != nil {
			return errors.Wrap(err, "error debiting source account")
		}
		if err := l.data.UpdateTokenAccount(ctx, destination); err != nil {
			return errors.Wrap(err, "error crediting destination account")
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Debug("transfer failed")
		tracer.OnError(err)
		return err
	}

	log.Debug("transfer completed")
	return nil
}

// CloseAccount moves any remaining balance to destination and deletes the
// token account
func (l *Ledger) CloseAccount(ctx context.Context, address, destination ed25519.PublicKey, authority Authority) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "CloseAccount")
	defer tracer.End()

	err := l.data.ExecuteInTx(ctx, sql.LevelSerializable, func(ctx context.Context) error {
		account, err := l.getAccount(ctx, address)
		if err != nil {
			return err
		}

		if err := checkAuthority(account, authority); err != nil {
			return err
		}

		if account.Balance > 0 {
			if err := l.Transfer(ctx, address, destination, account.Balance, authority); err != nil {
				return err
			}
		}

		return l.data.DeleteTokenAccount(ctx, account.Address)
	})
	if err != nil {
		tracer.OnError(err)
		return err
	}

	l.log.WithFields(logrus.Fields{
		"method":  "CloseAccount",
		"address": base58.Encode(address),
	}).Debug("token account closed")

	return nil
}

// BalanceOf returns the balance of a token account
func (l *Ledger) BalanceOf(ctx context.Context, address ed25519.PublicKey) (uint64, error) {
	account, err := l.getAccount(ctx, address)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// GetAccount returns the state of a token account
func (l *Ledger) GetAccount(ctx context.Context, address ed25519.PublicKey) (*tokenaccount.Record, error) {
	return l.getAccount(ctx, address)
}

func (l *Ledger) getAccount(ctx context.Context, address ed25519.PublicKey) (*tokenaccount.Record, error) {
	account, err := l.data.GetTokenAccount(ctx, base58.Encode(address))
	if err == tokenaccount.ErrAccountNotFound {
		return nil, errors.Wrapf(ErrAccountNotFound, "account %s", base58.Encode(address))
	} else if err != nil {
		return nil, errors.Wrap(err, "error getting token account")
	}
	return account, nil
}

func checkAuthority(account *tokenaccount.Record, authority Authority) error {
	resolved, err := authority.Resolve()
	if err != nil {
		return err
	}

	if base58.Encode(resolved) != account.Owner {
		return errors.Wrapf(ErrInvalidAuthority, "%s is not the owner of %s", base58.Encode(resolved), account.Address)
	}
	return nil
}
