package postgres

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/code-payments/code-vesting/pkg/code/data/tokenaccount"
	pgutil "github.com/code-payments/code-vesting/pkg/database/postgres"
)

const (
	tableName = "vesting__core_tokenaccount"

	allColumns = `id, address, owner, mint, balance, version, created_at, last_updated_at`
)

type model struct {
	Id sql.NullInt64 `db:"id"`

	Address string `db:"address"`
	Owner   string `db:"owner"`
	Mint    string `db:"mint"`

	Balance uint64 `db:"balance"`

	Version uint64 `db:"version"`

	CreatedAt     time.Time `db:"created_at"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
}

func toModel(obj *tokenaccount.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	// Balances are stored in a BIGINT column
	if obj.Balance > math.MaxInt64 {
		return nil, errors.New("balance exceeds max storable value")
	}

	return &model{
		Id: sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},

		Address: obj.Address,
		Owner:   obj.Owner,
		Mint:    obj.Mint,

		Balance: obj.Balance,

		Version: obj.Version,

		CreatedAt:     obj.CreatedAt,
		LastUpdatedAt: obj.LastUpdatedAt,
	}, nil
}

func fromModel(obj *model) *tokenaccount.Record {
	return &tokenaccount.Record{
		Id: uint64(obj.Id.Int64),

		Address: obj.Address,
		Owner:   obj.Owner,
		Mint:    obj.Mint,

		Balance: obj.Balance,

		Version: obj.Version,

		CreatedAt:     obj.CreatedAt,
		LastUpdatedAt: obj.LastUpdatedAt,
	}
}

func (m *model) dbPut(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(address, owner, mint, balance, version, created_at, last_updated_at)
			VALUES ($1, $2, $3, $4, 1, $5, $5)
			RETURNING ` + allColumns

		err := tx.QueryRowxContext(
			ctx,
			query,

			m.Address,
			m.Owner,
			m.Mint,

			m.Balance,

			time.Now().UTC(),
		).StructScan(m)

		return pgutil.CheckUniqueViolation(err, tokenaccount.ErrAccountExists)
	})
}

func (m *model) dbUpdate(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `UPDATE ` + tableName + `
			SET balance = $2, version = version + 1, last_updated_at = $4
			WHERE address = $1 AND version = $3
			RETURNING ` + allColumns

		err := tx.QueryRowxContext(
			ctx,
			query,

			m.Address,
			m.Balance,
			m.Version,

			time.Now().UTC(),
		).StructScan(m)
		if !pgutil.IsNoRows(err) {
			return err
		}

		// Distinguish between a missing record and a version conflict
		var count int
		err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM `+tableName+` WHERE address = $1`, m.Address)
		if err != nil {
			return err
		}
		if count == 0 {
			return tokenaccount.ErrAccountNotFound
		}
		return tokenaccount.ErrStaleVersion
	})
}

func dbGetByAddress(ctx context.Context, db *sqlx.DB, address string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE address = $1
		LIMIT 1`

	err := pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, res, query, address)
	})
	if err != nil {
		return nil, pgutil.CheckNoRows(err, tokenaccount.ErrAccountNotFound)
	}
	return res, nil
}

func dbDelete(ctx context.Context, db *sqlx.DB, address string) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+tableName+` WHERE address = $1`, address)
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return tokenaccount.ErrAccountNotFound
		}
		return nil
	})
}
