package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/code-payments/code-vesting/pkg/code/data/contract"
	"github.com/code-payments/code-vesting/pkg/code/schedule"
	pgutil "github.com/code-payments/code-vesting/pkg/database/postgres"
	q "github.com/code-payments/code-vesting/pkg/database/query"
)

const (
	tableName = "vesting__core_contract"

	allColumns = `id, identifier, address, bump, escrow_address, escrow_bump, initializer, source, destination, mint, schedule, release_cursor, state, version, created_at, last_updated_at`
)

type model struct {
	Id sql.NullInt64 `db:"id"`

	Identifier string `db:"identifier"`

	Address string `db:"address"`
	Bump    uint   `db:"bump"`

	EscrowAddress string `db:"escrow_address"`
	EscrowBump    uint   `db:"escrow_bump"`

	Initializer string `db:"initializer"`
	Source      string `db:"source"`
	Destination string `db:"destination"`
	Mint        string `db:"mint"`

	Schedule string `db:"schedule"`
	Cursor   uint   `db:"release_cursor"`
	State    uint   `db:"state"`

	Version uint64 `db:"version"`

	CreatedAt     time.Time `db:"created_at"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
}

// Stored as a JSON array of [release_time, amount] pairs
type scheduleModel [][2]uint64

func toModel(obj *contract.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	tranches := obj.Schedule.Tranches()
	encoded := make(scheduleModel, len(tranches))
	for i, tranche := range tranches {
		encoded[i] = [2]uint64{tranche.ReleaseTime, tranche.Amount}
	}

	marshalled, err := json.Marshal(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "error marshalling schedule")
	}

	return &model{
		Id: sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},

		Identifier: obj.Identifier,

		Address: obj.Address,
		Bump:    uint(obj.Bump),

		EscrowAddress: obj.EscrowAddress,
		EscrowBump:    uint(obj.EscrowBump),

		Initializer: obj.Initializer,
		Source:      obj.Source,
		Destination: obj.Destination,
		Mint:        obj.Mint,

		Schedule: string(marshalled),
		Cursor:   uint(obj.Cursor),
		State:    uint(obj.State),

		Version: obj.Version,

		CreatedAt:     obj.CreatedAt,
		LastUpdatedAt: obj.LastUpdatedAt,
	}, nil
}

func fromModel(obj *model) (*contract.Record, error) {
	var encoded scheduleModel
	if err := json.Unmarshal([]byte(obj.Schedule), &encoded); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling schedule")
	}

	tranches := make([]schedule.Tranche, len(encoded))
	for i, pair := range encoded {
		tranches[i] = schedule.Tranche{
			ReleaseTime: pair[0],
			Amount:      pair[1],
		}
	}

	s, err := schedule.FromTranches(tranches)
	if err != nil {
		return nil, errors.Wrap(err, "stored schedule is invalid")
	}

	return &contract.Record{
		Id: uint64(obj.Id.Int64),

		Identifier: obj.Identifier,

		Address: obj.Address,
		Bump:    uint8(obj.Bump),

		EscrowAddress: obj.EscrowAddress,
		EscrowBump:    uint8(obj.EscrowBump),

		Initializer: obj.Initializer,
		Source:      obj.Source,
		Destination: obj.Destination,
		Mint:        obj.Mint,

		Schedule: s,
		Cursor:   uint32(obj.Cursor),
		State:    contract.State(obj.State),

		Version: obj.Version,

		CreatedAt:     obj.CreatedAt,
		LastUpdatedAt: obj.LastUpdatedAt,
	}, nil
}

func (m *model) dbPut(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(identifier, address, bump, escrow_address, escrow_bump, initializer, source, destination, mint, schedule, release_cursor, state, version, created_at, last_updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $13)
			RETURNING ` + allColumns

		now := time.Now().UTC()

		err := tx.QueryRowxContext(
			ctx,
			query,

			m.Identifier,

			m.Address,
			m.Bump,

			m.EscrowAddress,
			m.EscrowBump,

			m.Initializer,
			m.Source,
			m.Destination,
			m.Mint,

			m.Schedule,
			m.Cursor,
			m.State,

			now,
		).StructScan(m)

		return pgutil.CheckUniqueViolation(err, contract.ErrContractExists)
	})
}

func (m *model) dbUpdate(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `UPDATE ` + tableName + `
			SET destination = $2, release_cursor = $3, state = $4, version = version + 1, last_updated_at = $6
			WHERE address = $1 AND version = $5
			RETURNING ` + allColumns

		err := tx.QueryRowxContext(
			ctx,
			query,

			m.Address,
			m.Destination,
			m.Cursor,
			m.State,
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
			return contract.ErrContractNotFound
		}
		return contract.ErrStaleVersion
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
		return nil, pgutil.CheckNoRows(err, contract.ErrContractNotFound)
	}
	return res, nil
}

func dbGetByIdentifier(ctx context.Context, db *sqlx.DB, identifier string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE identifier = $1
		LIMIT 1`

	err := pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, res, query, identifier)
	})
	if err != nil {
		return nil, pgutil.CheckNoRows(err, contract.ErrContractNotFound)
	}
	return res, nil
}

func dbGetAllByInitializer(ctx context.Context, db *sqlx.DB, initializer string, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*model, error) {
	res := []*model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE (initializer = $1)`

	opts := []interface{}{initializer}
	query, opts = q.PaginateQuery(query, opts, cursor, limit, direction)

	err := pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &res, query, opts...)
	})
	if err != nil {
		return nil, pgutil.CheckNoRows(err, contract.ErrContractNotFound)
	}

	if len(res) == 0 {
		return nil, contract.ErrContractNotFound
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
			return contract.ErrContractNotFound
		}
		return nil
	})
}
