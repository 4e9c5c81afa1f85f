package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/code-vesting/pkg/code/data/contract"
	"github.com/code-payments/code-vesting/pkg/database/query"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres-backed contract.Store
func New(db *sql.DB) contract.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Put implements contract.Store.Put
func (s *store) Put(ctx context.Context, record *contract.Record) error {
	model, err := toModel(record)
	if err != nil {
		return err
	}

	if err := model.dbPut(ctx, s.db); err != nil {
		return err
	}

	res, err := fromModel(model)
	if err != nil {
		return err
	}
	res.CopyTo(record)

	return nil
}

// Update implements contract.Store.Update
func (s *store) Update(ctx context.Context, record *contract.Record) error {
	model, err := toModel(record)
	if err != nil {
		return err
	}

	if err := model.dbUpdate(ctx, s.db); err != nil {
		return err
	}

	res, err := fromModel(model)
	if err != nil {
		return err
	}
	res.CopyTo(record)

	return nil
}

// GetByAddress implements contract.Store.GetByAddress
func (s *store) GetByAddress(ctx context.Context, address string) (*contract.Record, error) {
	model, err := dbGetByAddress(ctx, s.db, address)
	if err != nil {
		return nil, err
	}

	return fromModel(model)
}

// GetByIdentifier implements contract.Store.GetByIdentifier
func (s *store) GetByIdentifier(ctx context.Context, identifier string) (*contract.Record, error) {
	model, err := dbGetByIdentifier(ctx, s.db, identifier)
	if err != nil {
		return nil, err
	}

	return fromModel(model)
}

// GetAllByInitializer implements contract.Store.GetAllByInitializer
func (s *store) GetAllByInitializer(ctx context.Context, initializer string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*contract.Record, error) {
	models, err := dbGetAllByInitializer(ctx, s.db, initializer, cursor, limit, direction)
	if err != nil {
		return nil, err
	}

	res := make([]*contract.Record, len(models))
	for i, model := range models {
		res[i], err = fromModel(model)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Delete implements contract.Store.Delete
func (s *store) Delete(ctx context.Context, address string) error {
	return dbDelete(ctx, s.db, address)
}
