package data

import (
	"context"

	pg "github.com/code-payments/code-vesting/pkg/database/postgres"
)

const (
	maxContractReqSize = 100
)

type Provider interface {
	DatabaseData

	GetDatabaseDataProvider() DatabaseData

	// ApplySchema creates any missing tables. It's a no-op for in memory
	// providers.
	ApplySchema(ctx context.Context) error
}

type provider struct {
	*DatabaseProvider
}

func NewDataProvider(ctx context.Context, dbConfig *pg.Config) (Provider, error) {
	db, err := NewDatabaseProvider(ctx, dbConfig)
	if err != nil {
		return nil, err
	}

	return &provider{
		DatabaseProvider: db.(*DatabaseProvider),
	}, nil
}

func NewTestDataProvider() Provider {
	return &provider{
		DatabaseProvider: NewTestDatabaseProvider().(*DatabaseProvider),
	}
}

func (p *provider) GetDatabaseDataProvider() DatabaseData {
	return p.DatabaseProvider
}
