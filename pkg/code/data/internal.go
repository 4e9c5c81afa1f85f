package data

import (
	"context"
	"database/sql"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	pg "github.com/code-payments/code-vesting/pkg/database/postgres"
	"github.com/code-payments/code-vesting/pkg/database/query"

	"github.com/code-payments/code-vesting/pkg/code/data/contract"
	"github.com/code-payments/code-vesting/pkg/code/data/tokenaccount"

	contract_memory_client "github.com/code-payments/code-vesting/pkg/code/data/contract/memory"
	tokenaccount_memory_client "github.com/code-payments/code-vesting/pkg/code/data/tokenaccount/memory"

	contract_postgres_client "github.com/code-payments/code-vesting/pkg/code/data/contract/postgres"
	tokenaccount_postgres_client "github.com/code-payments/code-vesting/pkg/code/data/tokenaccount/postgres"
)

type txContextKey struct{}

type DatabaseData interface {
	// Vesting Contracts
	// --------------------------------------------------------------------------------
	CreateVestingContract(ctx context.Context, record *contract.Record) error
	UpdateVestingContract(ctx context.Context, record *contract.Record) error
	GetVestingContractByAddress(ctx context.Context, address string) (*contract.Record, error)
	GetVestingContractByIdentifier(ctx context.Context, identifier string) (*contract.Record, error)
	GetAllVestingContractsByInitializer(ctx context.Context, initializer string, opts ...query.Option) ([]*contract.Record, error)
	DeleteVestingContract(ctx context.Context, address string) error

	// Token Accounts
	// --------------------------------------------------------------------------------
	CreateTokenAccount(ctx context.Context, record *tokenaccount.Record) error
	UpdateTokenAccount(ctx context.Context, record *tokenaccount.Record) error
	GetTokenAccount(ctx context.Context, address string) (*tokenaccount.Record, error)
	DeleteTokenAccount(ctx context.Context, address string) error

	// ExecuteInTx executes fn with a single DB transaction that is scoped to the call.
	// Every store call made with the provided context within fn either commits
	// together or is rolled back together. Nested calls join the enclosing
	// transaction.
	ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error
}

// checkpointer is implemented by in memory stores, which have no native
// transaction support.
type checkpointer interface {
	Checkpoint() func()
}

type DatabaseProvider struct {
	contracts     contract.Store
	tokenAccounts tokenaccount.Store

	// Only set for postgres-backed providers
	db *sqlx.DB

	// Only used for in memory providers
	txMu sync.Mutex
}

func NewDatabaseProvider(ctx context.Context, dbConfig *pg.Config) (DatabaseData, error) {
	db, err := pg.Open(ctx, dbConfig)
	if err != nil {
		return nil, err
	}
	return NewDatabaseProviderFromDB(db), nil
}

func NewDatabaseProviderFromDB(db *sql.DB) DatabaseData {
	return &DatabaseProvider{
		contracts:     contract_postgres_client.New(db),
		tokenAccounts: tokenaccount_postgres_client.New(db),

		db: sqlx.NewDb(db, "pgx"),
	}
}

func NewTestDatabaseProvider() DatabaseData {
	return &DatabaseProvider{
		contracts:     contract_memory_client.New(),
		tokenAccounts: tokenaccount_memory_client.New(),
	}
}

func (dp *DatabaseProvider) ApplySchema(ctx context.Context) error {
	if dp.db == nil {
		return nil
	}

	for _, schema := range []string{
		contract_postgres_client.Schema,
		tokenaccount_postgres_client.Schema,
	} {
		if _, err := dp.db.ExecContext(ctx, schema); err != nil {
			return errors.Wrap(err, "error applying schema")
		}
	}
	return nil
}

func (dp *DatabaseProvider) ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error {
	// Nested calls join the enclosing transaction
	if pg.IsInTx(ctx) || ctx.Value(txContextKey{}) != nil {
		return fn(ctx)
	}

	if dp.db != nil {
		return pg.ExecuteRetryable(func() error {
			return pg.ExecuteTxWithinCtx(ctx, dp.db, isolation, fn)
		})
	}

	// In memory stores are checkpointed and restored if fn fails. Transactions
	// are fully serialized, which trivially satisfies any isolation level.
	dp.txMu.Lock()
	defer dp.txMu.Unlock()

	var restores []func()
	for _, store := range []interface{}{dp.contracts, dp.tokenAccounts} {
		if c, ok := store.(checkpointer); ok {
			restores = append(restores, c.Checkpoint())
		}
	}

	err := fn(context.WithValue(ctx, txContextKey{}, struct{}{}))
	if err != nil {
		for _, restore := range restores {
			restore()
		}
	}
	return err
}

// Vesting Contracts
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) CreateVestingContract(ctx context.Context, record *contract.Record) error {
	return dp.contracts.Put(ctx, record)
}
func (dp *DatabaseProvider) UpdateVestingContract(ctx context.Context, record *contract.Record) error {
	return dp.contracts.Update(ctx, record)
}
func (dp *DatabaseProvider) GetVestingContractByAddress(ctx context.Context, address string) (*contract.Record, error) {
	return dp.contracts.GetByAddress(ctx, address)
}
func (dp *DatabaseProvider) GetVestingContractByIdentifier(ctx context.Context, identifier string) (*contract.Record, error) {
	return dp.contracts.GetByIdentifier(ctx, identifier)
}
func (dp *DatabaseProvider) GetAllVestingContractsByInitializer(ctx context.Context, initializer string, opts ...query.Option) ([]*contract.Record, error) {
	req, err := query.DefaultPaginationHandlerWithLimit(maxContractReqSize, opts...)
	if err != nil {
		return nil, err
	}

	return dp.contracts.GetAllByInitializer(ctx, initializer, req.Cursor, req.Limit, req.SortBy)
}
func (dp *DatabaseProvider) DeleteVestingContract(ctx context.Context, address string) error {
	return dp.contracts.Delete(ctx, address)
}

// Token Accounts
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) CreateTokenAccount(ctx context.Context, record *tokenaccount.Record) error {
	return dp.tokenAccounts.Put(ctx, record)
}
func (dp *DatabaseProvider) UpdateTokenAccount(ctx context.Context, record *tokenaccount.Record) error {
	return dp.tokenAccounts.Update(ctx, record)
}
func (dp *DatabaseProvider) GetTokenAccount(ctx context.Context, address string) (*tokenaccount.Record, error) {
	return dp.tokenAccounts.GetByAddress(ctx, address)
}
func (dp *DatabaseProvider) DeleteTokenAccount(ctx context.Context, address string) error {
	return dp.tokenAccounts.Delete(ctx, address)
}
