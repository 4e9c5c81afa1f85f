package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-vesting/pkg/code/data/tokenaccount"
)

func RunTests(t *testing.T, s tokenaccount.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s tokenaccount.Store){
		testHappyPath,
		testStaleUpdate,
	} {
		tf(t, s)
		teardown()
	}
}

func testHappyPath(t *testing.T, s tokenaccount.Store) {
	t.Run("testHappyPath", func(t *testing.T) {
		start := time.Now().Add(-time.Millisecond)

		ctx := context.Background()

		expected := &tokenaccount.Record{
			Address: "address",
			Owner:   "owner",
			Mint:    "mint",
			Balance: 350,
		}

		_, err := s.GetByAddress(ctx, expected.Address)
		assert.Equal(t, tokenaccount.ErrAccountNotFound, err)

		assert.Equal(t, tokenaccount.ErrAccountNotFound, s.Update(ctx, expected.Clone()))
		assert.Equal(t, tokenaccount.ErrAccountNotFound, s.Delete(ctx, expected.Address))

		require.NoError(t, s.Put(ctx, expected))
		assert.True(t, expected.Id > 0)
		assert.EqualValues(t, 1, expected.Version)
		assert.True(t, expected.CreatedAt.After(start))

		assert.Equal(t, tokenaccount.ErrAccountExists, s.Put(ctx, expected.Clone()))

		actual, err := s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)

		// Only the balance is mutable

		updated := expected.Clone()
		updated.Balance = 0
		updated.Owner = "attacker"
		updated.Mint = "attacker_mint"

		time.Sleep(time.Millisecond)
		require.NoError(t, s.Update(ctx, updated))
		assert.EqualValues(t, 2, updated.Version)
		assert.Equal(t, "owner", updated.Owner)
		assert.Equal(t, "mint", updated.Mint)
		assert.True(t, updated.LastUpdatedAt.After(expected.LastUpdatedAt))

		actual, err = s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assertEquivalentRecords(t, updated, actual)
		assert.EqualValues(t, 0, actual.Balance)

		require.NoError(t, s.Delete(ctx, expected.Address))

		_, err = s.GetByAddress(ctx, expected.Address)
		assert.Equal(t, tokenaccount.ErrAccountNotFound, err)
	})
}

func testStaleUpdate(t *testing.T, s tokenaccount.Store) {
	t.Run("testStaleUpdate", func(t *testing.T) {
		ctx := context.Background()

		record := &tokenaccount.Record{
			Address: "address",
			Owner:   "owner",
			Mint:    "mint",
			Balance: 100,
		}
		require.NoError(t, s.Put(ctx, record))

		first := record.Clone()
		second := record.Clone()

		first.Balance = 50
		require.NoError(t, s.Update(ctx, first))

		second.Balance = 0
		assert.Equal(t, tokenaccount.ErrStaleVersion, s.Update(ctx, second))

		actual, err := s.GetByAddress(ctx, record.Address)
		require.NoError(t, err)
		assert.EqualValues(t, 50, actual.Balance)
		assert.EqualValues(t, 2, actual.Version)
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *tokenaccount.Record) {
	assert.Equal(t, obj1.Id, obj2.Id)
	assert.Equal(t, obj1.Address, obj2.Address)
	assert.Equal(t, obj1.Owner, obj2.Owner)
	assert.Equal(t, obj1.Mint, obj2.Mint)
	assert.Equal(t, obj1.Balance, obj2.Balance)
	assert.Equal(t, obj1.Version, obj2.Version)
	assert.Equal(t, obj1.CreatedAt.Unix(), obj2.CreatedAt.Unix())
	assert.Equal(t, obj1.LastUpdatedAt.Unix(), obj2.LastUpdatedAt.Unix())
}
