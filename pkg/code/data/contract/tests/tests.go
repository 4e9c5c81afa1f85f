package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-vesting/pkg/code/data/contract"
	"github.com/code-payments/code-vesting/pkg/code/schedule"
	"github.com/code-payments/code-vesting/pkg/database/query"
)

func RunTests(t *testing.T, s contract.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s contract.Store){
		testHappyPath,
		testUniqueness,
		testStaleUpdate,
		testGetAllByInitializer,
	} {
		tf(t, s)
		teardown()
	}
}

func testHappyPath(t *testing.T, s contract.Store) {
	t.Run("testHappyPath", func(t *testing.T) {
		start := time.Now().Add(-time.Millisecond)

		ctx := context.Background()

		expected := newRecord(t, "identifier", "initializer")

		_, err := s.GetByAddress(ctx, expected.Address)
		assert.Equal(t, contract.ErrContractNotFound, err)

		_, err = s.GetByIdentifier(ctx, expected.Identifier)
		assert.Equal(t, contract.ErrContractNotFound, err)

		assert.Equal(t, contract.ErrContractNotFound, s.Update(ctx, expected.Clone()))
		assert.Equal(t, contract.ErrContractNotFound, s.Delete(ctx, expected.Address))

		require.NoError(t, s.Put(ctx, expected))
		assert.True(t, expected.Id > 0)
		assert.EqualValues(t, 1, expected.Version)
		assert.True(t, expected.CreatedAt.After(start))
		assert.True(t, expected.LastUpdatedAt.After(start))

		actual, err := s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)

		actual, err = s.GetByIdentifier(ctx, expected.Identifier)
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)

		// Only destination, cursor and state are mutable

		previousLastUpdatedTs := expected.LastUpdatedAt

		updated := expected.Clone()
		updated.Destination = "new_destination"
		updated.Cursor = 3
		updated.State = contract.StateFullyVested
		updated.Initializer = "attacker"
		updated.Mint = "attacker_mint"

		time.Sleep(time.Millisecond)
		require.NoError(t, s.Update(ctx, updated))
		assert.EqualValues(t, 2, updated.Version)
		assert.Equal(t, expected.Initializer, updated.Initializer)
		assert.Equal(t, expected.Mint, updated.Mint)
		assert.True(t, updated.LastUpdatedAt.After(previousLastUpdatedTs))

		actual, err = s.GetByIdentifier(ctx, expected.Identifier)
		require.NoError(t, err)
		assertEquivalentRecords(t, updated, actual)
		assert.Equal(t, "new_destination", actual.Destination)
		assert.EqualValues(t, 3, actual.Cursor)
		assert.True(t, actual.IsFullyVested())

		require.NoError(t, s.Delete(ctx, expected.Address))

		_, err = s.GetByAddress(ctx, expected.Address)
		assert.Equal(t, contract.ErrContractNotFound, err)

		_, err = s.GetByIdentifier(ctx, expected.Identifier)
		assert.Equal(t, contract.ErrContractNotFound, err)

		assert.Equal(t, contract.ErrContractNotFound, s.Delete(ctx, expected.Address))
	})
}

func testUniqueness(t *testing.T, s contract.Store) {
	t.Run("testUniqueness", func(t *testing.T) {
		ctx := context.Background()

		record := newRecord(t, "identifier", "initializer")
		require.NoError(t, s.Put(ctx, record))

		sameIdentifier := newRecord(t, "identifier", "initializer")
		sameIdentifier.Address = "other_address"
		sameIdentifier.EscrowAddress = "other_escrow"
		assert.Equal(t, contract.ErrContractExists, s.Put(ctx, sameIdentifier))

		sameAddress := newRecord(t, "other_identifier", "initializer")
		sameAddress.Address = record.Address
		sameAddress.EscrowAddress = "other_escrow"
		assert.Equal(t, contract.ErrContractExists, s.Put(ctx, sameAddress))

		invalid := newRecord(t, "invalid", "initializer")
		invalid.Cursor = 1
		invalid.State = contract.StateFullyVested
		assert.Error(t, s.Put(ctx, invalid))

		invalid = newRecord(t, "", "initializer")
		assert.Error(t, s.Put(ctx, invalid))
	})
}

func testStaleUpdate(t *testing.T, s contract.Store) {
	t.Run("testStaleUpdate", func(t *testing.T) {
		ctx := context.Background()

		record := newRecord(t, "identifier", "initializer")
		require.NoError(t, s.Put(ctx, record))

		// Two writers read the same version of the record
		first := record.Clone()
		second := record.Clone()

		first.Cursor = 1
		require.NoError(t, s.Update(ctx, first))

		second.Cursor = 2
		assert.Equal(t, contract.ErrStaleVersion, s.Update(ctx, second))
		assert.EqualValues(t, 1, second.Version)

		actual, err := s.GetByAddress(ctx, record.Address)
		require.NoError(t, err)
		assert.EqualValues(t, 1, actual.Cursor)
		assert.EqualValues(t, 2, actual.Version)
	})
}

func testGetAllByInitializer(t *testing.T, s contract.Store) {
	t.Run("testGetAllByInitializer", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetAllByInitializer(ctx, "initializer", query.EmptyCursor, 10, query.Ascending)
		assert.Equal(t, contract.ErrContractNotFound, err)

		var expected []*contract.Record
		for i := 0; i < 5; i++ {
			record := newRecord(t, fmt.Sprintf("identifier%d", i), "initializer")
			require.NoError(t, s.Put(ctx, record))
			expected = append(expected, record)

			require.NoError(t, s.Put(ctx, newRecord(t, fmt.Sprintf("other%d", i), "other_initializer")))
		}

		actual, err := s.GetAllByInitializer(ctx, "initializer", query.EmptyCursor, 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 5)
		for i, record := range actual {
			assertEquivalentRecords(t, expected[i], record)
		}

		actual, err = s.GetAllByInitializer(ctx, "initializer", query.EmptyCursor, 2, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assertEquivalentRecords(t, expected[4], actual[0])
		assertEquivalentRecords(t, expected[3], actual[1])

		actual, err = s.GetAllByInitializer(ctx, "initializer", query.ToCursor(expected[1].Id), 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 3)
		assertEquivalentRecords(t, expected[2], actual[0])

		_, err = s.GetAllByInitializer(ctx, "initializer", query.ToCursor(expected[4].Id), 10, query.Ascending)
		assert.Equal(t, contract.ErrContractNotFound, err)
	})
}

func newRecord(t *testing.T, identifier, initializer string) *contract.Record {
	s, err := schedule.New([]uint64{1658813160, 1658813400, 1658814000}, []uint64{100, 120, 130})
	require.NoError(t, err)

	return &contract.Record{
		Identifier: identifier,

		Address: "address_" + identifier,
		Bump:    254,

		EscrowAddress: "escrow_" + identifier,
		EscrowBump:    253,

		Initializer: initializer,
		Source:      "source",
		Destination: "destination",
		Mint:        "mint",

		Schedule: s,
		Cursor:   0,
		State:    contract.StateActive,
	}
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *contract.Record) {
	assert.Equal(t, obj1.Id, obj2.Id)
	assert.Equal(t, obj1.Identifier, obj2.Identifier)
	assert.Equal(t, obj1.Address, obj2.Address)
	assert.Equal(t, obj1.Bump, obj2.Bump)
	assert.Equal(t, obj1.EscrowAddress, obj2.EscrowAddress)
	assert.Equal(t, obj1.EscrowBump, obj2.EscrowBump)
	assert.Equal(t, obj1.Initializer, obj2.Initializer)
	assert.Equal(t, obj1.Source, obj2.Source)
	assert.Equal(t, obj1.Destination, obj2.Destination)
	assert.Equal(t, obj1.Mint, obj2.Mint)
	assert.Equal(t, obj1.Schedule.Tranches(), obj2.Schedule.Tranches())
	assert.Equal(t, obj1.Cursor, obj2.Cursor)
	assert.Equal(t, obj1.State, obj2.State)
	assert.Equal(t, obj1.Version, obj2.Version)
	assert.Equal(t, obj1.CreatedAt.Unix(), obj2.CreatedAt.Unix())
	assert.Equal(t, obj1.LastUpdatedAt.Unix(), obj2.LastUpdatedAt.Unix())
}
