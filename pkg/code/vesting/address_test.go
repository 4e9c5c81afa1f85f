package vesting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vesting_program "github.com/code-payments/code-vesting/pkg/solana/vesting"
	"github.com/code-payments/code-vesting/pkg/testutil"
)

func TestAddressDeriver_ContractAddressIsCopied(t *testing.T) {
	program := testutil.NewRandomPublicKey(t)
	deriver := newAddressDeriver(program, 16)

	expected, expectedBump, err := vesting_program.GetVestingContractAddress(program, &vesting_program.GetVestingContractAddressArgs{
		Identifier: "copied-address",
	})
	require.NoError(t, err)

	first, err := deriver.contractAddress("copied-address")
	require.NoError(t, err)
	assert.EqualValues(t, expected, first.Address)
	assert.Equal(t, expectedBump, first.Bump)

	// Modifying a returned address doesn't affect the cached one
	first.Address[0] ^= 0xff
	first.Bump++

	for i := 0; i < 2; i++ {
		actual, err := deriver.contractAddress("copied-address")
		require.NoError(t, err)
		assert.EqualValues(t, expected, actual.Address)
		assert.Equal(t, expectedBump, actual.Bump)
	}
	assert.Equal(t, 1, deriver.cache.Len())
}
