package solana

import (
	"bytes"
	"crypto/ed25519"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransaction_SignAndVerify(t *testing.T) {
	_, payer, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, owner, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	program, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	target, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	payerPub := payer.Public().(ed25519.PublicKey)
	ownerPub := owner.Public().(ed25519.PublicKey)

	tx := NewTransaction(
		payerPub,
		NewInstruction(
			program,
			[]byte{1, 2, 3},
			NewReadonlyAccountMeta(ownerPub, true),
			NewAccountMeta(target, false),
		),
	)

	assert.EqualValues(t, 2, tx.Message.Header.NumSignatures)
	assert.EqualValues(t, 1, tx.Message.Header.NumReadonlySigned)
	assert.EqualValues(t, 1, tx.Message.Header.NumReadOnly)
	assert.Equal(t, payerPub, tx.Message.Accounts[0])

	_, err = tx.VerifySignatures()
	assert.True(t, errors.Is(err, ErrSignatureFailure))

	require.NoError(t, tx.Sign(payer, owner))

	signers, err := tx.VerifySignatures()
	require.NoError(t, err)
	require.Len(t, signers, 2)
	assert.Equal(t, payerPub, signers[0])
	assert.Equal(t, ownerPub, signers[1])

	var decoded Transaction
	require.NoError(t, decoded.Unmarshal(tx.Marshal()))
	assert.Equal(t, tx.Marshal(), decoded.Marshal())

	signers, err = decoded.VerifySignatures()
	require.NoError(t, err)
	assert.Len(t, signers, 2)

	instruction, err := decoded.DecompileInstruction(0)
	require.NoError(t, err)
	assert.Equal(t, program, instruction.Program)
	assert.Equal(t, []byte{1, 2, 3}, instruction.Data)
	require.Len(t, instruction.Accounts, 2)
	assert.Equal(t, ownerPub, instruction.Accounts[0].PublicKey)
	assert.True(t, instruction.Accounts[0].IsSigner)
	assert.False(t, instruction.Accounts[0].IsWritable)
	assert.Equal(t, target, instruction.Accounts[1].PublicKey)
	assert.False(t, instruction.Accounts[1].IsSigner)
	assert.True(t, instruction.Accounts[1].IsWritable)

	_, err = decoded.DecompileInstruction(1)
	assert.Error(t, err)
}

func TestTransaction_TamperedMessage(t *testing.T) {
	_, payer, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	program, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	tx := NewTransaction(payer.Public().(ed25519.PublicKey), NewInstruction(program, []byte{7}))
	require.NoError(t, tx.Sign(payer))

	tx.Message.Instructions[0].Data = []byte{8}
	_, err = tx.VerifySignatures()
	assert.True(t, errors.Is(err, ErrSignatureFailure))
}

func TestTransaction_SignUnknownAccount(t *testing.T) {
	_, payer, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, stranger, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	program, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	tx := NewTransaction(payer.Public().(ed25519.PublicKey), NewInstruction(program, nil))
	assert.Error(t, tx.Sign(stranger))
}

func TestTransaction_UnmarshalTooLarge(t *testing.T) {
	var tx Transaction
	assert.Equal(t, ErrTransactionTooLarge, tx.Unmarshal(make([]byte, MaxTransactionSize+1)))
}

func TestCompactLength(t *testing.T) {
	for _, l := range []int{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, math.MaxUint16} {
		buf := &bytes.Buffer{}
		require.NoError(t, encodeLen(buf, l))

		actual, err := decodeLen(buf)
		require.NoError(t, err)
		assert.Equal(t, l, actual)
	}

	assert.Error(t, encodeLen(&bytes.Buffer{}, math.MaxUint16+1))

	_, err := decodeLen(bytes.NewBuffer([]byte{0x80, 0x80, 0x80, 0x01}))
	assert.Error(t, err)
}
