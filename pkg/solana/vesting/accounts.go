package vesting_program

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

type Tranche struct {
	ReleaseTime uint64
	Amount      uint64
}

type VestingContractAccount struct {
	Destination ed25519.PublicKey
	Source      ed25519.PublicKey
	Mint        ed25519.PublicKey
	Initializer ed25519.PublicKey
	Bump        uint8
	EscrowBump  uint8
	Cursor      uint32
	Schedule    []Tranche
}

const (
	VestingContractAccountMinSize = (8 + // discriminator
		32 + // destination
		32 + // source
		32 + // mint
		32 + // initializer
		1 + // bump
		1 + // escrow_bump
		4 + // cursor
		4) // schedule vec prefix

	TrancheSize = (8 + // release_time
		8) // amount
)

var vestingContractAccountDiscriminator = []byte{3, 132, 77, 102, 33, 158, 7, 41}

// VestingContractAccountSize returns the size of an account holding a
// schedule with the provided number of tranches
func VestingContractAccountSize(numTranches int) int {
	return VestingContractAccountMinSize + numTranches*TrancheSize
}

func (obj *VestingContractAccount) Marshal() []byte {
	data := make([]byte, VestingContractAccountSize(len(obj.Schedule)))

	var offset int

	putDiscriminator(data, vestingContractAccountDiscriminator, &offset)
	putKey(data, obj.Destination, &offset)
	putKey(data, obj.Source, &offset)
	putKey(data, obj.Mint, &offset)
	putKey(data, obj.Initializer, &offset)
	putUint8(data, obj.Bump, &offset)
	putUint8(data, obj.EscrowBump, &offset)
	putUint32(data, obj.Cursor, &offset)
	putUint32(data, uint32(len(obj.Schedule)), &offset)
	for _, tranche := range obj.Schedule {
		putUint64(data, tranche.ReleaseTime, &offset)
		putUint64(data, tranche.Amount, &offset)
	}

	return data
}

func (obj *VestingContractAccount) Unmarshal(data []byte) error {
	if len(data) < VestingContractAccountMinSize {
		return ErrInvalidAccountData
	}

	var offset int
	var discriminator []byte

	getDiscriminator(data, &discriminator, &offset)
	if !bytes.Equal(discriminator, vestingContractAccountDiscriminator) {
		return ErrInvalidAccountData
	}

	getKey(data, &obj.Destination, &offset)
	getKey(data, &obj.Source, &offset)
	getKey(data, &obj.Mint, &offset)
	getKey(data, &obj.Initializer, &offset)
	getUint8(data, &obj.Bump, &offset)
	getUint8(data, &obj.EscrowBump, &offset)
	getUint32(data, &obj.Cursor, &offset)

	var numTranches uint32
	getUint32(data, &numTranches, &offset)
	if uint64(len(data)) != uint64(VestingContractAccountMinSize)+uint64(numTranches)*TrancheSize {
		return ErrInvalidAccountData
	}

	obj.Schedule = make([]Tranche, numTranches)
	for i := range obj.Schedule {
		getUint64(data, &obj.Schedule[i].ReleaseTime, &offset)
		getUint64(data, &obj.Schedule[i].Amount, &offset)
	}

	if int(obj.Cursor) > len(obj.Schedule) {
		return ErrInvalidAccountData
	}

	return nil
}

func (obj *VestingContractAccount) ToString() string {
	tranches := make([]string, len(obj.Schedule))
	for i, tranche := range obj.Schedule {
		tranches[i] = fmt.Sprintf("(%d,%d)", tranche.ReleaseTime, tranche.Amount)
	}

	return "VestingContractAccount{" +
		"destination='" + base58.Encode(obj.Destination) + "'" +
		", source='" + base58.Encode(obj.Source) + "'" +
		", mint='" + base58.Encode(obj.Mint) + "'" +
		", initializer='" + base58.Encode(obj.Initializer) + "'" +
		", bump='" + strconv.Itoa(int(obj.Bump)) + "'" +
		", escrow_bump='" + strconv.Itoa(int(obj.EscrowBump)) + "'" +
		", cursor='" + strconv.Itoa(int(obj.Cursor)) + "'" +
		", schedule='[" + strings.Join(tranches, ",") + "]'" +
		"}"
}
