package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"math"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32

	// MaxSeedLength is the maximum length of a single seed used to derive a
	// program address
	MaxSeedLength = maxSeedLength
)

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")

	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrNoViableBumpSeed = errors.New("unable to find a viable program address bump seed")
	ErrAddressMismatch  = errors.New("program address mismatch")
)

var (
	programHashCtor = sha256.New

	programAddressMarker = []byte("ProgramDerivedAddress")
)

// ProgramAddress is a program derived address along with the bump seed that
// moved it off the ed25519 curve.
type ProgramAddress struct {
	Address ed25519.PublicKey
	Bump    uint8
}

func (a *ProgramAddress) ToBase58() string {
	return base58.Encode(a.Address)
}

// CreateProgramAddress mirrors the implementation of the Solana SDK's CreateProgramAddress.
//
// ProgramAddresses are public keys that _do not_ lie on the ed25519 curve to ensure that
// there is no associated private key. In the event that the program and seed parameters
// result in a valid public key, ErrInvalidPublicKey is returned.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L158
func CreateProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	if len(seeds) > maxSeeds {
		return nil, ErrTooManySeeds
	}

	h := programHashCtor()
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return nil, ErrMaxSeedLengthExceeded
		}

		if _, err := h.Write(s); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	for _, v := range [][]byte{program, programAddressMarker} {
		if _, err := h.Write(v); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	var pub [32]byte
	copy(pub[:], h.Sum(nil))

	// Following the Solana SDK, we _reject_ the generated public key if it's a
	// valid compressed EdwardsPoint. The extended group element is internal to
	// golang.org/x/crypto, so we rely on the jdgcs fork to perform the check.
	//
	// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L182-L187
	var A edwards25519.ExtendedGroupElement
	if A.FromBytes(&pub) {
		return nil, ErrInvalidPublicKey
	}

	return pub[:], nil
}

// FindProgramAddressAndBump mirrors the implementation of the Solana SDK's
// FindProgramAddress. It returns the address and bump seed.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L234
func FindProgramAddressAndBump(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, uint8, error) {
	bumpSeed := []byte{math.MaxUint8}
	withBump := append(append([][]byte{}, seeds...), bumpSeed)

	for i := 0; i < math.MaxUint8; i++ {
		pub, err := CreateProgramAddress(program, withBump...)
		if err == nil {
			return pub, bumpSeed[0], nil
		}
		if err != ErrInvalidPublicKey {
			return nil, 0, err
		}

		bumpSeed[0]--
	}

	return nil, 0, ErrNoViableBumpSeed
}

// FindProgramAddress mirrors the implementation of the Solana SDK's FindProgramAddress.
// It only returns the address.
func FindProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	pub, _, err := FindProgramAddressAndBump(program, seeds...)
	return pub, err
}

// DeriveProgramAddress is FindProgramAddressAndBump returning a ProgramAddress
func DeriveProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (*ProgramAddress, error) {
	pub, bump, err := FindProgramAddressAndBump(program, seeds...)
	if err != nil {
		return nil, err
	}
	return &ProgramAddress{
		Address: pub,
		Bump:    bump,
	}, nil
}

// VerifyProgramAddress recomputes the program address for the provided seeds
// and bump, and checks it against the expected address. Addresses provided by
// an untrusted caller must always go through this check.
func VerifyProgramAddress(program, expected ed25519.PublicKey, bump uint8, seeds ...[]byte) error {
	actual, err := CreateProgramAddress(program, append(append([][]byte{}, seeds...), []byte{bump})...)
	if err != nil {
		return errors.Wrap(ErrAddressMismatch, err.Error())
	}

	if !bytes.Equal(actual, expected) {
		return errors.Wrapf(ErrAddressMismatch, "expected %s, got %s", base58.Encode(actual), base58.Encode(expected))
	}
	return nil
}
