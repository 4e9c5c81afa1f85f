package ledger

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-vesting/pkg/solana"
)

// Authority proves control over a token account. It's either a key that
// signed the enclosing transaction, or a program proving ownership of a
// program derived address by providing its signer seeds.
type Authority struct {
	signer ed25519.PublicKey

	program ed25519.PublicKey
	seeds   [][]byte
}

// SignerAuthority is an authority backed by a verified transaction signature
func SignerAuthority(signer ed25519.PublicKey) Authority {
	return Authority{
		signer: signer,
	}
}

// ProgramAuthority is an authority backed by a program derived address. The
// seeds must include the bump.
func ProgramAuthority(program ed25519.PublicKey, seeds ...[]byte) Authority {
	copied := make([][]byte, len(seeds))
	for i, seed := range seeds {
		copied[i] = append([]byte{}, seed...)
	}

	return Authority{
		program: program,
		seeds:   copied,
	}
}

// Resolve returns the address the authority controls. Program authorities
// are always re-derived from their seeds.
func (a Authority) Resolve() (ed25519.PublicKey, error) {
	if len(a.program) > 0 {
		address, err := solana.CreateProgramAddress(a.program, a.seeds...)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidAuthority, err.Error())
		}
		return address, nil
	}

	if len(a.signer) != ed25519.PublicKeySize {
		return nil, errors.Wrap(ErrInvalidAuthority, "signer is required")
	}
	return a.signer, nil
}

func (a Authority) String() string {
	address, err := a.Resolve()
	if err != nil {
		return "invalid"
	}
	return base58.Encode(address)
}
