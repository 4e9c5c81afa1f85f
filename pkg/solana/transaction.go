package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"sort"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const (
	// MaxTransactionSize taken from: https://github.com/solana-labs/solana/blob/39b3ac6a8d29e14faa1de73d8b46d390ad41797b/sdk/src/packet.rs#L9-L13
	MaxTransactionSize = 1232
)

var (
	ErrSignatureFailure    = errors.New("transaction signature verification failed")
	ErrTransactionTooLarge = errors.New("transaction exceeds max size")
)

type Signature [ed25519.SignatureSize]byte
type Blockhash [sha256.Size]byte

type Header struct {
	NumSignatures     byte
	NumReadonlySigned byte
	NumReadOnly       byte
}

// Message is a legacy transaction message. Versioned messages with address
// lookup tables aren't supported by the vesting program.
type Message struct {
	Header          Header
	Accounts        []ed25519.PublicKey
	RecentBlockhash Blockhash
	Instructions    []CompiledInstruction
}

type Transaction struct {
	Signatures []Signature
	Message    Message
}

func NewTransaction(payer ed25519.PublicKey, instructions ...Instruction) Transaction {
	accounts := []AccountMeta{
		{
			PublicKey:  payer,
			IsSigner:   true,
			IsWritable: true,
			isPayer:    true,
		},
	}

	for _, i := range instructions {
		accounts = append(accounts, AccountMeta{
			PublicKey: i.Program,
			isProgram: true,
		})
		accounts = append(accounts, i.Accounts...)
	}

	// Payer first, then signers, then writable accounts, with programs last
	accounts = filterUnique(accounts)
	sort.Sort(SortableAccountMeta(accounts))

	var m Message
	for _, account := range accounts {
		m.Accounts = append(m.Accounts, account.PublicKey)

		if account.IsSigner {
			m.Header.NumSignatures++

			if !account.IsWritable {
				m.Header.NumReadonlySigned++
			}
		} else if !account.IsWritable {
			m.Header.NumReadOnly++
		}
	}

	// Compiled instructions reference accounts by index
	for _, i := range instructions {
		c := CompiledInstruction{
			ProgramIndex: byte(indexOf(m.Accounts, i.Program)),
			Data:         i.Data,
		}

		for _, a := range i.Accounts {
			c.Accounts = append(c.Accounts, byte(indexOf(m.Accounts, a.PublicKey)))
		}

		m.Instructions = append(m.Instructions, c)
	}

	for i := range m.Accounts {
		if len(m.Accounts[i]) == 0 {
			m.Accounts[i] = make([]byte, ed25519.PublicKeySize)
		}
	}

	return Transaction{
		Signatures: make([]Signature, m.Header.NumSignatures),
		Message:    m,
	}
}

func (t *Transaction) Sign(signers ...ed25519.PrivateKey) error {
	messageBytes := t.Message.Marshal()

	for _, s := range signers {
		pub := s.Public().(ed25519.PublicKey)
		index := indexOf(t.Message.Accounts, pub)
		if index < 0 {
			return errors.Errorf("signing account %s is not in the account list", base58.Encode(pub))
		}
		if index >= len(t.Signatures) {
			return errors.Errorf("signing account %s is not in the list of signers", base58.Encode(pub))
		}

		copy(t.Signatures[index][:], ed25519.Sign(s, messageBytes))
	}

	return nil
}

// VerifySignatures checks that every required signer has provided a valid
// signature over the message, and returns the set of signing accounts.
func (t *Transaction) VerifySignatures() ([]ed25519.PublicKey, error) {
	numSignatures := int(t.Message.Header.NumSignatures)
	if numSignatures == 0 || len(t.Signatures) != numSignatures || len(t.Message.Accounts) < numSignatures {
		return nil, errors.Wrap(ErrSignatureFailure, "invalid signature count")
	}

	messageBytes := t.Message.Marshal()

	signers := make([]ed25519.PublicKey, numSignatures)
	for i := 0; i < numSignatures; i++ {
		signer := t.Message.Accounts[i]
		if !ed25519.Verify(signer, messageBytes, t.Signatures[i][:]) {
			return nil, errors.Wrapf(ErrSignatureFailure, "invalid signature for %s", base58.Encode(signer))
		}
		signers[i] = signer
	}

	return signers, nil
}

// DecompileInstruction resolves the account indices of a compiled instruction
// back into an Instruction with its account metadata.
func (t *Transaction) DecompileInstruction(index int) (Instruction, error) {
	m := t.Message
	if index < 0 || index >= len(m.Instructions) {
		return Instruction{}, errors.Errorf("instruction doesn't exist at %d", index)
	}

	compiled := m.Instructions[index]
	if int(compiled.ProgramIndex) >= len(m.Accounts) {
		return Instruction{}, errors.Errorf("program index out of range: %d", compiled.ProgramIndex)
	}

	instruction := Instruction{
		Program: m.Accounts[compiled.ProgramIndex],
		Data:    compiled.Data,
	}
	for _, accountIndex := range compiled.Accounts {
		if int(accountIndex) >= len(m.Accounts) {
			return Instruction{}, errors.Errorf("account index out of range: %d", accountIndex)
		}

		instruction.Accounts = append(instruction.Accounts, AccountMeta{
			PublicKey:  m.Accounts[accountIndex],
			IsSigner:   m.isSigner(int(accountIndex)),
			IsWritable: m.isWritable(int(accountIndex)),
		})
	}
	return instruction, nil
}

func (m Message) isSigner(index int) bool {
	return index < int(m.Header.NumSignatures)
}

func (m Message) isWritable(index int) bool {
	numSigned := int(m.Header.NumSignatures)
	if index < numSigned {
		return index < numSigned-int(m.Header.NumReadonlySigned)
	}
	return index < len(m.Accounts)-int(m.Header.NumReadOnly)
}

func filterUnique(accounts []AccountMeta) []AccountMeta {
	filtered := make([]AccountMeta, 0, len(accounts))

	for i := range accounts {
		var seen bool
		for j := range filtered {
			// Duplicates merge into the most permissive meta
			if bytes.Equal(accounts[i].PublicKey, filtered[j].PublicKey) {
				filtered[j].IsSigner = filtered[j].IsSigner || accounts[i].IsSigner
				filtered[j].IsWritable = filtered[j].IsWritable || accounts[i].IsWritable
				filtered[j].isPayer = filtered[j].isPayer || accounts[i].isPayer
				seen = true
				break
			}
		}

		if !seen {
			filtered = append(filtered, accounts[i])
		}
	}

	return filtered
}

func indexOf(slice []ed25519.PublicKey, item ed25519.PublicKey) int {
	for i, val := range slice {
		if bytes.Equal(val, item) {
			return i
		}
	}

	return -1
}
