package cli

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	vesting_program "github.com/code-payments/code-vesting/pkg/solana/vesting"
)

type derivedAddresses struct {
	Program         string `json:"program"`
	Identifier      string `json:"identifier"`
	Mint            string `json:"mint"`
	VestingContract string `json:"vesting_contract"`
	ContractBump    uint8  `json:"contract_bump"`
	EscrowAccount   string `json:"escrow_account"`
	EscrowBump      uint8  `json:"escrow_bump"`
}

// NewDeriveCommand returns the command deriving a contract's addresses
// offline
func NewDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	var program, identifier, mint string

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive the vesting contract and escrow addresses for an identifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addresses, err := derive(program, identifier, mint)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == formatJson {
				return json.NewEncoder(out).Encode(addresses)
			}

			fmt.Fprintf(out, "program:          %s\n", addresses.Program)
			fmt.Fprintf(out, "identifier:       %s\n", addresses.Identifier)
			fmt.Fprintf(out, "mint:             %s\n", addresses.Mint)
			fmt.Fprintf(out, "vesting contract: %s (bump %d)\n", addresses.VestingContract, addresses.ContractBump)
			fmt.Fprintf(out, "escrow account:   %s (bump %d)\n", addresses.EscrowAccount, addresses.EscrowBump)
			return nil
		},
	}

	cmd.Flags().StringVar(&program, "program", vesting_program.PROGRAM_ADDRESS_BASE58, "vesting program id")
	cmd.Flags().StringVar(&identifier, "identifier", "", "vesting contract identifier")
	cmd.Flags().StringVar(&mint, "mint", "", "token mint")
	_ = cmd.MarkFlagRequired("identifier")
	_ = cmd.MarkFlagRequired("mint")

	return cmd
}

func derive(program, identifier, mint string) (*derivedAddresses, error) {
	programId, err := decodePublicKey("program", program)
	if err != nil {
		return nil, err
	}

	mintKey, err := decodePublicKey("mint", mint)
	if err != nil {
		return nil, err
	}

	if len(identifier) == 0 || len(identifier) > 32 {
		return nil, errors.New("identifier must be between 1 and 32 bytes")
	}

	contractAddress, contractBump, err := vesting_program.GetVestingContractAddress(programId, &vesting_program.GetVestingContractAddressArgs{
		Identifier: identifier,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error deriving vesting contract address")
	}

	escrowAddress, escrowBump, err := vesting_program.GetEscrowAddress(programId, &vesting_program.GetEscrowAddressArgs{
		Mint:            mintKey,
		VestingContract: contractAddress,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error deriving escrow address")
	}

	return &derivedAddresses{
		Program:         base58.Encode(programId),
		Identifier:      identifier,
		Mint:            base58.Encode(mintKey),
		VestingContract: base58.Encode(contractAddress),
		ContractBump:    contractBump,
		EscrowAccount:   base58.Encode(escrowAddress),
		EscrowBump:      escrowBump,
	}, nil
}

func decodePublicKey(name, value string) (ed25519.PublicKey, error) {
	decoded, err := base58.Decode(value)
	if err != nil || len(decoded) != ed25519.PublicKeySize {
		return nil, errors.Errorf("%s is not a valid public key", name)
	}
	return decoded, nil
}
