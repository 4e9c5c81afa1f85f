package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	web "github.com/code-payments/code-vesting/pkg/code/server/web/vesting"
	"github.com/code-payments/code-vesting/pkg/netutil"
)

type inspection struct {
	Contract *web.ContractView     `json:"contract"`
	Escrow   *web.TokenAccountView `json:"escrow"`
}

// NewInspectCommand returns the command fetching a contract and its escrow
// balance from a vesting server
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	var endpoint, identifier string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the state of a vesting contract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := netutil.ValidateHttpUrl(endpoint, false); err != nil {
				return errors.Wrap(err, "invalid endpoint")
			}

			client := web.NewClient(endpoint, timeout)

			contract, err := client.GetContract(identifier)
			if err != nil {
				return err
			}

			escrow, err := client.GetTokenAccount(contract.EscrowAddress)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == formatJson {
				return json.NewEncoder(out).Encode(&inspection{
					Contract: contract,
					Escrow:   escrow,
				})
			}

			fmt.Fprintf(out, "identifier:     %s\n", contract.Identifier)
			fmt.Fprintf(out, "address:        %s\n", contract.Address)
			fmt.Fprintf(out, "state:          %s\n", contract.State)
			fmt.Fprintf(out, "initializer:    %s\n", contract.Initializer)
			fmt.Fprintf(out, "destination:    %s\n", contract.Destination)
			fmt.Fprintf(out, "mint:           %s\n", contract.Mint)
			fmt.Fprintf(out, "escrow:         %s (balance %d)\n", escrow.Address, escrow.Balance)
			fmt.Fprintf(out, "released:       %d/%d tranches, %d of %d remaining\n", contract.Cursor, len(contract.Schedule), contract.Remaining, contract.Total)
			for i, tranche := range contract.Schedule {
				status := "locked"
				if tranche.Released {
					status = "released"
				}
				fmt.Fprintf(out, "  [%d] %s  %d  %s\n", i, time.Unix(int64(tranche.ReleaseTime), 0).UTC().Format(time.RFC3339), tranche.Amount, status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "http://localhost:8080", "vesting server base url")
	cmd.Flags().StringVar(&identifier, "identifier", "", "vesting contract identifier")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	_ = cmd.MarkFlagRequired("identifier")

	return cmd
}
