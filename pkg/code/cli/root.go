package cli

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	formatText = "text"
	formatJson = "json"
)

// RootOptions holds flags shared by every command
type RootOptions struct {
	Format string
}

// NewRootCommand returns the vesting-cli root command
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "vesting-cli",
		Short: "Inspect token vesting contracts",
		Long:  "Derive vesting contract addresses and inspect contract state served by a vesting server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.Format {
			case formatText, formatJson:
				return nil
			default:
				return errors.Errorf("invalid format %q: must be %s or %s", opts.Format, formatText, formatJson)
			}
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", formatText, "output format (text|json)")

	cmd.AddCommand(NewDeriveCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))

	return cmd
}
