package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

type RootOptions struct {
	ConfigPath string
	APIURL     string
	Format     string // "json" | "text"
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the syncctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "syncctl",
		Short: "Operate replica reconciliation",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "configs/default.yaml", "path to the service config file")
	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", "", "base url of a running api process")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewPingCommand(opts))
	return cmd
}
