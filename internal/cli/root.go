package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

// NewRootCmd builds the cfdpreceiver command tree (spec.md's CLI
// section, grounded on dsmmcken-dh-cli's NewRootCmd shape).
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cfdpreceiver",
		Short:         "CFDP Class-2 receiver entity core",
		Long:          "cfdpreceiver drives a CFDP Class-2 (acknowledged) receiver transaction against a local transport stub, for manual exercising and replay of captured PDU sequences.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pflags := root.PersistentFlags()
	pflags.StringVar(&configPath, "config", "cfdpreceiver.toml", "path to config file (TOML)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newReplayCommand())
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
