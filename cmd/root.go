// Package cmd defines the CLI commands for the audio-gateway executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audio-gateway",
		Short: "An on-the-fly audio transformation gateway.",
		Long: `audio-gateway serves transformed audio over HTTP. Requests name a
source (local file, object-store key, or remote URL) and a set of
processing parameters; the gateway verifies the request signature, runs
the transformation, and caches the resulting artifact.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default none; environment only)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSignCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
