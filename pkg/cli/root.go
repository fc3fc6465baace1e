// Package cli implements the bunnyd command surface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// BuildInfo carries build-time version metadata.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// Execute runs the CLI. Serving is the default when no subcommand is given.
func Execute(info BuildInfo) {
	serveCmd := newServeCommand()

	root := &cobra.Command{
		Use:           "bunnyd",
		Short:         "bunnyd bridges HTTP clients to an AMQP 0-9-1 broker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE,
	}
	root.Flags().AddFlagSet(serveCmd.Flags())
	root.AddCommand(serveCmd, newValidateCommand(), newVersionCommand(info))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
