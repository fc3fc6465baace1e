package cli

import "github.com/spf13/cobra"

func newVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("bunnyd %s (commit %s, built %s)\n", info.Version, info.Commit, info.BuildDate)
		},
	}
}
