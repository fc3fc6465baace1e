package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getbunnyd/bunnyd/pkg/config"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a config file without starting the proxy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				settings, err := config.LoadSettings()
				if err != nil {
					return err
				}
				path = settings.ConfigFile
			}

			if _, err := config.LoadFromFile(path); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			cmd.Printf("%s: config OK\n", path)
			return nil
		},
	}
}
