package cmds

import (
	"github.com/spf13/cobra"
)

// NewSettingsCommand prints the merged configuration with keys masked.
func NewSettingsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), s.Redacted())
		},
	}
}
