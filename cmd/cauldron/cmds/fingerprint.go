package cmds

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewFingerprintCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the cache fingerprint of a craft request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestFromFlags(cmd)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), req.Fingerprint())
			return err
		},
	}
	addRequestFlags(cmd)
	return cmd
}
