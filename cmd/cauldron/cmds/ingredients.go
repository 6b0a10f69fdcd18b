package cmds

import (
	"github.com/go-go-golems/cauldron/pkg/ingredients"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewIngredientsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingredients [id]",
		Short: "Print the ingredient catalog, or one ingredient",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := ingredients.Default()
			if len(args) == 0 {
				return writeYAML(cmd.OutOrStdout(), catalog.List())
			}
			ingredient, ok := catalog.Get(args[0])
			if !ok {
				return errors.Errorf("unknown ingredient %q (known: %v)", args[0], catalog.IDs())
			}
			return writeYAML(cmd.OutOrStdout(), ingredient)
		},
	}
}
