package cmds

import (
	"io"

	"github.com/go-go-golems/cauldron/pkg/cache"
	"github.com/go-go-golems/cauldron/pkg/recipes"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewRecipesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipes",
		Short: "Inspect the recipe cache",
	}
	cmd.AddCommand(newRecipesListCommand(), newRecipesShowCommand())
	return cmd
}

func withStore(f func(store cache.Store) error) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	if s.CacheBackend == string(cache.BackendMemory) {
		log.Warn().Msg("The memory cache is empty in a fresh process, use --cache-backend sqlite")
	}
	store, err := openStore(s)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()
	return f(store)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "could not encode yaml")
	}
	return enc.Close()
}

func newRecipesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached recipes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store cache.Store) error {
				list, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if list == nil {
					list = []*recipes.Recipe{}
				}
				return writeYAML(cmd.OutOrStdout(), list)
			})
		},
	}
}

func newRecipesShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <fingerprint>",
		Short: "Show one cached recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store cache.Store) error {
				recipe, ok, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return errors.Errorf("no recipe with fingerprint %s", args[0])
				}
				return writeYAML(cmd.OutOrStdout(), recipe)
			})
		},
	}
}
