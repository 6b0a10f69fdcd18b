package cmds

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/cauldron/pkg/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the crafting API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info().Object("settings", a.settings.Redacted()).Msg("Starting server")
			srv := server.New(a.coordinator, a.narrator, a.store, a.catalog,
				server.WithAllowedOrigins(a.settings.AllowedOrigins...),
			)
			return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", a.settings.Port))
		},
	}
}
