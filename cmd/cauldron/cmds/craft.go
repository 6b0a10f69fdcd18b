package cmds

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/go-go-golems/cauldron/pkg/craft"
	"github.com/go-go-golems/cauldron/pkg/events"
	"github.com/go-go-golems/cauldron/pkg/recipes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const craftTopic = "craft"

// parseMaterial reads name:quantity:unit. The unit may be omitted.
func parseMaterial(s string) (recipes.Material, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return recipes.Material{}, errors.Errorf("material %q is not name:quantity:unit", s)
	}
	quantity, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return recipes.Material{}, errors.Wrapf(err, "material %q has an invalid quantity", s)
	}
	m := recipes.Material{Name: strings.TrimSpace(parts[0]), Quantity: quantity}
	if len(parts) == 3 {
		m.Unit = strings.TrimSpace(parts[2])
	}
	return m, nil
}

func requestFromFlags(cmd *cobra.Command) (recipes.Request, error) {
	materialFlags, err := cmd.Flags().GetStringArray("material")
	if err != nil {
		return recipes.Request{}, err
	}
	incantation, err := cmd.Flags().GetString("incantation")
	if err != nil {
		return recipes.Request{}, err
	}

	req := recipes.Request{Incantation: incantation}
	for _, f := range materialFlags {
		m, err := parseMaterial(f)
		if err != nil {
			return recipes.Request{}, err
		}
		req.Materials = append(req.Materials, m)
	}
	return req, req.Validate()
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("material", "m", nil, "Material as name:quantity:unit (repeatable)")
	cmd.Flags().StringP("incantation", "i", "", "Incantation spoken over the cauldron")
}

func NewCraftCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "craft",
		Short: "Craft a recipe and stream the generation to the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestFromFlags(cmd)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			res, err := runCraft(cmd.Context(), a.coordinator, req, cmd.OutOrStdout(), viper.GetBool("verbose"))
			if err != nil {
				return err
			}
			if res.Err != nil {
				return errors.Wrap(res.Err, "craft failed")
			}
			return nil
		},
	}
	addRequestFlags(cmd)
	return cmd
}

// runCraft crafts req through an event router whose printer handler writes
// to w. Publishing blocks until the printer acked, so w is complete once
// runCraft returns.
func runCraft(
	ctx context.Context,
	coordinator *craft.Coordinator,
	req recipes.Request,
	w io.Writer,
	verbose bool,
) (*craft.Result, error) {
	router, err := events.NewEventRouter(events.WithVerbose(verbose))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = router.Close()
	}()
	router.AddHandler("printer", craftTopic, events.PrinterFunc("", w))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var res *craft.Result
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		select {
		case <-router.Running():
		case <-ctx.Done():
			return ctx.Err()
		}
		var err error
		res, err = coordinator.Craft(ctx, req, router.NewSink(craftTopic, uuid.NewString()))
		return err
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return res, err
	}
	if res == nil {
		return nil, errors.New("craft was cancelled")
	}
	log.Info().Object("craft", res).Msg("Craft finished")
	return res, nil
}
