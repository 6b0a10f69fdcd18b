package cmds

import (
	"github.com/go-go-golems/cauldron/pkg/cache"
	"github.com/go-go-golems/cauldron/pkg/craft"
	"github.com/go-go-golems/cauldron/pkg/generator"
	"github.com/go-go-golems/cauldron/pkg/generator/factory"
	"github.com/go-go-golems/cauldron/pkg/ingredients"
	"github.com/go-go-golems/cauldron/pkg/narration"
	"github.com/go-go-golems/cauldron/pkg/prompts"
	"github.com/go-go-golems/cauldron/pkg/settings"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// app holds everything a command needs, built from the merged settings.
type app struct {
	settings    *settings.Settings
	store       cache.Store
	generator   generator.Generator
	catalog     *ingredients.Catalog
	coordinator *craft.Coordinator
	narrator    *narration.Narrator
}

func loadSettings() (*settings.Settings, error) {
	return settings.Load(viper.GetViper())
}

func openStore(s *settings.Settings) (cache.Store, error) {
	return cache.Open(cache.Backend(s.CacheBackend), s.CachePath, s.CacheSize)
}

func newApp() (*app, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	log.Debug().Object("settings", s).Msg("Loaded settings")

	store, err := openStore(s)
	if err != nil {
		return nil, err
	}
	gen, err := factory.NewGenerator(s)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return newAppWith(s, store, gen), nil
}

func newAppWith(s *settings.Settings, store cache.Store, gen generator.Generator) *app {
	catalog := ingredients.Default()
	return &app{
		settings:  s,
		store:     store,
		generator: gen,
		catalog:   catalog,
		coordinator: craft.NewCoordinator(store, gen, prompts.NewRecipeBuilder(catalog),
			craft.WithTimeout(s.GenerationTimeout),
		),
		narrator: narration.NewNarrator(gen,
			narration.WithTimeout(s.GenerationTimeout),
			narration.WithTemperature(s.Temperature),
		),
	}
}

func (a *app) Close() error {
	return a.store.Close()
}
