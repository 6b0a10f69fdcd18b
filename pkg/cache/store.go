package cache

import (
	"context"

	"github.com/go-go-golems/cauldron/pkg/recipes"
)

// Store maps fingerprints to recipes. Entries are write-once: PutIfAbsent
// never replaces an existing recipe.
type Store interface {
	Get(ctx context.Context, fingerprint string) (*recipes.Recipe, bool, error)
	// PutIfAbsent reports whether recipe was inserted. False means another
	// writer got there first and its entry was kept.
	PutIfAbsent(ctx context.Context, fingerprint string, recipe *recipes.Recipe) (bool, error)
	// List returns stored recipes, newest first.
	List(ctx context.Context) ([]*recipes.Recipe, error)
	Close() error
}
