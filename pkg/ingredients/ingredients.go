package ingredients

import (
	"bytes"
	_ "embed"
	"io"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Attributes are scored from 0 to 5.
type Attributes struct {
	Luminescence int `json:"luminescence" yaml:"luminescence"`
	Cooling      int `json:"cooling" yaml:"cooling"`
	Volatility   int `json:"volatility" yaml:"volatility"`
	Viscosity    int `json:"viscosity" yaml:"viscosity"`
	HeatCapacity int `json:"heat_capacity" yaml:"heat_capacity"`
	Toxicity     int `json:"toxicity" yaml:"toxicity"`
}

type Ingredient struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Attributes  Attributes `json:"attributes" yaml:"attributes"`
	Tags        []string   `json:"tags" yaml:"tags"`
	Rarity      int        `json:"rarity" yaml:"rarity"`
	// Color is a CSS color used by the client for theming.
	Color string `json:"color" yaml:"color"`
}

// Catalog is a read-only set of ingredients keyed by id.
type Catalog struct {
	byID  map[string]*Ingredient
	order []string
}

// Load decodes a YAML list of ingredients.
func Load(r io.Reader) (*Catalog, error) {
	var list []*Ingredient
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&list); err != nil {
		return nil, errors.Wrap(err, "could not decode ingredient catalog")
	}

	c := &Catalog{byID: make(map[string]*Ingredient, len(list))}
	for _, ingredient := range list {
		if ingredient.ID == "" {
			return nil, errors.Errorf("ingredient %q has no id", ingredient.Name)
		}
		if _, ok := c.byID[ingredient.ID]; ok {
			return nil, errors.Errorf("duplicate ingredient %s", ingredient.ID)
		}
		if ingredient.Tags == nil {
			ingredient.Tags = []string{}
		}
		c.byID[ingredient.ID] = ingredient
		c.order = append(c.order, ingredient.ID)
	}
	return c, nil
}

// Default returns the catalog shipped with the binary.
func Default() *Catalog {
	c, err := Load(bytes.NewReader(catalogYAML))
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns a copy of the ingredient with the given id.
func (c *Catalog) Get(id string) (Ingredient, bool) {
	ingredient, ok := c.byID[id]
	if !ok {
		return Ingredient{}, false
	}
	return ingredient.copy(), true
}

// List returns all ingredients in catalog order.
func (c *Catalog) List() []Ingredient {
	ret := make([]Ingredient, 0, len(c.order))
	for _, id := range c.order {
		ret = append(ret, c.byID[id].copy())
	}
	return ret
}

// IDs returns the ingredient ids sorted alphabetically.
func (c *Catalog) IDs() []string {
	ret := make([]string, len(c.order))
	copy(ret, c.order)
	sort.Strings(ret)
	return ret
}

func (i *Ingredient) copy() Ingredient {
	ret := *i
	ret.Tags = append([]string{}, i.Tags...)
	return ret
}
