package recipes

import (
	"time"

	"github.com/huandu/go-clone"
	"github.com/rs/zerolog"
)

// Material is one entry of a craft request, e.g. 10ml of cobalt_echo.
type Material struct {
	Name     string  `json:"name" yaml:"name"`
	Quantity float64 `json:"quantity" yaml:"quantity"`
	Unit     string  `json:"unit" yaml:"unit"`
}

// Request is what a player submits to the cauldron. Materials are kept in
// submission order, the fingerprint treats them as a multiset.
type Request struct {
	Materials   []Material `json:"materials" yaml:"materials"`
	Incantation string     `json:"incantation" yaml:"incantation"`
}

func (r Request) MarshalZerologObject(e *zerolog.Event) {
	e.Int("materials", len(r.Materials))
	e.Str("incantation", r.Incantation)
}

type StepType string

const (
	StepTypeHeat      StepType = "heat"
	StepTypeMix       StepType = "mix"
	StepTypeTransform StepType = "transform"
	StepTypeByproduct StepType = "byproduct"
)

// StepTypes lists the known step variants in a stable order.
var StepTypes = []StepType{StepTypeHeat, StepTypeMix, StepTypeTransform, StepTypeByproduct}

func (t StepType) IsValid() bool {
	for _, t_ := range StepTypes {
		if t == t_ {
			return true
		}
	}
	return false
}

// Step is a single reaction step. Which optional fields are set depends on
// Type: heat carries Temperature, byproduct carries Item and Quantity.
type Step struct {
	Type        StepType `json:"type" yaml:"type" jsonschema:"enum=heat,enum=mix,enum=transform,enum=byproduct"`
	Description string   `json:"description" yaml:"description"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" jsonschema:"description=degrees Celsius (heat steps only)"`
	Item        string   `json:"item,omitempty" yaml:"item,omitempty" jsonschema:"description=by-product item (byproduct steps only)"`
	Quantity    *float64 `json:"quantity,omitempty" yaml:"quantity,omitempty" jsonschema:"description=by-product quantity (byproduct steps only)"`
}

// Outcome is the potion a recipe produces.
type Outcome struct {
	Name        string   `json:"name" yaml:"name"`
	Rarity      float64  `json:"rarity" yaml:"rarity" jsonschema:"minimum=1,maximum=100"`
	Effects     []string `json:"effects" yaml:"effects"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	ImageURL    string   `json:"image_url,omitempty" yaml:"image_url,omitempty"`
}

// Document is the structured part of a generator response, before it is bound
// to the request that produced it.
type Document struct {
	Steps   []Step  `json:"steps" yaml:"steps"`
	Outcome Outcome `json:"result" yaml:"result"`
}

// Recipe is a cached craft result. Once stored it is never updated.
type Recipe struct {
	Hash        string     `json:"hash" yaml:"hash"`
	Materials   []Material `json:"materials" yaml:"materials"`
	Incantation string     `json:"incantation" yaml:"incantation"`
	Steps       []Step     `json:"steps" yaml:"steps"`
	Outcome     Outcome    `json:"result" yaml:"result"`
	CreatedAt   time.Time  `json:"timestamp" yaml:"timestamp"`
}

// NewRecipe binds an extracted document to the request it was generated for.
func NewRecipe(fingerprint string, req Request, doc *Document, createdAt time.Time) *Recipe {
	materials := make([]Material, len(req.Materials))
	copy(materials, req.Materials)
	return &Recipe{
		Hash:        fingerprint,
		Materials:   materials,
		Incantation: req.Incantation,
		Steps:       doc.Steps,
		Outcome:     doc.Outcome,
		CreatedAt:   createdAt.UTC(),
	}
}

func (r *Recipe) Clone() *Recipe {
	if r == nil {
		return nil
	}
	return clone.Clone(r).(*Recipe)
}

func (r *Recipe) MarshalZerologObject(e *zerolog.Event) {
	e.Str("hash", r.Hash)
	e.Str("potion", r.Outcome.Name)
	e.Float64("rarity", r.Outcome.Rarity)
	e.Int("steps", len(r.Steps))
}
