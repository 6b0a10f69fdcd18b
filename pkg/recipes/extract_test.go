package recipes

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

const frostDraught = `{
  "steps": [
    {"type": "heat", "description": "Heat ramp to 80°C", "temperature": 80},
    {"type": "mix", "description": "Stir {counter}-clockwise"},
    {"type": "transform", "description": "The mixture turns \"blue\""},
    {"type": "byproduct", "description": "Frost flakes settle", "item": "frost_flake", "quantity": 2}
  ],
  "result": {
    "name": "Frost Draught",
    "rarity": 42,
    "effects": ["cold resistance", "clarity"]
  }
}`

func TestExtractPlainDocument(t *testing.T) {
	doc, err := Extract(frostDraught)
	require.NoError(t, err)

	require.Len(t, doc.Steps, 4)
	assert.Equal(t, StepTypeHeat, doc.Steps[0].Type)
	require.NotNil(t, doc.Steps[0].Temperature)
	assert.Equal(t, 80.0, *doc.Steps[0].Temperature)
	assert.Equal(t, "Stir {counter}-clockwise", doc.Steps[1].Description)
	assert.Equal(t, StepTypeByproduct, doc.Steps[3].Type)
	assert.Equal(t, "frost_flake", doc.Steps[3].Item)
	require.NotNil(t, doc.Steps[3].Quantity)
	assert.Equal(t, 2.0, *doc.Steps[3].Quantity)

	assert.Equal(t, "Frost Draught", doc.Outcome.Name)
	assert.Equal(t, 42.0, doc.Outcome.Rarity)
	assert.Equal(t, []string{"cold resistance", "clarity"}, doc.Outcome.Effects)
}

func TestExtractSurroundedByProse(t *testing.T) {
	buffer := "Here is your recipe:\n```json\n" + frostDraught + "\n```\nEnjoy! {not json}"
	doc, err := Extract(buffer)
	require.NoError(t, err)
	assert.Equal(t, "Frost Draught", doc.Outcome.Name)
}

func TestExtractOutcomeAlias(t *testing.T) {
	doc, err := Extract(`{"steps": [], "outcome": {"name": "Murk", "rarity": 3.5, "effects": [], "description": "thick"}}`)
	require.NoError(t, err)
	assert.Equal(t, "Murk", doc.Outcome.Name)
	assert.Equal(t, 3.5, doc.Outcome.Rarity)
	assert.Equal(t, "thick", doc.Outcome.Description)
	assert.Empty(t, doc.Steps)
	assert.NotNil(t, doc.Outcome.Effects)
}

func TestExtractMalformedBlock(t *testing.T) {
	tests := []struct {
		name   string
		buffer string
	}{
		{"empty", ""},
		{"prose only", "The cauldron sputters and nothing happens."},
		{"unbalanced", `{"steps": [ {"type": "mix"}`},
		{"brace in string never closes", `{"steps": "}`},
		{"invalid json", `{steps: [], result: {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Extract(tt.buffer)
			assert.Nil(t, doc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedBlock), "got %v", err)
			assert.False(t, errors.Is(err, ErrSchemaMismatch))
		})
	}
}

func TestExtractSchemaMismatch(t *testing.T) {
	tests := []struct {
		name   string
		buffer string
	}{
		{"missing steps", `{"result": {"name": "A", "rarity": 1, "effects": []}}`},
		{"steps not array", `{"steps": {}, "result": {"name": "A", "rarity": 1, "effects": []}}`},
		{"missing result", `{"steps": []}`},
		{"name not string", `{"steps": [], "result": {"name": 7, "rarity": 1, "effects": []}}`},
		{"rarity not number", `{"steps": [], "result": {"name": "A", "rarity": "rare", "effects": []}}`},
		{"effects not array", `{"steps": [], "result": {"name": "A", "rarity": 1, "effects": "glow"}}`},
		{"unknown step type", `{"steps": [{"type": "freeze", "description": "x"}], "result": {"name": "A", "rarity": 1, "effects": []}}`},
		{"temperature not number", `{"steps": [{"type": "heat", "description": "x", "temperature": "hot"}], "result": {"name": "A", "rarity": 1, "effects": []}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Extract(tt.buffer)
			assert.Nil(t, doc)
			require.Error(t, err)
			var extractionErr *ExtractionError
			require.True(t, errors.As(err, &extractionErr))
			assert.Equal(t, SchemaMismatch, extractionErr.Kind)
			assert.NotEmpty(t, extractionErr.Details)
		})
	}
}

func TestFindBlock(t *testing.T) {
	block, ok := FindBlock(`noise {"a": "}", "b": {"c": "\"{"}} trailing }`)
	require.True(t, ok)
	assert.Equal(t, `{"a": "}", "b": {"c": "\"{"}}`, block)

	_, ok = FindBlock("no braces here")
	assert.False(t, ok)
}

func TestNewRecipeCopiesMaterials(t *testing.T) {
	req := Request{
		Materials:   []Material{{Name: "snow_ash", Quantity: 5, Unit: "g"}},
		Incantation: "Warm Gently",
	}
	doc, err := Extract(frostDraught)
	require.NoError(t, err)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	recipe := NewRecipe(req.Fingerprint(), req, doc, now)
	req.Materials[0].Name = "changed"

	assert.Equal(t, "snow_ash", recipe.Materials[0].Name)
	assert.Equal(t, "Warm Gently", recipe.Incantation)
	assert.Equal(t, now, recipe.CreatedAt)

	c := recipe.Clone()
	c.Steps[0].Description = "changed"
	assert.NotEqual(t, "changed", recipe.Steps[0].Description)
}
