package prompts

import (
	"embed"
	"encoding/json"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/go-go-golems/cauldron/pkg/generator"
	"github.com/go-go-golems/cauldron/pkg/ingredients"
	"github.com/go-go-golems/cauldron/pkg/recipes"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("prompts").
		Funcs(sprig.TxtFuncMap()).
		ParseFS(templateFS, "templates/*.tmpl"),
)

// Render executes one of the embedded templates.
func Render(name string, data interface{}) (string, error) {
	b := &strings.Builder{}
	if err := templates.ExecuteTemplate(b, name, data); err != nil {
		return "", errors.Wrapf(err, "could not render %s prompt", name)
	}
	return strings.TrimSpace(b.String()), nil
}

var (
	documentSchema     string
	documentSchemaErr  error
	documentSchemaOnce sync.Once
)

// DocumentSchema is the JSON schema of recipes.Document, reflected from the Go
// types and shown to the generator.
func DocumentSchema() (string, error) {
	documentSchemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			// expand definitions inline instead of using $refs
			DoNotReference: true,
		}
		schema := reflector.Reflect(&recipes.Document{})
		schema.Version = ""
		b, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			documentSchemaErr = errors.Wrap(err, "could not encode recipe schema")
			return
		}
		documentSchema = string(b)
	})
	return documentSchema, documentSchemaErr
}

type materialLine struct {
	Name       string
	Quantity   float64
	Unit       string
	Ingredient *ingredients.Ingredient
}

// RecipeBuilder turns craft requests into generator prompts. Materials that
// name a catalog ingredient are annotated with its lore and attributes.
type RecipeBuilder struct {
	catalog *ingredients.Catalog
}

func NewRecipeBuilder(catalog *ingredients.Catalog) *RecipeBuilder {
	return &RecipeBuilder{catalog: catalog}
}

func (b *RecipeBuilder) Build(req recipes.Request) (generator.Prompt, error) {
	schema, err := DocumentSchema()
	if err != nil {
		return generator.Prompt{}, err
	}

	stepTypes := make([]string, 0, len(recipes.StepTypes))
	for _, t := range recipes.StepTypes {
		stepTypes = append(stepTypes, string(t))
	}
	system, err := Render("recipe-system", map[string]interface{}{
		"Schema":    schema,
		"StepTypes": stepTypes,
	})
	if err != nil {
		return generator.Prompt{}, err
	}

	lines := make([]materialLine, 0, len(req.Materials))
	for _, m := range req.Materials {
		line := materialLine{Name: m.Name, Quantity: m.Quantity, Unit: m.Unit}
		if b.catalog != nil {
			if ingredient, ok := b.catalog.Get(m.Name); ok {
				line.Ingredient = &ingredient
			}
		}
		lines = append(lines, line)
	}
	user, err := Render("recipe-user", map[string]interface{}{
		"Materials":   lines,
		"Incantation": req.Incantation,
	})
	if err != nil {
		return generator.Prompt{}, err
	}

	return generator.Prompt{System: system, User: user}, nil
}
