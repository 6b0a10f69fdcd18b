package recipes

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed recipe.schema.json
var recipeSchemaJSON []byte

// RecipeSchemaJSON returns the JSON schema extracted documents are validated against.
func RecipeSchemaJSON() []byte {
	return recipeSchemaJSON
}

var (
	compiledSchema     *gojsonschema.Schema
	compiledSchemaErr  error
	compiledSchemaOnce sync.Once
)

func recipeSchema() (*gojsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		compiledSchema, compiledSchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(recipeSchemaJSON))
	})
	return compiledSchema, compiledSchemaErr
}

type ExtractionErrorKind string

const (
	// MalformedBlock means no balanced, parseable {...} block was found.
	MalformedBlock ExtractionErrorKind = "malformed_block"
	// SchemaMismatch means the block parsed but lacks required fields.
	SchemaMismatch ExtractionErrorKind = "schema_mismatch"
)

// ExtractionError is returned when generator output cannot be turned into a
// recipe document.
type ExtractionError struct {
	Kind    ExtractionErrorKind
	Reason  string
	Details []string
}

func (e *ExtractionError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Reason, strings.Join(e.Details, "; "))
}

// Is matches any *ExtractionError of the same kind, so callers can write
// errors.Is(err, recipes.ErrSchemaMismatch).
func (e *ExtractionError) Is(target error) bool {
	t, ok := target.(*ExtractionError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrMalformedBlock = &ExtractionError{Kind: MalformedBlock, Reason: "malformed block"}
	ErrSchemaMismatch = &ExtractionError{Kind: SchemaMismatch, Reason: "schema mismatch"}
)

// FindBlock returns the text from the first '{' in buffer up to its matching
// '}'. Braces inside JSON string literals are ignored.
func FindBlock(buffer string) (string, bool) {
	start := strings.IndexByte(buffer, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(buffer); i++ {
		c := buffer[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return buffer[start : i+1], true
			}
		}
	}
	return "", false
}

// Extract pulls the recipe document out of a complete generator buffer.
// It never panics on bad input, all failures come back as *ExtractionError.
func Extract(buffer string) (*Document, error) {
	block, ok := FindBlock(buffer)
	if !ok {
		return nil, &ExtractionError{Kind: MalformedBlock, Reason: "no balanced {...} block in generator output"}
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, &ExtractionError{Kind: MalformedBlock, Reason: "block is not valid JSON", Details: []string{err.Error()}}
	}

	// the generator is asked for "result" but "outcome" is accepted as well
	if _, ok := raw["result"]; !ok {
		if outcome, ok := raw["outcome"]; ok {
			raw["result"] = outcome
		}
	}
	delete(raw, "outcome")

	schema, err := recipeSchema()
	if err != nil {
		return nil, errors.Wrap(err, "could not compile recipe schema")
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, &ExtractionError{Kind: SchemaMismatch, Reason: "could not validate block", Details: []string{err.Error()}}
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, &ExtractionError{Kind: SchemaMismatch, Reason: "block does not match the recipe schema", Details: details}
	}

	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, &ExtractionError{Kind: SchemaMismatch, Reason: "could not re-encode block", Details: []string{err.Error()}}
	}
	doc := &Document{}
	if err := json.Unmarshal(normalized, doc); err != nil {
		return nil, &ExtractionError{Kind: SchemaMismatch, Reason: "could not decode block", Details: []string{err.Error()}}
	}
	if doc.Steps == nil {
		doc.Steps = []Step{}
	}
	if doc.Outcome.Effects == nil {
		doc.Outcome.Effects = []string{}
	}

	return doc, nil
}
