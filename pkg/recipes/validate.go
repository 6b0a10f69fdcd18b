package recipes

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError reports a malformed craft request. It is raised before any
// stream is opened and never reaches the generator or the cache.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks that the request can be fingerprinted and crafted.
func (r Request) Validate() error {
	if len(r.Materials) == 0 {
		return newValidationError("materials", "materials are required")
	}
	for i, m := range r.Materials {
		if strings.TrimSpace(m.Name) == "" {
			return newValidationError(fmt.Sprintf("materials[%d].name", i), "name is required")
		}
		if math.IsNaN(m.Quantity) || math.IsInf(m.Quantity, 0) {
			return newValidationError(fmt.Sprintf("materials[%d].quantity", i), "quantity must be a finite number")
		}
	}
	if strings.TrimSpace(r.Incantation) == "" {
		return newValidationError("incantation", "incantation is required")
	}
	return nil
}
