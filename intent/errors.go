package intent

import (
	"errors"
	"strings"

	"github.com/c360studio/semlogic/logic"
)

// SchemaValidationFailure reports model output that parsed as JSON but does
// not describe a valid logic plan. Raw is the unmodified completion text.
type SchemaValidationFailure struct {
	Raw        string
	Violations []logic.Violation
}

func (e *SchemaValidationFailure) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "model output failed schema validation: " + strings.Join(parts, "; ")
}

// Unwrap exposes the violations as a *logic.ValidationError.
func (e *SchemaValidationFailure) Unwrap() error {
	return &logic.ValidationError{Violations: e.Violations}
}

// IsSchemaValidationFailure checks if an error is a SchemaValidationFailure.
func IsSchemaValidationFailure(err error) bool {
	var f *SchemaValidationFailure
	return errors.As(err, &f)
}

func schemaFailure(raw, field, message string) *SchemaValidationFailure {
	return &SchemaValidationFailure{
		Raw:        raw,
		Violations: []logic.Violation{{Field: field, Message: message}},
	}
}
