package logic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// PlanSchema is the JSON Schema (draft 2020-12) of the reasoning document a
// completion is expected to return. Nullable members mirror what models
// commonly emit for "absent"; they are normalized away by DecodeSteps.
const PlanSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "role", "text"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "role": {"enum": ["condition", "action", "note"]},
          "text": {"type": "string"},
          "depends_on": {
            "anyOf": [
              {"type": "array", "items": {"type": "string"}},
              {"type": "null"}
            ]
          },
          "operator": {"enum": [">", "<", ">=", "<=", "==", "AND", "OR", "", null]},
          "value": {"type": ["string", "number", "null"]},
          "negated": {"type": ["boolean", "null"]},
          "clarification_needed": {"type": ["boolean", "null"]},
          "clarification_field": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

const planSchemaURL = "schema://semlogic/plan.json"

var compiledPlanSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(planSchemaURL, strings.NewReader(PlanSchema)); err != nil {
		return nil, fmt.Errorf("add plan schema: %w", err)
	}
	return compiler.Compile(planSchemaURL)
})

// ValidateDocument checks a decoded JSON document (as produced by
// json.Unmarshal into an any) against PlanSchema. Schema violations are
// returned as a *ValidationError.
func ValidateDocument(doc any) error {
	schema, err := compiledPlanSchema()
	if err != nil {
		return fmt.Errorf("compile plan schema: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &ValidationError{Violations: flattenSchemaError(ve)}
		}
		return err
	}
	return nil
}

// flattenSchemaError collects the leaf causes of a schema error.
func flattenSchemaError(ve *jsonschema.ValidationError) []Violation {
	if len(ve.Causes) == 0 {
		field := ve.InstanceLocation
		if field == "" {
			field = "/"
		}
		return []Violation{{Field: field, Message: ve.Message}}
	}
	var out []Violation
	for _, cause := range ve.Causes {
		out = append(out, flattenSchemaError(cause)...)
	}
	return out
}

// wireUnit is the permissive on-the-wire shape of a logic unit.
type wireUnit struct {
	ID                  string   `json:"id"`
	Role                Role     `json:"role"`
	Text                string   `json:"text"`
	DependsOn           []string `json:"depends_on"`
	Operator            *string  `json:"operator"`
	Value               any      `json:"value"`
	Negated             *bool    `json:"negated"`
	ClarificationNeeded *bool    `json:"clarification_needed"`
	ClarificationField  *string  `json:"clarification_field"`
}

func (w wireUnit) unit() LogicUnit {
	u := LogicUnit{
		ID:        strings.TrimSpace(w.ID),
		Role:      w.Role,
		Text:      strings.TrimSpace(w.Text),
		DependsOn: w.DependsOn,
	}
	if u.DependsOn == nil {
		u.DependsOn = []string{}
	}
	if w.Operator != nil {
		u.Operator = Operator(strings.TrimSpace(*w.Operator))
	}
	switch v := w.Value.(type) {
	case string:
		u.Value = strings.TrimSpace(v)
	case float64:
		u.Value = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if w.Negated != nil {
		u.Negated = *w.Negated
	}
	if w.ClarificationNeeded != nil {
		u.ClarificationNeeded = *w.ClarificationNeeded
	}
	if w.ClarificationField != nil {
		u.ClarificationField = strings.TrimSpace(*w.ClarificationField)
	}
	return u
}

// DecodeSteps validates raw JSON against PlanSchema and decodes its steps.
// The returned units are not checked for plan-level invariants; call
// LogicPlan.Validate for that.
func DecodeSteps(raw []byte) ([]LogicUnit, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode plan document: %w", err)
	}
	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}

	var wire struct {
		Steps []wireUnit `json:"steps"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode plan steps: %w", err)
	}

	units := make([]LogicUnit, len(wire.Steps))
	for i, w := range wire.Steps {
		units[i] = w.unit()
	}
	return units, nil
}
