package logic

import (
	"fmt"
	"strings"
)

// Violation is a single invariant breach found while validating a plan.
type Violation struct {
	// UnitID is the offending unit, or empty for plan-level violations.
	UnitID string `json:"unit_id,omitempty"`

	// Field is the offending field name, using JSON names.
	Field string `json:"field"`

	// Message describes the breach.
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.UnitID == "" {
		return fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return fmt.Sprintf("%s.%s: %s", v.UnitID, v.Field, v.Message)
}

// ValidationError lists every violation found in a plan.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "invalid logic plan: " + strings.Join(parts, "; ")
}

// Validate checks the unit-local invariants: role, operator, value and
// clarification pairing. Dependency references are checked by
// LogicPlan.Validate, which knows the surrounding plan.
func (u LogicUnit) Validate() []Violation {
	var out []Violation
	add := func(field, format string, args ...any) {
		out = append(out, Violation{UnitID: u.ID, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(u.ID) == "" {
		add("id", "must not be empty")
	}
	if !u.Role.IsValid() {
		add("role", "unknown role %q", u.Role)
	}
	if !u.Operator.IsValid() {
		add("operator", "unknown operator %q", u.Operator)
	}
	if u.Value != "" && u.Operator == "" {
		add("value", "value %q set without an operator", u.Value)
	}
	if u.ClarificationNeeded && u.ClarificationField == "" {
		add("clarification_field", "required when clarification_needed is true")
	}
	if !u.ClarificationNeeded && u.ClarificationField != "" {
		add("clarification_field", "set while clarification_needed is false")
	}
	return out
}

// Validate checks every plan invariant and returns a *ValidationError listing
// all violations, or nil when the plan is valid.
//
// Every depends_on id must name a condition unit that appears earlier in the
// plan. Forward, self, note, action and dangling references are rejected.
func (p LogicPlan) Validate() error {
	var violations []Violation

	seen := make(map[string]Role, len(p.Steps))
	for _, u := range p.Steps {
		violations = append(violations, u.Validate()...)

		if _, dup := seen[u.ID]; dup {
			violations = append(violations, Violation{UnitID: u.ID, Field: "id", Message: "duplicate id"})
		}

		for _, dep := range u.DependsOn {
			role, ok := seen[dep]
			switch {
			case dep == u.ID:
				violations = append(violations, Violation{UnitID: u.ID, Field: "depends_on", Message: "unit depends on itself"})
			case !ok:
				if p.contains(dep) {
					violations = append(violations, Violation{UnitID: u.ID, Field: "depends_on", Message: fmt.Sprintf("forward reference to %q", dep)})
				} else {
					violations = append(violations, Violation{UnitID: u.ID, Field: "depends_on", Message: fmt.Sprintf("unknown id %q", dep)})
				}
			case role != RoleCondition:
				violations = append(violations, Violation{UnitID: u.ID, Field: "depends_on", Message: fmt.Sprintf("%q is a %s, not a condition", dep, role)})
			}
		}

		if _, dup := seen[u.ID]; !dup {
			seen[u.ID] = u.Role
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func (p LogicPlan) contains(id string) bool {
	_, ok := p.Unit(id)
	return ok
}
