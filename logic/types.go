// Package logic defines the data model shared by every compiler stage:
// logic units, logic plans, pseudocode and code blocks, and the aggregate
// compiler output. JSON field names are a stable contract for downstream
// consumers such as the eval harness and the dataset generator.
package logic

import "slices"

// Role is the semantic role of a logic unit. The set is closed.
type Role string

const (
	// RoleCondition is a predicate that gates actions.
	RoleCondition Role = "condition"

	// RoleAction is an effect to perform.
	RoleAction Role = "action"

	// RoleNote is an annotation: a loop marker or a clarification request.
	RoleNote Role = "note"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleCondition, RoleAction, RoleNote:
		return true
	}
	return false
}

// Operator is a comparison or logical operator attached to a condition.
// The empty Operator means "absent".
type Operator string

// Operator vocabulary.
const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpAnd          Operator = "AND"
	OpOr           Operator = "OR"
)

// Operators lists the full operator vocabulary in a stable order.
var Operators = []Operator{OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual, OpAnd, OpOr}

// IsValid reports whether o is absent or part of the vocabulary.
func (o Operator) IsValid() bool {
	return o == "" || slices.Contains(Operators, o)
}

// LogicUnit is one atomic semantic step of a plan.
type LogicUnit struct {
	// ID is unique within a plan, e.g. "S1".
	ID string `json:"id" yaml:"id"`

	// Role is condition, action or note.
	Role Role `json:"role" yaml:"role"`

	// Text describes the step; only lightly normalized.
	Text string `json:"text" yaml:"text"`

	// DependsOn lists ids of condition units that appear earlier in the plan.
	DependsOn []string `json:"depends_on" yaml:"depends_on"`

	// Operator is optional.
	Operator Operator `json:"operator,omitempty" yaml:"operator,omitempty"`

	// Value is a literal (numeric or temporal), present only with Operator.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// Negated marks a unit whose text is the logical negation of a clause.
	Negated bool `json:"negated,omitempty" yaml:"negated,omitempty"`

	// ClarificationNeeded marks a unit that names a missing value.
	ClarificationNeeded bool `json:"clarification_needed,omitempty" yaml:"clarification_needed,omitempty"`

	// ClarificationField names the missing value. Set iff ClarificationNeeded.
	ClarificationField string `json:"clarification_field,omitempty" yaml:"clarification_field,omitempty"`
}

// Clone returns a deep copy of the unit.
func (u LogicUnit) Clone() LogicUnit {
	c := u
	if u.DependsOn != nil {
		c.DependsOn = slices.Clone(u.DependsOn)
	}
	return c
}

// LogicPlan is an ordered sequence of logic units. Order declares precedence
// for pseudocode control flow.
type LogicPlan struct {
	Steps []LogicUnit `json:"steps" yaml:"steps"`
}

// Clone returns a deep copy of the plan.
func (p LogicPlan) Clone() LogicPlan {
	steps := make([]LogicUnit, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = s.Clone()
	}
	return LogicPlan{Steps: steps}
}

// Unit returns the unit with the given id.
func (p LogicPlan) Unit(id string) (LogicUnit, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return LogicUnit{}, false
}

// ClarificationFields returns the distinct clarification fields of the plan
// in first-occurrence order. It returns an empty, non-nil slice when none.
func (p LogicPlan) ClarificationFields() []string {
	fields := make([]string, 0)
	for _, s := range p.Steps {
		if s.ClarificationNeeded && s.ClarificationField != "" && !slices.Contains(fields, s.ClarificationField) {
			fields = append(fields, s.ClarificationField)
		}
	}
	return fields
}

// IsClarification reports whether the plan is a single clarification request.
func (p LogicPlan) IsClarification() bool {
	return len(p.Steps) == 1 && p.Steps[0].ClarificationNeeded
}

// PseudocodeLanguage tags pseudocode blocks.
const PseudocodeLanguage = "pseudocode"

// PseudocodeBlock is pseudocode text plus the clarification fields the plan
// is missing. MissingClarifications is nil when the caller did not ask for it.
type PseudocodeBlock struct {
	Language              string    `json:"language" yaml:"language"`
	Code                  string    `json:"code" yaml:"code"`
	MissingClarifications *[]string `json:"missing_clarifications,omitempty" yaml:"missing_clarifications,omitempty"`
}

// Missing returns the missing clarification fields, or nil when omitted.
func (b PseudocodeBlock) Missing() []string {
	if b.MissingClarifications == nil {
		return nil
	}
	return *b.MissingClarifications
}

// CodeBlock is generated code tagged with its target language.
type CodeBlock struct {
	Language string `json:"language" yaml:"language"`
	Code     string `json:"code" yaml:"code"`

	// Valid reports whether Code passed the syntax check.
	Valid bool `json:"valid" yaml:"valid"`

	// Repaired reports whether a repair call was issued.
	Repaired bool `json:"repaired" yaml:"repaired"`
}

// IntentMatch describes the intent template an instruction was matched to.
type IntentMatch struct {
	Normalized   string   `json:"normalized_instruction" yaml:"normalized_instruction"`
	Intent       string   `json:"matched_intent,omitempty" yaml:"matched_intent,omitempty"`
	Similarity   float64  `json:"similarity" yaml:"similarity"`
	MissingSlots []string `json:"missing_slots,omitempty" yaml:"missing_slots,omitempty"`
}

// CompilerOutput aggregates the result of one compile call.
type CompilerOutput struct {
	// CompileID correlates the output with audit records and completion calls.
	CompileID string `json:"compile_id,omitempty" yaml:"compile_id,omitempty"`

	Reasoning  LogicPlan       `json:"reasoning" yaml:"reasoning"`
	Pseudocode PseudocodeBlock `json:"pseudocode" yaml:"pseudocode"`
	Code       *CodeBlock      `json:"code,omitempty" yaml:"code,omitempty"`

	// ClarificationsNeeded is only populated in interactive mode.
	ClarificationsNeeded []string `json:"clarifications_needed,omitempty" yaml:"clarifications_needed,omitempty"`

	// Intent is set when an intent preprocessor is configured.
	Intent *IntentMatch `json:"intent,omitempty" yaml:"intent,omitempty"`
}
