// Package intent turns an instruction into a validated logic plan: a
// heuristic seed, one reasoning completion, and strict validation of what
// the model returns.
package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/semlogic/heuristic"
	"github.com/c360studio/semlogic/llm"
	"github.com/c360studio/semlogic/logic"
	"github.com/c360studio/semlogic/model"
	"github.com/c360studio/semlogic/prompts"
	"github.com/google/uuid"
)

// DefaultTokenBudget is the output budget of the reasoning completion.
const DefaultTokenBudget = 512

// ClarificationRequired is the error value of the clarification envelope a
// model may return instead of steps.
const ClarificationRequired = "clarification_required"

// maxRenameAttempts bounds random suffix draws before a counter is used.
const maxRenameAttempts = 16

// Builder builds logic plans. It is safe for concurrent use when its
// completer is.
type Builder struct {
	completer llm.Completer
	budget    int
	idSuffix  func() string
	logger    *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithTokenBudget sets the reasoning completion budget.
func WithTokenBudget(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.budget = n
		}
	}
}

// WithIDSuffix sets the source of disambiguation suffixes for duplicate
// ids. The default is the first four hex digits of a random UUID.
func WithIDSuffix(fn func() string) Option {
	return func(b *Builder) {
		if fn != nil {
			b.idSuffix = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a Builder that calls completer for reasoning.
func NewBuilder(completer llm.Completer, opts ...Option) *Builder {
	b := &Builder{
		completer: completer,
		budget:    DefaultTokenBudget,
		idSuffix:  func() string { return uuid.NewString()[:4] },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// envelope is the clarification reply a model may send instead of steps.
type envelope struct {
	Error  *string  `json:"error"`
	Fields []string `json:"fields"`
}

// Parse builds a logic plan for the instruction.
//
// A vague phrase found by the heuristic seed yields a one-unit clarification
// plan without calling the model. Otherwise the model output must survive
// extraction, schema validation and plan validation; failures are returned
// as *llm.ParseFailure or *SchemaValidationFailure and no plan is returned.
func (b *Builder) Parse(ctx context.Context, instruction string) (logic.LogicPlan, error) {
	seed := heuristic.Seed(instruction)
	if seed.Clarification {
		b.logger.Debug("Vague phrase found, skipping reasoning",
			"phrase", seed.Units[0].Text,
			"field", seed.Units[0].ClarificationField)
		return seed.Plan(), nil
	}

	seedJSON, err := encodeHint(seed.Plan())
	if err != nil {
		return logic.LogicPlan{}, fmt.Errorf("encode seed: %w", err)
	}

	ctx = llm.WithStage(ctx, model.StageReasoning)
	raw, err := b.completer.Complete(ctx, prompts.Reasoning(instruction, seedJSON), b.budget)
	if err != nil {
		return logic.LogicPlan{}, fmt.Errorf("reasoning completion: %w", err)
	}

	obj, err := llm.Extract(raw)
	if err != nil {
		return logic.LogicPlan{}, err
	}

	if plan, ok, err := clarificationPlan(raw, obj, instruction); ok || err != nil {
		return plan, err
	}

	units, err := logic.DecodeSteps([]byte(obj))
	if err != nil {
		var ve *logic.ValidationError
		if errors.As(err, &ve) {
			return logic.LogicPlan{}, &SchemaValidationFailure{Raw: raw, Violations: ve.Violations}
		}
		return logic.LogicPlan{}, &llm.ParseFailure{Raw: raw, Err: err}
	}
	if len(units) == 0 {
		return logic.LogicPlan{}, schemaFailure(raw, "steps", "must contain at least one unit")
	}

	b.resolveDuplicateIDs(units)

	plan := logic.LogicPlan{Steps: units}
	if err := plan.Validate(); err != nil {
		var ve *logic.ValidationError
		if errors.As(err, &ve) {
			return logic.LogicPlan{}, &SchemaValidationFailure{Raw: raw, Violations: ve.Violations}
		}
		return logic.LogicPlan{}, err
	}

	b.logger.Debug("Built logic plan", "steps", len(plan.Steps))
	return plan, nil
}

// encodeHint renders a plan as compact JSON without HTML escaping, so
// operators reach the model as written.
func encodeHint(plan logic.LogicPlan) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(plan); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// clarificationPlan interprets an error envelope. ok is false when obj is
// not an envelope.
func clarificationPlan(raw, obj, instruction string) (logic.LogicPlan, bool, error) {
	var env envelope
	if err := json.Unmarshal([]byte(obj), &env); err != nil || env.Error == nil {
		return logic.LogicPlan{}, false, nil
	}

	if *env.Error != ClarificationRequired {
		return logic.LogicPlan{}, true, schemaFailure(raw, "error", fmt.Sprintf("unknown error envelope %q", *env.Error))
	}

	var field string
	for _, f := range env.Fields {
		if f = strings.TrimSpace(f); f != "" {
			field = f
			break
		}
	}
	if field == "" {
		return logic.LogicPlan{}, true, schemaFailure(raw, "fields", "clarification envelope names no fields")
	}

	return logic.LogicPlan{Steps: []logic.LogicUnit{{
		ID:                  "S1",
		Role:                logic.RoleNote,
		Text:                strings.TrimSpace(instruction),
		DependsOn:           []string{},
		ClarificationNeeded: true,
		ClarificationField:  field,
	}}}, true, nil
}

// resolveDuplicateIDs renames each repeated id to "<id>_<suffix>". A
// depends_on reference is rewritten to the most recent unit that carried
// the referenced id before the referencing unit.
func (b *Builder) resolveDuplicateIDs(units []logic.LogicUnit) {
	taken := make(map[string]bool, len(units))
	for _, u := range units {
		taken[u.ID] = true
	}

	seen := make(map[string]bool, len(units))
	latest := make(map[string]string, len(units))
	for i := range units {
		u := &units[i]
		for j, dep := range u.DependsOn {
			if id, ok := latest[dep]; ok {
				u.DependsOn[j] = id
			}
		}

		original := u.ID
		if seen[original] {
			u.ID = b.rename(original, taken)
			taken[u.ID] = true
			b.logger.Debug("Renamed duplicate unit id", "id", original, "renamed", u.ID)
		}
		seen[original] = true
		latest[original] = u.ID
	}
}

func (b *Builder) rename(id string, taken map[string]bool) string {
	for range maxRenameAttempts {
		candidate := id + "_" + b.idSuffix()
		if !taken[candidate] {
			return candidate
		}
	}
	for n := 0; ; n++ {
		candidate := fmt.Sprintf("%s_%04x", id, n)
		if !taken[candidate] {
			return candidate
		}
	}
}
