// Package pseudocode renders logic plans as pseudocode through one
// completion call and surfaces the clarifications a plan still needs.
package pseudocode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/semlogic/llm"
	"github.com/c360studio/semlogic/logic"
	"github.com/c360studio/semlogic/model"
	"github.com/c360studio/semlogic/prompts"
)

// DefaultTokenBudget is the output budget of the pseudocode completion.
const DefaultTokenBudget = 500

// Assembler generates pseudocode blocks.
type Assembler struct {
	completer llm.Completer
	budget    int
	logger    *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithTokenBudget sets the pseudocode completion budget.
func WithTokenBudget(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.budget = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		a.logger = logger
	}
}

// NewAssembler creates an Assembler.
func NewAssembler(completer llm.Completer, opts ...Option) *Assembler {
	a := &Assembler{
		completer: completer,
		budget:    DefaultTokenBudget,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate renders plan as pseudocode. MissingClarifications is set only
// when interactive is true; it lists the plan's clarification fields in
// order, without duplicates, and is empty rather than nil when none.
func (a *Assembler) Generate(ctx context.Context, plan logic.LogicPlan, interactive bool) (logic.PseudocodeBlock, error) {
	planJSON, err := encodePlan(plan)
	if err != nil {
		return logic.PseudocodeBlock{}, fmt.Errorf("encode plan: %w", err)
	}

	ctx = llm.WithStage(ctx, model.StagePseudocode)
	raw, err := a.completer.Complete(ctx, prompts.Pseudocode(planJSON), a.budget)
	if err != nil {
		return logic.PseudocodeBlock{}, fmt.Errorf("pseudocode completion: %w", err)
	}

	block := logic.PseudocodeBlock{
		Language: logic.PseudocodeLanguage,
		Code:     llm.StripCodeFences(raw),
	}
	if block.Code == "" {
		a.logger.Warn("Pseudocode completion was empty", "steps", len(plan.Steps))
	}

	if interactive {
		fields := plan.ClarificationFields()
		block.MissingClarifications = &fields
	}

	return block, nil
}

// encodePlan renders the plan as indented JSON in struct field order.
func encodePlan(plan logic.LogicPlan) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(plan); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
