// Package codegen turns pseudocode into Python with at most one repair.
//
// Generation is a three-state machine: Draft issues the code completion and
// checks it; a draft that does not parse moves to Repair, which issues one
// follow-up completion quoting the parser diagnostic; both lead to Terminal.
// Code that still does not parse is returned with Valid set to false rather
// than as an error.
package codegen

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/semlogic/llm"
	"github.com/c360studio/semlogic/logic"
	"github.com/c360studio/semlogic/model"
	"github.com/c360studio/semlogic/prompts"
)

// Language is the target language of generated code.
const Language = "python"

// DefaultTokenBudget is the output budget of each code completion.
const DefaultTokenBudget = 700

type state int

const (
	stateDraft state = iota
	stateRepair
	stateTerminal
)

// Generator generates code blocks.
type Generator struct {
	completer llm.Completer
	checker   SyntaxChecker
	budget    int
	logger    *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithTokenBudget sets the budget of both the draft and repair completions.
func WithTokenBudget(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.budget = n
		}
	}
}

// WithChecker replaces the tree-sitter Python checker.
func WithChecker(c SyntaxChecker) Option {
	return func(g *Generator) {
		g.checker = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// NewGenerator creates a Generator.
func NewGenerator(completer llm.Completer, opts ...Option) *Generator {
	g := &Generator{
		completer: completer,
		checker:   PythonChecker{},
		budget:    DefaultTokenBudget,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces Python for the pseudocode, issuing at most two
// completions. Only completion and checker failures are returned as errors.
func (g *Generator) Generate(ctx context.Context, pseudo logic.PseudocodeBlock) (logic.CodeBlock, error) {
	stubs := StubActions(pseudo.Code)
	block := logic.CodeBlock{Language: Language}

	var diag *SyntaxError
	for st := stateDraft; st != stateTerminal; {
		switch st {
		case stateDraft:
			code, err := g.complete(llm.WithStage(ctx, model.StageCode), prompts.Code(pseudo.Code, stubs))
			if err != nil {
				return logic.CodeBlock{}, fmt.Errorf("code completion: %w", err)
			}
			block.Code = code

			if diag, err = g.checker.Check(ctx, code); err != nil {
				return logic.CodeBlock{}, err
			}
			if diag == nil {
				block.Valid = true
				st = stateTerminal
				continue
			}
			g.logger.Debug("Generated code does not parse, repairing", "error", diag.Error())
			st = stateRepair

		case stateRepair:
			code, err := g.complete(llm.WithStage(ctx, model.StageRepair),
				prompts.CodeRepair(pseudo.Code, block.Code, diag.Error(), stubs))
			if err != nil {
				return logic.CodeBlock{}, fmt.Errorf("code repair completion: %w", err)
			}
			block.Code = code
			block.Repaired = true

			if diag, err = g.checker.Check(ctx, code); err != nil {
				return logic.CodeBlock{}, err
			}
			block.Valid = diag == nil
			if !block.Valid {
				g.logger.Warn("Repaired code still does not parse", "error", diag.Error())
			}
			st = stateTerminal
		}
	}

	return block, nil
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	raw, err := g.completer.Complete(ctx, prompt, g.budget)
	if err != nil {
		return "", err
	}
	return Clean(raw), nil
}
