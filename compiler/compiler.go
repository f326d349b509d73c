// Package compiler runs the full instruction pipeline: logic plan,
// pseudocode and, on request, Python code.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semlogic/codegen"
	"github.com/c360studio/semlogic/intent"
	"github.com/c360studio/semlogic/llm"
	"github.com/c360studio/semlogic/logic"
	"github.com/c360studio/semlogic/pseudocode"
	"github.com/google/uuid"
)

// Preprocessor matches an instruction to an intent template before parsing.
type Preprocessor interface {
	Normalize(ctx context.Context, instruction string) (logic.IntentMatch, error)
}

// Observer receives compile outcomes, e.g. for metrics.
type Observer interface {
	CompileFinished(outcome string, duration time.Duration)
	CodeGenerated(block logic.CodeBlock)
}

// Auditor persists one record per compile.
type Auditor interface {
	RecordCompile(ctx context.Context, rec *Record) error
}

// Record is the audit record of one compile.
type Record struct {
	ID          string
	Instruction string
	ToCode      bool
	Interactive bool
	Outcome     string
	Output      *logic.CompilerOutput
	Error       string
	Raw         string
	StartedAt   time.Time
	Duration    time.Duration
}

// Compiler compiles instructions. It is safe for concurrent use when its
// completer is.
type Compiler struct {
	builder      *intent.Builder
	assembler    *pseudocode.Assembler
	generator    *codegen.Generator
	preprocessor Preprocessor
	observer     Observer
	auditor      Auditor
	logger       *slog.Logger
	newID        func() string
}

type settings struct {
	budgets      Budgets
	checker      codegen.SyntaxChecker
	idSuffix     func() string
	preprocessor Preprocessor
	observer     Observer
	auditor      Auditor
	logger       *slog.Logger
	newID        func() string
}

// Budgets are the output token budgets of the completion stages. Zero
// values keep the stage defaults.
type Budgets struct {
	Reasoning  int
	Pseudocode int
	Code       int
}

// Option configures a Compiler.
type Option func(*settings)

// WithBudgets sets the stage token budgets.
func WithBudgets(b Budgets) Option {
	return func(s *settings) {
		s.budgets = b
	}
}

// WithChecker replaces the Python syntax checker.
func WithChecker(c codegen.SyntaxChecker) Option {
	return func(s *settings) {
		s.checker = c
	}
}

// WithIDSuffix sets the duplicate-id disambiguator of the plan builder.
func WithIDSuffix(fn func() string) Option {
	return func(s *settings) {
		s.idSuffix = fn
	}
}

// WithPreprocessor matches instructions against intent templates first.
func WithPreprocessor(p Preprocessor) Option {
	return func(s *settings) {
		s.preprocessor = p
	}
}

// WithObserver reports outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		s.observer = o
	}
}

// WithAuditor records every compile.
func WithAuditor(a Auditor) Option {
	return func(s *settings) {
		s.auditor = a
	}
}

// WithLogger sets the logger for the compiler and its stages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithCompileIDs sets the compile id source. The default is a random UUID.
func WithCompileIDs(fn func() string) Option {
	return func(s *settings) {
		s.newID = fn
	}
}

// New creates a Compiler that sends every stage through completer.
func New(completer llm.Completer, opts ...Option) *Compiler {
	s := settings{
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&s)
	}

	builderOpts := []intent.Option{intent.WithLogger(s.logger), intent.WithTokenBudget(s.budgets.Reasoning)}
	if s.idSuffix != nil {
		builderOpts = append(builderOpts, intent.WithIDSuffix(s.idSuffix))
	}
	generatorOpts := []codegen.Option{codegen.WithLogger(s.logger), codegen.WithTokenBudget(s.budgets.Code)}
	if s.checker != nil {
		generatorOpts = append(generatorOpts, codegen.WithChecker(s.checker))
	}

	return &Compiler{
		builder:      intent.NewBuilder(completer, builderOpts...),
		assembler:    pseudocode.NewAssembler(completer, pseudocode.WithLogger(s.logger), pseudocode.WithTokenBudget(s.budgets.Pseudocode)),
		generator:    codegen.NewGenerator(completer, generatorOpts...),
		preprocessor: s.preprocessor,
		observer:     s.observer,
		auditor:      s.auditor,
		logger:       s.logger,
		newID:        s.newID,
	}
}

type compileOptions struct {
	toCode      bool
	interactive bool
}

// CompileOption configures one Compile call.
type CompileOption func(*compileOptions)

// ToCode also generates Python code.
func ToCode(on bool) CompileOption {
	return func(o *compileOptions) {
		o.toCode = on
	}
}

// Interactive surfaces missing clarifications in the output.
func Interactive(on bool) CompileOption {
	return func(o *compileOptions) {
		o.interactive = on
	}
}

// Compile runs the pipeline for one instruction. Every completion call
// carries the compile id as its trace id.
func (c *Compiler) Compile(ctx context.Context, instruction string, opts ...CompileOption) (*logic.CompilerOutput, error) {
	var o compileOptions
	for _, opt := range opts {
		opt(&o)
	}

	rec := &Record{
		ID:          c.newID(),
		Instruction: instruction,
		ToCode:      o.toCode,
		Interactive: o.interactive,
		StartedAt:   time.Now(),
	}
	ctx = llm.WithTraceContext(ctx, llm.TraceContext{TraceID: rec.ID})
	logger := c.logger.With("compile_id", rec.ID)

	out, err := c.run(ctx, logger, instruction, o)
	c.finish(ctx, logger, rec, out, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Compiler) run(ctx context.Context, logger *slog.Logger, instruction string, o compileOptions) (*logic.CompilerOutput, error) {
	out := &logic.CompilerOutput{CompileID: llm.GetTraceContext(ctx).TraceID}

	source := instruction
	if c.preprocessor != nil {
		match, err := c.preprocessor.Normalize(ctx, instruction)
		if err != nil {
			logger.Warn("Intent preprocessing failed, using raw instruction", "error", err)
		} else {
			out.Intent = &match
			if match.Normalized != "" {
				source = match.Normalized
			}
		}
	}

	plan, err := c.builder.Parse(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("build logic plan: %w", err)
	}
	out.Reasoning = plan

	pseudo, err := c.assembler.Generate(ctx, plan, o.interactive)
	if err != nil {
		return nil, fmt.Errorf("generate pseudocode: %w", err)
	}
	out.Pseudocode = pseudo

	if o.toCode {
		block, err := c.generator.Generate(ctx, pseudo)
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		out.Code = &block
		if c.observer != nil {
			c.observer.CodeGenerated(block)
		}
	}

	if o.interactive {
		out.ClarificationsNeeded = pseudo.Missing()
	}

	return out, nil
}

func (c *Compiler) finish(ctx context.Context, logger *slog.Logger, rec *Record, out *logic.CompilerOutput, err error) {
	rec.Duration = time.Since(rec.StartedAt)
	rec.Output = out
	rec.Outcome = Outcome(out, err)
	if err != nil {
		rec.Error = err.Error()
		rec.Raw = RawOutput(err)
		logger.Warn("Compile failed", "outcome", rec.Outcome, "error", err)
	} else {
		logger.Info("Compiled instruction",
			"outcome", rec.Outcome,
			"steps", len(out.Reasoning.Steps),
			"duration", rec.Duration)
	}

	if c.observer != nil {
		c.observer.CompileFinished(rec.Outcome, rec.Duration)
	}
	if c.auditor != nil {
		if aerr := c.auditor.RecordCompile(context.WithoutCancel(ctx), rec); aerr != nil {
			logger.Warn("Failed to record compile", "error", aerr)
		}
	}
}

// Compile outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeClarification = "clarification"
	OutcomeParseFailure  = "parse_failure"
	OutcomeSchemaFailure = "schema_failure"
	OutcomeCanceled      = "canceled"
	OutcomeTransport     = "transport_error"
	OutcomeError         = "error"
)

// Outcome classifies a compile result.
func Outcome(out *logic.CompilerOutput, err error) string {
	switch {
	case err == nil && out != nil && out.Reasoning.IsClarification():
		return OutcomeClarification
	case err == nil:
		return OutcomeOK
	case llm.IsParseFailure(err):
		return OutcomeParseFailure
	case intent.IsSchemaValidationFailure(err):
		return OutcomeSchemaFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case llm.IsTransient(err), llm.IsFatal(err):
		return OutcomeTransport
	default:
		return OutcomeError
	}
}

// RawOutput returns the model text attached to a parse or schema failure.
func RawOutput(err error) string {
	var pf *llm.ParseFailure
	if errors.As(err, &pf) {
		return pf.Raw
	}
	var sf *intent.SchemaValidationFailure
	if errors.As(err, &sf) {
		return sf.Raw
	}
	return ""
}
