package eval

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/c360studio/semlogic/compiler"
	"github.com/c360studio/semlogic/logic"
)

// DefaultConcurrency bounds parallel compiles in a Runner.
const DefaultConcurrency = 4

// Compiler is the compile operation the runner drives.
type Compiler interface {
	Compile(ctx context.Context, instruction string, opts ...compiler.CompileOption) (*logic.CompilerOutput, error)
}

// Row is the evaluation of one gold item.
type Row struct {
	Instruction          string
	SemanticSimilarity   float64
	Structural           Scores
	TokenJaccard         float64
	ClarificationsNeeded []string

	// Error is set when the compile failed; scores are then zero.
	Error string
}

// Runner compiles gold items and scores the results.
type Runner struct {
	compiler    Compiler
	scorer      *SemanticScorer
	concurrency int
	logger      *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSemanticScorer enables semantic similarity scoring.
func WithSemanticScorer(s *SemanticScorer) RunnerOption {
	return func(r *Runner) {
		r.scorer = s
	}
}

// WithConcurrency sets how many compiles run at once.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner over c.
func NewRunner(c Compiler, opts ...RunnerOption) *Runner {
	r := &Runner{
		compiler:    c,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run compiles every item in interactive mode without code generation and
// returns one row per item, in input order. A failed compile produces a row
// with Error set; only cancellation aborts the run.
func (r *Runner) Run(ctx context.Context, items []GoldItem) ([]Row, error) {
	rows := make([]Row, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, item := range items {
		g.Go(func() error {
			row, err := r.evaluate(ctx, item)
			if err != nil {
				return err
			}
			rows[i] = row
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("eval run: %w", err)
	}
	return rows, nil
}

func (r *Runner) evaluate(ctx context.Context, item GoldItem) (Row, error) {
	row := Row{Instruction: item.Instruction}

	out, err := r.compiler.Compile(ctx, item.Instruction, compiler.ToCode(false), compiler.Interactive(true))
	if err != nil {
		if ctx.Err() != nil {
			return row, ctx.Err()
		}
		r.logger.Warn("Compile failed during eval",
			"instruction", item.Instruction,
			"error", err)
		row.Error = err.Error()
		return row, nil
	}

	if r.scorer != nil {
		sim, err := r.scorer.Score(ctx, item.Instruction, out.Pseudocode.Code)
		if err != nil {
			if ctx.Err() != nil {
				return row, ctx.Err()
			}
			r.logger.Warn("Semantic scoring failed", "error", err)
		}
		row.SemanticSimilarity = sim
	}

	row.Structural = StructuralScores(out.Reasoning.Steps, item.GoldSteps)
	row.TokenJaccard = BehavioralEquivalence(out.Pseudocode.Code, item.GoldPseudocode)
	row.ClarificationsNeeded = out.ClarificationsNeeded
	return row, nil
}

// csvHeader is the column order written by WriteCSV.
var csvHeader = []string{
	"instruction",
	"semantic_similarity",
	"struct_precision",
	"struct_recall",
	"struct_f1",
	"struct_dependency_acc",
	"beh_token_jaccard",
	"clarifications_needed",
	"error",
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Instruction,
			formatScore(row.SemanticSimilarity),
			formatScore(row.Structural.Precision),
			formatScore(row.Structural.Recall),
			formatScore(row.Structural.F1),
			formatScore(row.Structural.DependencyAccuracy),
			formatScore(row.TokenJaccard),
			strings.Join(row.ClarificationsNeeded, ";"),
			row.Error,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

// Summary holds mean scores over the rows that compiled.
type Summary struct {
	Items              int     `json:"items"`
	Failed             int     `json:"failed"`
	Clarifications     int     `json:"clarifications"`
	SemanticSimilarity float64 `json:"semantic_similarity"`
	Precision          float64 `json:"struct_precision"`
	Recall             float64 `json:"struct_recall"`
	F1                 float64 `json:"struct_f1"`
	DependencyAccuracy float64 `json:"struct_dependency_acc"`
	TokenJaccard       float64 `json:"beh_token_jaccard"`
}

// Summarize averages the scores of successful rows.
func Summarize(rows []Row) Summary {
	s := Summary{Items: len(rows)}
	for _, row := range rows {
		if row.Error != "" {
			s.Failed++
			continue
		}
		if len(row.ClarificationsNeeded) > 0 {
			s.Clarifications++
		}
		s.SemanticSimilarity += row.SemanticSimilarity
		s.Precision += row.Structural.Precision
		s.Recall += row.Structural.Recall
		s.F1 += row.Structural.F1
		s.DependencyAccuracy += row.Structural.DependencyAccuracy
		s.TokenJaccard += row.TokenJaccard
	}

	if n := float64(s.Items - s.Failed); n > 0 {
		s.SemanticSimilarity /= n
		s.Precision /= n
		s.Recall /= n
		s.F1 /= n
		s.DependencyAccuracy /= n
		s.TokenJaccard /= n
	}
	return s
}
