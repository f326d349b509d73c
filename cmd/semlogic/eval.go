package main

import (
	"fmt"
	"io"
	"os"

	"github.com/c360studio/semlogic/eval"
	"github.com/spf13/cobra"
)

func evalCmd(root *rootOptions) *cobra.Command {
	var (
		outPath     string
		concurrency int
		semanticSim bool
	)

	cmd := &cobra.Command{
		Use:   "eval <gold-pattern>...",
		Short: "Score compiles against gold files",
		Long: `Compile every instruction in the gold files and score the result against
the gold steps and pseudocode. Patterns are doublestar globs such as
"testdata/gold/**/*.json". Rows are written as CSV.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := eval.LoadGold(args...)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.newCompiler(cmd.Context(), false)
			if err != nil {
				return err
			}

			if concurrency <= 0 {
				concurrency = a.cfg.Eval.Concurrency
			}
			opts := []eval.RunnerOption{
				eval.WithConcurrency(concurrency),
				eval.WithLogger(a.logger),
			}
			if semanticSim {
				emb, err := a.embedder(cmd.Context())
				if err != nil {
					return err
				}
				opts = append(opts, eval.WithSemanticScorer(eval.NewSemanticScorer(emb)))
			}

			rows, err := eval.NewRunner(c, opts...).Run(cmd.Context(), items)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create %s: %w", outPath, err)
				}
				defer f.Close()
				w = f
			}
			if err := eval.WriteCSV(w, rows); err != nil {
				return err
			}

			s := eval.Summarize(rows)
			fmt.Fprintf(cmd.ErrOrStderr(),
				"evaluated %d items (%d failed, %d clarifications): f1=%.4f dependency_acc=%.4f token_jaccard=%.4f semantic=%.4f\n",
				s.Items, s.Failed, s.Clarifications, s.F1, s.DependencyAccuracy, s.TokenJaccard, s.SemanticSimilarity)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "CSV output path")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Concurrent compiles (default eval.concurrency)")
	cmd.Flags().BoolVar(&semanticSim, "semantic", false, "Score embedding similarity (needs GEMINI_API_KEY)")

	return cmd
}
