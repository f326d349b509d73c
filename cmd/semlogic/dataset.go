package main

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/c360studio/semlogic/dataset"
	"github.com/spf13/cobra"
)

func datasetCmd() *cobra.Command {
	var (
		seed    uint64
		outPath string
		counts  map[string]int
	)

	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Generate a synthetic instruction dataset",
		Long: fmt.Sprintf(`Generate synthetic instructions from template families and write them
as JSON. The same seed always yields the same dataset.

Families: %v`, dataset.FamilyNames()),
		Example: `  semlogic dataset --seed 7 --out instructions.json
  semlogic dataset --count ambiguous=50 --count simple=0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := buildPlan(counts)
			if err != nil {
				return err
			}

			items, err := dataset.NewGenerator(seed).Generate(plan)
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
			return dataset.WriteJSON(w, items)
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 42, "Random seed")
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "JSON output path")
	cmd.Flags().StringToIntVar(&counts, "count", nil, "Per-family item count overrides (family=n)")

	return cmd
}

// buildPlan applies count overrides to the default plan. Families outside
// the default plan are appended in name order.
func buildPlan(counts map[string]int) ([]dataset.Quota, error) {
	plan := slices.Clone(dataset.DefaultPlan)
	seen := make(map[string]bool, len(plan))
	for i, q := range plan {
		seen[q.Family] = true
		if n, ok := counts[q.Family]; ok {
			plan[i].Count = n
		}
	}

	extra := make([]string, 0)
	for family := range counts {
		if !seen[family] {
			extra = append(extra, family)
		}
	}
	slices.Sort(extra)
	for _, family := range extra {
		if _, ok := dataset.Families[family]; !ok {
			return nil, fmt.Errorf("unknown family %q (known: %v)", family, dataset.FamilyNames())
		}
		plan = append(plan, dataset.Quota{Family: family, Count: counts[family]})
	}
	return plan, nil
}
