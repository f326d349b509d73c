package main

import (
	"github.com/c360studio/semlogic/compiler"
	"github.com/c360studio/semlogic/watch"
	"github.com/spf13/cobra"
)

func watchCmd(root *rootOptions) *cobra.Command {
	var (
		toCode      bool
		interactive bool
		initialScan bool
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Compile instruction files as they change",
		Long: `Watch a directory tree for instruction files (watch.patterns, default
**/*.txt and **/*.rule). Each created or modified file is compiled and the
output written next to it as <name>.plan.json; deleting the file removes the
plan. Files whose content did not change are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
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

			w, err := watch.NewWatcher(watch.Config{
				Debounce: a.cfg.Watch.Debounce,
				Patterns: a.cfg.Watch.Patterns,
			}, dir, a.logger)
			if err != nil {
				return err
			}

			svc := watch.NewService(w, c,
				watch.WithCompileOptions(compiler.ToCode(toCode), compiler.Interactive(interactive)),
				watch.WithInitialScan(initialScan),
				watch.WithLogger(a.logger),
			)
			return svc.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&toCode, "code", false, "Also generate Python code")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "Report missing clarifications")
	cmd.Flags().BoolVar(&initialScan, "initial", true, "Compile existing files before watching")

	return cmd
}
