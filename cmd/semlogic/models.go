package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/c360studio/semlogic/model"
	"github.com/spf13/cobra"
)

func modelsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models [token]",
		Short: "List model endpoints or resolve a model token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(root.logLevel, cmd.ErrOrStderr())
			cfg, err := loadConfig(root.configPath, logger)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			registry, err := loadRegistry(cfg)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				endpoint, err := registry.ResolveToken(args[0])
				if err != nil {
					return err
				}
				ep := registry.GetEndpoint(endpoint)
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s %s)\n", args[0], endpoint, ep.Provider, ep.Model)
				return nil
			}

			return printRegistry(cmd, registry)
		},
	}
}

func printRegistry(cmd *cobra.Command, registry *model.Registry) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDPOINT\tPROVIDER\tMODEL\tURL")
	for _, name := range registry.ListEndpoints() {
		ep := registry.GetEndpoint(name)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, ep.Provider, ep.Model, ep.URL)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CAPABILITY\tCHAIN")
	for _, c := range registry.ListCapabilities() {
		fmt.Fprintf(tw, "%s\t%s\n", c, strings.Join(registry.GetFallbackChain(c), " -> "))
	}
	return tw.Flush()
}
