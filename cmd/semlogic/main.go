// Package main provides the semlogic binary entry point.
// Semlogic compiles natural-language automation rules into validated logic
// plans, pseudocode and, optionally, Python code.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	// Register LLM providers via init()
	_ "github.com/c360studio/semlogic/llm/providers"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semlogic"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	modelToken string
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Compile natural-language rules into logic plans",
		Long: `Semlogic compiles natural-language automation rules such as
"If temperature exceeds 30, turn on the AC" into a validated logic plan,
pseudocode and, optionally, Python code.

It provides:
- compile: one instruction, locally or through a NATS compile service
- eval: score compiles against gold files
- dataset: generate synthetic instructions
- serve: run the NATS compile service with Prometheus metrics
- watch: compile instruction files as they change`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML); default searches semlogic.yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&opts.modelToken, "model", "m", "", "Model endpoint or alias; routes every stage to it")

	cmd.AddCommand(
		compileCmd(opts),
		evalCmd(opts),
		datasetCmd(),
		serveCmd(opts),
		watchCmd(opts),
		modelsCmd(opts),
		versionCmd(),
	)

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}
