package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/c360studio/semlogic/compiler"
	"github.com/c360studio/semlogic/logic"
	compileservice "github.com/c360studio/semlogic/processor/compile-service"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

func compileCmd(root *rootOptions) *cobra.Command {
	var (
		toCode      bool
		interactive bool
		intent      bool
		remote      bool
		format      string
	)

	cmd := &cobra.Command{
		Use:   "compile [instruction]",
		Short: "Compile one instruction",
		Long: `Compile one natural-language instruction into a logic plan and pseudocode.
The instruction is read from the arguments, or from stdin when none are given
or the only argument is "-".`,
		Example: `  semlogic compile "If temperature exceeds 30, turn on the AC."
  echo "Turn on the heater unless a window is open." | semlogic compile --code
  semlogic compile --remote --format yaml "Lock the door at 10pm"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			instruction, err := readInstruction(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := a.compileContext(cmd.Context())
			defer cancel()

			var out *logic.CompilerOutput
			if remote {
				out, err = compileRemote(ctx, a.cfg.NATS.URL, a.cfg.NATS.Subject, compileservice.Request{
					Instruction: instruction,
					ToCode:      toCode,
					Interactive: interactive,
				})
			} else {
				var c *compiler.Compiler
				c, err = a.newCompiler(ctx, intent)
				if err != nil {
					return err
				}
				out, err = c.Compile(ctx, instruction, compiler.ToCode(toCode), compiler.Interactive(interactive))
			}
			if err != nil {
				return describeCompileError(err)
			}

			return writeOutput(cmd.OutOrStdout(), format, out)
		},
	}

	cmd.Flags().BoolVar(&toCode, "code", false, "Also generate Python code")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "Report missing clarifications")
	cmd.Flags().BoolVar(&intent, "intent", false, "Match the instruction to an intent template first (needs GEMINI_API_KEY)")
	cmd.Flags().BoolVar(&remote, "remote", false, "Compile through the NATS compile service at nats.url")
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "Output format (json, yaml, cbor)")

	return cmd
}

// readInstruction joins args, or reads stdin when there are none or the only
// argument is "-".
func readInstruction(args []string, stdin io.Reader) (string, error) {
	var instruction string
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read instruction from stdin: %w", err)
		}
		instruction = string(data)
	} else {
		instruction = strings.Join(args, " ")
	}

	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return "", fmt.Errorf("instruction is required")
	}
	return instruction, nil
}

// describeCompileError appends the raw model output of parse and schema
// failures so the user can see what the model produced.
func describeCompileError(err error) error {
	outcome := compiler.Outcome(nil, err)
	raw := compiler.RawOutput(err)
	if raw == "" {
		return fmt.Errorf("compile failed (%s): %w", outcome, err)
	}
	return fmt.Errorf("compile failed (%s): %w\n--- raw model output ---\n%s", outcome, err, raw)
}

func compileRemote(ctx context.Context, url, subject string, req compileservice.Request) (*logic.CompilerOutput, error) {
	nc, err := nats.Connect(url, nats.Name(appName+"-cli"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, wrapNATSError(err, url)
	}
	defer nc.Close()

	return compileservice.NewClient(nc, subject).Compile(ctx, req)
}

// wrapNATSError provides guidance when the NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker run -p 4222:4222 nats

Or set SEMLOGIC_NATS_URL to point to your NATS server.`, err, url)
	}
	return fmt.Errorf("NATS connection failed: %w", err)
}
