// Package main provides the CLI entry point for Salvo, a test framework
// for multi-step AI agents.
//
// Salvo runs YAML-defined scenarios against LLM providers, executes each
// scenario N times with mocked tools, scores the transcripts with weighted
// assertions, and aggregates the trials into a single verdict.
//
// # Basic Usage
//
// Scaffold a project:
//
//	salvo init
//
// Run a scenario:
//
//	salvo run scenarios/weather.yaml -n 5 --parallel 2
//
// Inspect past runs:
//
//	salvo report
//	salvo report --history
//
// # Environment Variables
//
//   - OPENAI_API_KEY: OpenAI API key
//   - ANTHROPIC_API_KEY: Anthropic API key
//   - SALVO_OTEL_ENDPOINT: OTLP gRPC endpoint for trace export
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

// exitError carries a process exit code through cobra's RunE chain.
// Commands print their own diagnostics before returning one, so main
// only translates the code.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func exitWithCode(code int) error {
	if code == 0 {
		return nil
	}
	return &exitError{code: code}
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()

	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "salvo",
		Short: "Test framework for multi-step AI agents",
		Long: `Salvo runs YAML scenarios against LLM providers with mocked tools,
repeats each scenario across N trials, and scores the results with
weighted assertions (including LLM-as-judge).

Scenario files live under scenarios/; run 'salvo init' to scaffold a project.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// SilenceUsage prevents printing usage on every error; SilenceErrors
		// keeps cobra from echoing exit-code sentinels that commands already
		// reported themselves.
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate("salvo {{.Version}}\n")
	rootCmd.Flags().BoolP("version", "v", false, "Show version and exit")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildValidateCmd(),
		buildReportCmd(),
		buildReplayCmd(),
		buildReevalCmd(),
		buildInitCmd(),
	)

	return rootCmd
}
