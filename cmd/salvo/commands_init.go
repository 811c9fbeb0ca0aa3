package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jherleth/salvo-ai/internal/scaffold"
)

func buildInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new Salvo project",
		Long: `Initialize a new Salvo project.

Creates salvo.yaml, an example scenario, shared tool definitions, and a
.gitignore. All files are generated with sensible defaults -- no prompts,
no interaction.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(dir, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing files")
	return cmd
}

func runInit(dir string, force bool) error {
	stdout := os.Stdout
	stderr := os.Stderr
	color := term.IsTerminal(int(stdout.Fd()))

	created, err := scaffold.Scaffold(dir, force)
	if err != nil {
		var exists *scaffold.ProjectExistsError
		if errors.As(err, &exists) {
			fmt.Fprintf(stderr, "Error: Files already exist: %s\n", strings.Join(exists.Conflicts, ", "))
			fmt.Fprintln(stderr, "Use --force to overwrite existing files.")
			return exitWithCode(1)
		}
		return err
	}

	fmt.Fprintln(stdout, paint(color, ansiBold+ansiGreen, "Project initialized successfully!"))
	for _, path := range created {
		fmt.Fprintf(stdout, "  %s %s\n", paint(color, ansiGreen, "✓"), path)
	}
	return nil
}
