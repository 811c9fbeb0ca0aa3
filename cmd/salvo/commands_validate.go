package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jherleth/salvo-ai/internal/loader"
)

func buildValidateCmd() *cobra.Command {
	var ci bool
	cmd := &cobra.Command{
		Use:   "validate [scenarios...]",
		Short: "Validate scenario YAML files against the schema",
		Long: `Validate scenario YAML files against the Salvo schema.

Checks YAML syntax and schema constraints, reporting all errors at once.
With no arguments, validates every .yaml/.yml file under scenarios/.
Exits 0 if all files are valid, 1 otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args, ci)
		},
	}
	cmd.Flags().BoolVar(&ci, "ci", false, "CI-friendly concise output")
	return cmd
}

func runValidate(args []string, ci bool) error {
	stdout := os.Stdout
	stderr := os.Stderr

	ciMode := ci || loader.DetectCI()
	formatter := loader.NewErrorFormatter(ciMode)

	var files []string
	if len(args) > 0 {
		for _, arg := range args {
			if _, err := os.Stat(arg); err != nil {
				fmt.Fprintf(stderr, "Error: File not found: %s\n", arg)
				return exitWithCode(1)
			}
			files = append(files, arg)
		}
	} else {
		var err error
		files, err = scanScenariosDir("scenarios")
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitWithCode(1)
		}
		if len(files) == 0 {
			fmt.Fprintln(stdout, "No scenario files found. Specify files or create a scenarios/ directory.")
			return exitWithCode(1)
		}
	}

	validCount := 0
	errorCount := 0
	for _, path := range files {
		source, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			errorCount++
			continue
		}
		_, details, err := loader.ValidateScenarioFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			errorCount++
			continue
		}
		if len(details) > 0 {
			errorCount++
			out := formatter.FormatAll(details, string(source), path)
			// Rich output is diagnostics; CI output doubles as a machine
			// parseable record, so it goes to stdout.
			if ciMode {
				fmt.Fprintln(stdout, out)
			} else {
				fmt.Fprintln(stderr, out)
			}
			continue
		}
		validCount++
		fmt.Fprintln(stdout, formatter.FormatSuccess(path))
	}

	fmt.Fprintf(stdout, "\n%d/%d scenarios valid\n", validCount, len(files))
	if errorCount > 0 {
		return exitWithCode(1)
	}
	return nil
}

// scanScenariosDir collects every .yaml/.yml under dir, sorted by path.
// A missing directory is not an error; it returns no files.
func scanScenariosDir(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
