// Package scaffold generates a new salvo project: config, an example
// scenario, shared tool definitions, and a .gitignore. Non-interactive;
// every generated file works as-is.
package scaffold

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed templates
var templatesFS embed.FS

// fileMap pairs each embedded template with its output path. Order is
// the order files are created and reported.
var fileMap = []struct {
	template string
	output   string
}{
	{"templates/salvo.yaml", "salvo.yaml"},
	{"templates/example.yaml", "scenarios/example.yaml"},
	{"templates/tools/example_tool.yaml", "tools/example_tool.yaml"},
}

// gitignoreEntry keeps run artifacts out of version control.
const gitignoreEntry = ".salvo/"

// ProjectExistsError reports scaffold targets that already exist. The
// conflict check runs before any file is written, so a conflicting
// directory is left untouched.
type ProjectExistsError struct {
	Conflicts []string
}

func (e *ProjectExistsError) Error() string {
	return fmt.Sprintf("files already exist: %s", strings.Join(e.Conflicts, ", "))
}

// Scaffold generates a salvo project in dir and returns the paths it
// created, relative to dir. Without force, any existing target file
// aborts with *ProjectExistsError before anything is written.
func Scaffold(dir string, force bool) ([]string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}

	if !force {
		var conflicts []string
		for _, f := range fileMap {
			if _, err := os.Stat(filepath.Join(abs, filepath.FromSlash(f.output))); err == nil {
				conflicts = append(conflicts, f.output)
			}
		}
		if len(conflicts) > 0 {
			return nil, &ProjectExistsError{Conflicts: conflicts}
		}
	}

	var created []string
	for _, f := range fileMap {
		data, err := templatesFS.ReadFile(f.template)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", f.template, err)
		}
		target := filepath.Join(abs, filepath.FromSlash(f.output))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", filepath.Dir(target), err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.output, err)
		}
		created = append(created, f.output)
	}

	entry, err := ensureGitignore(abs)
	if err != nil {
		return nil, err
	}
	if entry != "" {
		created = append(created, entry)
	}
	return created, nil
}

// ensureGitignore creates .gitignore with the storage-dir entry, or
// appends the entry when the file exists without it. Returns the display
// name of what changed, empty when the entry was already present.
func ensureGitignore(dir string) (string, error) {
	path := filepath.Join(dir, ".gitignore")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte(gitignoreEntry+"\n"), 0o644); err != nil {
			return "", fmt.Errorf("write .gitignore: %w", err)
		}
		return ".gitignore", nil
	}
	if err != nil {
		return "", fmt.Errorf("read .gitignore: %w", err)
	}

	content := string(data)
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == gitignoreEntry {
			return "", nil
		}
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += gitignoreEntry + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("update .gitignore: %w", err)
	}
	return ".gitignore (updated)", nil
}
