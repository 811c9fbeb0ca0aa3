// Package loader reads scenario files into validated models.Scenario
// values. Parsing keeps a map from dotted field paths to source positions
// so validation errors can point at the offending line, resolves $include
// directives with cycle detection, and expands environment variables in
// string values. Validation runs the raw document against a JSON Schema
// reflected from the Scenario struct and reports every problem at once
// rather than stopping at the first.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

const includeKey = "$include"

// Position is a 1-indexed source location.
type Position struct {
	Line int
	Col  int
}

// LineMap maps dotted field paths ("assertions.0.type") to the position
// of the key that introduced them. Only keys from the top-level file are
// recorded; keys merged in from includes have no position.
type LineMap map[string]Position

// ParseError is a syntax-level failure: malformed YAML or JSON5, duplicate
// keys, or multiple documents in one file. Line and Col are best-effort
// and may be zero when the underlying parser reports no position.
type ParseError struct {
	Filename string
	Line     int
	Col      int
	Message  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Filename, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Filename, e.Message)
}

// ParseFile reads a scenario file into a raw map, resolving $include
// directives relative to the file's directory. An empty or comment-only
// file returns (nil, nil, nil); the validator turns that into an
// empty-input error. Syntax problems return a *ParseError.
func ParseFile(path string) (map[string]any, LineMap, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, fmt.Errorf("scenario path is required")
	}
	seen := map[string]bool{}
	return parseFileRecursive(path, seen)
}

// ParseBytes parses in-memory scenario content. The filename is used for
// error messages and as the base for resolving relative includes; it may
// be empty.
func ParseBytes(data []byte, filename string) (map[string]any, LineMap, error) {
	seen := map[string]bool{}
	if filename != "" {
		if abs, err := filepath.Abs(filename); err == nil {
			seen[abs] = true
		}
	}
	baseDir := "."
	if filename != "" {
		baseDir = filepath.Dir(filename)
	}
	return parseData(data, filename, baseDir, seen)
}

func parseFileRecursive(path string, seen map[string]bool) (map[string]any, LineMap, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}
	if seen[absPath] {
		return nil, nil, fmt.Errorf("include cycle detected at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, nil, err
	}
	return parseData(data, path, filepath.Dir(absPath), seen)
}

func parseData(data []byte, filename, baseDir string, seen map[string]bool) (map[string]any, LineMap, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil, nil
	}

	raw, lineMap, err := decodeDocument(data, filename)
	if err != nil {
		return nil, nil, err
	}
	if raw == nil {
		return nil, nil, nil
	}

	// Expand env vars in values only. Expanding the raw text would eat
	// the $include key itself and shift the recorded positions.
	expandEnvValues(raw)

	includes, err := extractIncludes(raw)
	if err != nil {
		return nil, nil, &ParseError{Filename: filename, Message: err.Error()}
	}

	merged := map[string]any{}
	for _, inc := range includes {
		if strings.TrimSpace(inc) == "" {
			continue
		}
		incPath := inc
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(baseDir, incPath)
		}
		incRaw, _, err := parseFileRecursive(incPath, seen)
		if err != nil {
			return nil, nil, err
		}
		merged = mergeMaps(merged, incRaw)
	}
	merged = mergeMaps(merged, raw)
	return merged, lineMap, nil
}

// decodeDocument parses one file's bytes by extension. YAML returns a line
// map built from the node tree; JSON5 has no position information.
func decodeDocument(data []byte, filename string) (map[string]any, LineMap, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".json" || ext == ".json5" {
		var raw map[string]any
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, nil, &ParseError{Filename: filename, Message: err.Error()}
		}
		if raw == nil {
			return nil, nil, nil
		}
		return raw, LineMap{}, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var doc yaml.Node
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, yamlParseError(err, filename)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, nil, &ParseError{Filename: filename, Message: "expected a single YAML document"}
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, nil, nil
	}

	var raw map[string]any
	if err := doc.Decode(&raw); err != nil {
		return nil, nil, yamlParseError(err, filename)
	}

	lineMap := LineMap{}
	buildLineMap(&doc, "", lineMap)
	return raw, lineMap, nil
}

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

// yamlParseError wraps a yaml.v3 error, pulling the line number out of the
// message text since the library exposes no structured position.
func yamlParseError(err error, filename string) *ParseError {
	msg := strings.TrimPrefix(err.Error(), "yaml: ")
	pe := &ParseError{Filename: filename, Message: msg}
	if m := yamlLineRe.FindStringSubmatch(msg); m != nil {
		if line, convErr := strconv.Atoi(m[1]); convErr == nil {
			pe.Line = line
		}
	}
	return pe
}

func buildLineMap(node *yaml.Node, prefix string, lm LineMap) {
	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			buildLineMap(child, prefix, lm)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			path := key.Value
			if prefix != "" {
				path = prefix + "." + key.Value
			}
			lm[path] = Position{Line: key.Line, Col: key.Column}
			if value.Kind == yaml.MappingNode || value.Kind == yaml.SequenceNode {
				buildLineMap(value, path, lm)
			}
		}
	case yaml.SequenceNode:
		for idx, child := range node.Content {
			if child.Kind != yaml.MappingNode && child.Kind != yaml.SequenceNode {
				continue
			}
			childPath := strconv.Itoa(idx)
			if prefix != "" {
				childPath = prefix + "." + childPath
			}
			lm[childPath] = Position{Line: child.Line, Col: child.Column}
			buildLineMap(child, childPath, lm)
		}
	}
}

func expandEnvValues(v any) any {
	switch typed := v.(type) {
	case string:
		return os.ExpandEnv(typed)
	case map[string]any:
		for key, value := range typed {
			typed[key] = expandEnvValues(value)
		}
		return typed
	case []any:
		for i, value := range typed {
			typed[i] = expandEnvValues(value)
		}
		return typed
	default:
		return v
	}
}

func extractIncludes(raw map[string]any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	val, ok := raw[includeKey]
	if !ok {
		return nil, nil
	}
	delete(raw, includeKey)

	switch typed := val.(type) {
	case string:
		return []string{typed}, nil
	case []any:
		paths := make([]string, 0, len(typed))
		for _, entry := range typed {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("$include entries must be strings")
			}
			paths = append(paths, s)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("$include must be a string or list of strings")
	}
}

// mergeMaps overlays src onto dst, merging nested maps key by key. Values
// from src win; the including file therefore overrides its includes.
func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}
