package loader

import (
	"fmt"
	"os"
	"strings"
)

// Error codes attached to validation output. Stable: scripts grep for
// them, so existing codes never change meaning.
const (
	CodeUnknownField    = "E001"
	CodeRequiredMissing = "E002"
	CodeInvalidValue    = "E003"
	CodeTypeMismatch    = "E004"
	CodeInvalidLiteral  = "E005"
	CodeSyntaxError     = "E006"
	CodeEmptyInput      = "E007"
	CodeFallback        = "E999"
)

var exactCodes = map[string]string{
	"extra_forbidden":    CodeUnknownField,
	"missing":            CodeRequiredMissing,
	"value_error":        CodeInvalidValue,
	"greater_than_equal": CodeInvalidValue,
	"greater_than":       CodeInvalidValue,
	"less_than_equal":    CodeInvalidValue,
	"less_than":          CodeInvalidValue,
	"literal_error":      CodeInvalidLiteral,
	"type_mismatch":      CodeTypeMismatch,
	"yaml_syntax_error":  CodeSyntaxError,
	"empty_file":         CodeEmptyInput,
	"empty_input":        CodeEmptyInput,
}

// partialCodes classify by substring when no exact entry matches, so
// "string_type" and "int_parsing" both land on the type-mismatch code.
var partialCodes = []struct {
	fragment string
	code     string
}{
	{"_type", CodeTypeMismatch},
	{"_parsing", CodeTypeMismatch},
	{"value_error", CodeInvalidValue},
	{"literal", CodeInvalidLiteral},
}

var codeDescriptions = map[string]string{
	CodeUnknownField:    "unknown field",
	CodeRequiredMissing: "required field missing",
	CodeInvalidValue:    "invalid value",
	CodeTypeMismatch:    "type mismatch",
	CodeInvalidLiteral:  "invalid literal",
	CodeSyntaxError:     "YAML syntax error",
	CodeEmptyInput:      "empty input",
	CodeFallback:        "validation error",
}

// CodeForType maps an ErrorDetail type to its error code.
func CodeForType(errType string) string {
	if code, ok := exactCodes[errType]; ok {
		return code
	}
	for _, p := range partialCodes {
		if strings.Contains(errType, p.fragment) {
			return p.code
		}
	}
	return CodeFallback
}

// DescribeCode returns the short human label for an error code.
func DescribeCode(code string) string {
	if desc, ok := codeDescriptions[code]; ok {
		return desc
	}
	return codeDescriptions[CodeFallback]
}

// DetectCI reports whether the CI environment variable asks for
// machine-friendly output.
func DetectCI() bool {
	switch strings.ToLower(os.Getenv("CI")) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// ErrorFormatter renders validation details either as annotated source
// snippets or as one-line file:line:col records for CI logs.
type ErrorFormatter struct {
	CIMode bool
}

// NewErrorFormatter returns a formatter. Pass DetectCI() to follow the
// environment.
func NewErrorFormatter(ciMode bool) *ErrorFormatter {
	return &ErrorFormatter{CIMode: ciMode}
}

// FormatError renders a single detail. source is the file's full text,
// used in rich mode to quote the offending line.
func (f *ErrorFormatter) FormatError(detail ErrorDetail, source, filename string) string {
	if f.CIMode {
		return f.formatCI(detail, filename)
	}
	return f.formatRich(detail, source, filename)
}

// FormatAll renders every detail, separated by blank lines.
func (f *ErrorFormatter) FormatAll(details []ErrorDetail, source, filename string) string {
	parts := make([]string, 0, len(details))
	for _, d := range details {
		parts = append(parts, f.FormatError(d, source, filename))
	}
	return strings.Join(parts, "\n\n")
}

// FormatSuccess reports a file that validated clean.
func (f *ErrorFormatter) FormatSuccess(filename string) string {
	if f.CIMode {
		return fmt.Sprintf("%s -- ok", filename)
	}
	return fmt.Sprintf("  %s ... valid", filename)
}

func (f *ErrorFormatter) formatCI(detail ErrorDetail, filename string) string {
	line := fmt.Sprintf("%s:%d:%d -- %s: %s",
		filename, detail.Line, detail.Col, detail.Field, detail.Message)
	if detail.Suggestion != "" {
		line += fmt.Sprintf(" (%s)", detail.Suggestion)
	}
	return line
}

func (f *ErrorFormatter) formatRich(detail ErrorDetail, source, filename string) string {
	code := CodeForType(detail.Type)
	lines := []string{fmt.Sprintf("error[%s]: %s", code, DescribeCode(code))}

	if detail.Line > 0 {
		col := detail.Col
		if col < 1 {
			col = 1
		}
		lines = append(lines, fmt.Sprintf("  --> %s:%d:%d", filename, detail.Line, col))
		srcLines := strings.Split(source, "\n")
		if detail.Line <= len(srcLines) {
			srcLine := srcLines[detail.Line-1]
			lineNum := fmt.Sprintf("%d", detail.Line)
			padding := strings.Repeat(" ", len(lineNum))

			lines = append(lines, "   |")
			lines = append(lines, fmt.Sprintf(" %s | %s", lineNum, srcLine))
			lines = append(lines, fmt.Sprintf(" %s | %s%s %s",
				padding, strings.Repeat(" ", caretOffset(srcLine, detail, col)),
				strings.Repeat("^", caretWidth(srcLine, detail)), detail.Message))
			lines = append(lines, "   |")
		}
	} else {
		lines = append(lines, fmt.Sprintf("  --> %s", filename))
		lines = append(lines, "   |")
		lines = append(lines, fmt.Sprintf("   | %s: %s", detail.Field, detail.Message))
		lines = append(lines, "   |")
	}

	if detail.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("   = help: %s", detail.Suggestion))
	}
	return strings.Join(lines, "\n")
}

// caretOffset finds where the underline starts: under the last field path
// segment when it appears in the line, else under the reported column.
func caretOffset(srcLine string, detail ErrorDetail, col int) int {
	if seg := lastSegment(detail.Field); seg != "" {
		if idx := strings.Index(srcLine, seg); idx >= 0 {
			return idx
		}
	}
	if col-1 < len(srcLine) {
		return col - 1
	}
	return 0
}

func caretWidth(srcLine string, detail ErrorDetail) int {
	seg := lastSegment(detail.Field)
	if seg != "" && strings.Contains(srcLine, seg) {
		return len(seg)
	}
	return 1
}

func lastSegment(field string) string {
	if field == "" || strings.HasPrefix(field, "<") {
		return ""
	}
	segs := strings.Split(field, ".")
	return segs[len(segs)-1]
}
