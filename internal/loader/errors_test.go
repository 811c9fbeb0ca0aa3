package loader

import (
	"strings"
	"testing"
)

func TestCodeForType(t *testing.T) {
	cases := []struct {
		errType string
		want    string
	}{
		{"extra_forbidden", "E001"},
		{"missing", "E002"},
		{"greater_than_equal", "E003"},
		{"less_than_equal", "E003"},
		{"value_error", "E003"},
		{"string_type", "E004"},
		{"integer_type", "E004"},
		{"int_parsing", "E004"},
		{"type_mismatch", "E004"},
		{"literal_error", "E005"},
		{"yaml_syntax_error", "E006"},
		{"empty_file", "E007"},
		{"empty_input", "E007"},
		{"something_else", "E999"},
		{"", "E999"},
	}
	for _, tc := range cases {
		if got := CodeForType(tc.errType); got != tc.want {
			t.Errorf("CodeForType(%q) = %s, want %s", tc.errType, got, tc.want)
		}
	}
}

func TestFormatErrorCI(t *testing.T) {
	f := NewErrorFormatter(true)

	detail := ErrorDetail{
		Field:      "modle",
		Message:    "Extra inputs are not permitted",
		Type:       "extra_forbidden",
		Line:       3,
		Col:        1,
		Suggestion: "Did you mean 'model'?",
	}
	got := f.FormatError(detail, "", "scenario.yaml")
	want := "scenario.yaml:3:1 -- modle: Extra inputs are not permitted (Did you mean 'model'?)"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}

	noPos := ErrorDetail{Field: "<yaml>", Message: "bad document", Type: "yaml_syntax_error"}
	got = f.FormatError(noPos, "", "scenario.yaml")
	want = "scenario.yaml:0:0 -- <yaml>: bad document"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestFormatErrorRichWithSource(t *testing.T) {
	f := NewErrorFormatter(false)
	source := "model: gpt-4o\nprompt: hi\nmodle: x\n"
	detail := ErrorDetail{
		Field:      "modle",
		Message:    "Extra inputs are not permitted",
		Type:       "extra_forbidden",
		Line:       3,
		Col:        1,
		Suggestion: "Did you mean 'model'?",
	}

	got := f.FormatError(detail, source, "scenario.yaml")
	want := strings.Join([]string{
		"error[E001]: unknown field",
		"  --> scenario.yaml:3:1",
		"   |",
		" 3 | modle: x",
		"   | ^^^^^ Extra inputs are not permitted",
		"   |",
		"   = help: Did you mean 'model'?",
	}, "\n")
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatErrorRichCaretFallsBackToColumn(t *testing.T) {
	f := NewErrorFormatter(false)
	source := "model: [x\n"
	detail := ErrorDetail{
		Field:   "<yaml>",
		Message: "did not find expected node content",
		Type:    "yaml_syntax_error",
		Line:    1,
		Col:     8,
	}

	got := f.FormatError(detail, source, "bad.yaml")
	want := strings.Join([]string{
		"error[E006]: YAML syntax error",
		"  --> bad.yaml:1:8",
		"   |",
		" 1 | model: [x",
		"   |        ^ did not find expected node content",
		"   |",
	}, "\n")
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatErrorRichNoPosition(t *testing.T) {
	f := NewErrorFormatter(false)
	detail := ErrorDetail{Field: "model", Message: "Field required", Type: "missing"}

	got := f.FormatError(detail, "model: x\n", "scenario.yaml")
	want := strings.Join([]string{
		"error[E002]: required field missing",
		"  --> scenario.yaml",
		"   |",
		"   | model: Field required",
		"   |",
	}, "\n")
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatErrorRichNestedFieldUnderlinesLastSegment(t *testing.T) {
	f := NewErrorFormatter(false)
	source := strings.Join([]string{
		"model: gpt-4o",
		"prompt: hi",
		"assertions:",
		"  - type: tool_called",
		"    tol: search",
	}, "\n")
	detail := ErrorDetail{
		Field:   "assertions.0.tol",
		Message: "Extra inputs are not permitted",
		Type:    "extra_forbidden",
		Line:    5,
		Col:     5,
	}

	got := f.FormatError(detail, source, "scenario.yaml")
	if !strings.Contains(got, " 5 |     tol: search") {
		t.Errorf("source line not quoted:\n%s", got)
	}
	if !strings.Contains(got, "   |     ^^^ Extra inputs are not permitted") {
		t.Errorf("caret not under tol:\n%s", got)
	}
}

func TestFormatAllJoinsWithBlankLine(t *testing.T) {
	f := NewErrorFormatter(true)
	details := []ErrorDetail{
		{Field: "a", Message: "first", Type: "missing", Line: 1, Col: 1},
		{Field: "b", Message: "second", Type: "missing", Line: 2, Col: 1},
	}

	got := f.FormatAll(details, "", "s.yaml")
	want := "s.yaml:1:1 -- a: first\n\ns.yaml:2:1 -- b: second"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatSuccess(t *testing.T) {
	rich := NewErrorFormatter(false)
	if got := rich.FormatSuccess("weather.yaml"); got != "  weather.yaml ... valid" {
		t.Errorf("rich success = %q", got)
	}
	ci := NewErrorFormatter(true)
	if got := ci.FormatSuccess("weather.yaml"); got != "weather.yaml -- ok" {
		t.Errorf("ci success = %q", got)
	}
}

func TestDetectCI(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"YES", true},
		{"false", false},
		{"0", false},
		{"", false},
		{"maybe", false},
	}
	for _, tc := range cases {
		t.Run("CI="+tc.value, func(t *testing.T) {
			t.Setenv("CI", tc.value)
			if got := DetectCI(); got != tc.want {
				t.Errorf("DetectCI() with CI=%q = %v, want %v", tc.value, got, tc.want)
			}
		})
	}
}
