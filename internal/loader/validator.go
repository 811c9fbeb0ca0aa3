package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/jherleth/salvo-ai/pkg/models"
)

// ErrorDetail is one validation problem, positioned in the source file
// when the line map knows the field. Type is a machine-readable error
// class mapped to an error code by CodeForType.
type ErrorDetail struct {
	Field      string
	Message    string
	Type       string
	Line       int
	Col        int
	Suggestion string
}

var (
	schemaOnce        sync.Once
	scenarioSchema    *jsonschema.Schema
	scenarioFields    []string
	scenarioSchemaErr error
)

// compiledSchema reflects the Scenario struct into a JSON Schema once and
// compiles it. The yaml field tag drives property names so the schema
// matches what users actually write.
func compiledSchema() (*jsonschema.Schema, []string, error) {
	schemaOnce.Do(func() {
		reflector := &invopop.Reflector{
			FieldNameTag: "yaml",
		}
		reflected := reflector.Reflect(&models.Scenario{})
		payload, err := json.Marshal(reflected)
		if err != nil {
			scenarioSchemaErr = fmt.Errorf("encode scenario schema: %w", err)
			return
		}
		compiled, err := jsonschema.CompileString("scenario.schema.json", string(payload))
		if err != nil {
			scenarioSchemaErr = fmt.Errorf("compile scenario schema: %w", err)
			return
		}
		scenarioSchema = compiled

		root := compiled
		for root.Ref != nil {
			root = root.Ref
		}
		for name := range root.Properties {
			scenarioFields = append(scenarioFields, name)
		}
		sort.Strings(scenarioFields)
	})
	return scenarioSchema, scenarioFields, scenarioSchemaErr
}

// ValidateScenario checks a parsed document against the scenario schema and
// decodes it. On success the scenario comes back with defaults applied and
// a nil detail slice; on failure every problem found is returned at once.
// filename is only used to phrase the empty-input error; pass "" for
// in-memory input.
func ValidateScenario(raw map[string]any, lineMap LineMap, filename string) (*models.Scenario, []ErrorDetail) {
	if raw == nil {
		return nil, []ErrorDetail{emptyDetail(filename)}
	}

	schema, fields, err := compiledSchema()
	if err != nil {
		return nil, []ErrorDetail{{Field: "<schema>", Message: err.Error(), Type: "schema_error"}}
	}

	decoded, err := jsonRoundTrip(raw)
	if err != nil {
		return nil, []ErrorDetail{{Field: "<document>", Message: err.Error(), Type: "encoding_error"}}
	}

	if err := schema.Validate(decoded); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			var details []ErrorDetail
			for _, leaf := range flattenLeaves(ve) {
				details = append(details, detailsFromCause(leaf, lineMap, fields)...)
			}
			sortDetails(details)
			return nil, details
		}
		return nil, []ErrorDetail{{Field: "<document>", Message: err.Error(), Type: "validation_error"}}
	}

	scenario, err := decodeScenario(raw)
	if err != nil {
		return nil, []ErrorDetail{{Field: "<document>", Message: err.Error(), Type: "decode_error"}}
	}
	return scenario, nil
}

// ValidateScenarioFile parses and validates a scenario file. Validation
// problems, including syntax errors, come back as details; only I/O-level
// failures (unreadable file) return an error.
func ValidateScenarioFile(path string) (*models.Scenario, []ErrorDetail, error) {
	raw, lineMap, err := ParseFile(path)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			return nil, []ErrorDetail{syntaxDetail(pe)}, nil
		}
		return nil, nil, err
	}
	scenario, details := ValidateScenario(raw, lineMap, path)
	return scenario, details, nil
}

// ValidateScenarioBytes is ValidateScenarioFile for in-memory content.
func ValidateScenarioBytes(data []byte, filename string) (*models.Scenario, []ErrorDetail, error) {
	raw, lineMap, err := ParseBytes(data, filename)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			return nil, []ErrorDetail{syntaxDetail(pe)}, nil
		}
		return nil, nil, err
	}
	scenario, details := ValidateScenario(raw, lineMap, filename)
	return scenario, details, nil
}

func emptyDetail(filename string) ErrorDetail {
	if filename == "" {
		return ErrorDetail{
			Field:   "<input>",
			Message: "Input is empty or contains only comments",
			Type:    "empty_input",
		}
	}
	return ErrorDetail{
		Field:   "<file>",
		Message: "File is empty or contains only comments",
		Type:    "empty_file",
	}
}

func syntaxDetail(pe *ParseError) ErrorDetail {
	return ErrorDetail{
		Field:   "<yaml>",
		Message: pe.Message,
		Type:    "yaml_syntax_error",
		Line:    pe.Line,
		Col:     pe.Col,
	}
}

// jsonRoundTrip re-encodes the raw map through JSON so the validator sees
// plain JSON types regardless of what the YAML decoder produced.
func jsonRoundTrip(raw map[string]any) (any, error) {
	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode scenario for validation: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode scenario for validation: %w", err)
	}
	return decoded, nil
}

// decodeScenario strictly decodes the raw map into a Scenario pre-seeded
// with defaults, so omitted fields default while explicit zeros survive.
func decodeScenario(raw map[string]any) (*models.Scenario, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("serialize scenario: %w", err)
	}
	scenario := models.Scenario{
		Adapter:   models.DefaultAdapter,
		Threshold: models.DefaultThreshold,
		MaxTurns:  models.DefaultMaxTurns,
	}
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode scenario: expected single document")
	}
	return &scenario, nil
}

func flattenLeaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var leaves []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		leaves = append(leaves, flattenLeaves(cause)...)
	}
	return leaves
}

// detailsFromCause converts one schema violation into error details. A
// single violation can name several fields (multiple unknown keys, several
// missing properties), so this fans out.
func detailsFromCause(cause *jsonschema.ValidationError, lineMap LineMap, fields []string) []ErrorDetail {
	keyword := cause.KeywordLocation
	if i := strings.LastIndex(keyword, "/"); i >= 0 {
		keyword = keyword[i+1:]
	}
	parent := instancePath(cause.InstanceLocation)

	switch keyword {
	case "additionalProperties":
		names := prefixedNames(cause.Message, "additionalProperties ", " not allowed")
		sort.Strings(names)
		details := make([]ErrorDetail, 0, len(names))
		for _, name := range names {
			d := ErrorDetail{
				Field:   joinField(parent, name),
				Message: "Extra inputs are not permitted",
				Type:    "extra_forbidden",
			}
			if parent == "" {
				if match := suggestField(name, fields); match != "" {
					d.Suggestion = fmt.Sprintf("Did you mean '%s'?", match)
				}
			}
			fillPosition(&d, lineMap)
			details = append(details, d)
		}
		if len(details) > 0 {
			return details
		}
	case "required":
		names := prefixedNames(cause.Message, "missing properties: ", "")
		details := make([]ErrorDetail, 0, len(names))
		for _, name := range names {
			d := ErrorDetail{
				Field:   joinField(parent, name),
				Message: "Field required",
				Type:    "missing",
			}
			// Point at the enclosing object, not the absent key.
			fillPositionFor(&d, lineMap, parent)
			details = append(details, d)
		}
		if len(details) > 0 {
			return details
		}
	case "type":
		typeName, message := typeMismatch(cause.Message)
		d := ErrorDetail{Field: parent, Message: message, Type: typeName}
		fillPosition(&d, lineMap)
		return []ErrorDetail{d}
	case "minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum":
		typeName, message := rangeViolation(keyword, cause.Message)
		d := ErrorDetail{Field: parent, Message: message, Type: typeName}
		fillPosition(&d, lineMap)
		return []ErrorDetail{d}
	case "enum", "const":
		d := ErrorDetail{Field: parent, Message: enumMessage(cause.Message), Type: "literal_error"}
		fillPosition(&d, lineMap)
		return []ErrorDetail{d}
	}

	d := ErrorDetail{Field: parent, Message: cause.Message, Type: keyword}
	fillPosition(&d, lineMap)
	return []ErrorDetail{d}
}

func fillPosition(d *ErrorDetail, lineMap LineMap) {
	fillPositionFor(d, lineMap, d.Field)
}

// fillPositionFor looks up field's position, falling back to progressively
// shorter prefixes so a missing leaf still points at its parent block.
func fillPositionFor(d *ErrorDetail, lineMap LineMap, field string) {
	if lineMap == nil {
		return
	}
	for field != "" {
		if pos, ok := lineMap[field]; ok {
			d.Line = pos.Line
			d.Col = pos.Col
			return
		}
		i := strings.LastIndex(field, ".")
		if i < 0 {
			return
		}
		field = field[:i]
	}
}

func instancePath(loc string) string {
	loc = strings.TrimPrefix(loc, "/")
	if loc == "" {
		return ""
	}
	segs := strings.Split(loc, "/")
	for i, seg := range segs {
		seg = strings.ReplaceAll(seg, "~1", "/")
		seg = strings.ReplaceAll(seg, "~0", "~")
		segs[i] = seg
	}
	return strings.Join(segs, ".")
}

func joinField(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

var (
	singleQuotedRe = regexp.MustCompile(`'([^']*)'`)
	doubleQuotedRe = regexp.MustCompile(`"([^"]*)"`)
)

func quotedNames(msg string) []string {
	var names []string
	for _, m := range singleQuotedRe.FindAllStringSubmatch(msg, -1) {
		names = append(names, m[1])
	}
	if len(names) > 0 {
		return names
	}
	for _, m := range doubleQuotedRe.FindAllStringSubmatch(msg, -1) {
		names = append(names, m[1])
	}
	return names
}

// prefixedNames pulls field names out of a validator message, preferring
// quoted tokens and falling back to comma-splitting the bare list.
func prefixedNames(msg, prefix, suffix string) []string {
	if names := quotedNames(msg); len(names) > 0 {
		return names
	}
	if !strings.HasPrefix(msg, prefix) {
		return nil
	}
	trimmed := strings.TrimPrefix(msg, prefix)
	if suffix != "" {
		if !strings.HasSuffix(trimmed, suffix) {
			return nil
		}
		trimmed = strings.TrimSuffix(trimmed, suffix)
	}
	var names []string
	for _, tok := range strings.Split(trimmed, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			names = append(names, tok)
		}
	}
	return names
}

// typeMismatch turns the validator's "expected X, but got Y" into a typed
// detail. Unexpected phrasing falls through to the raw message.
func typeMismatch(msg string) (string, string) {
	rest, ok := strings.CutPrefix(msg, "expected ")
	if !ok {
		return "type_mismatch", msg
	}
	expected := rest
	if i := strings.IndexAny(expected, ","); i >= 0 {
		expected = expected[:i]
	}
	if i := strings.Index(expected, " or "); i >= 0 {
		expected = expected[:i]
	}
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return "type_mismatch", msg
	}
	if expected == "null" {
		return "null_type", "Input should be null"
	}
	return expected + "_type", "Input should be a valid " + expected
}

var boundRe = regexp.MustCompile(`must be (>=|<=|>|<) (\S+)`)

func rangeViolation(keyword, msg string) (string, string) {
	typeName := map[string]string{
		"minimum":          "greater_than_equal",
		"maximum":          "less_than_equal",
		"exclusiveMinimum": "greater_than",
		"exclusiveMaximum": "less_than",
	}[keyword]
	phrase := map[string]string{
		"minimum":          "greater than or equal to",
		"maximum":          "less than or equal to",
		"exclusiveMinimum": "greater than",
		"exclusiveMaximum": "less than",
	}[keyword]

	m := boundRe.FindStringSubmatch(msg)
	if m == nil {
		return typeName, msg
	}
	return typeName, fmt.Sprintf("Input should be %s %s", phrase, ratToDecimal(m[2]))
}

// ratToDecimal rewrites the validator's big.Rat rendering ("4/5") as a
// plain decimal.
func ratToDecimal(s string) string {
	i := strings.IndexByte(s, '/')
	if i <= 0 {
		return s
	}
	num, err1 := strconv.ParseFloat(s[:i], 64)
	den, err2 := strconv.ParseFloat(s[i+1:], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return s
	}
	return strconv.FormatFloat(num/den, 'g', -1, 64)
}

func enumMessage(msg string) string {
	names := quotedNames(msg)
	if len(names) == 0 {
		return msg
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	if len(quoted) == 1 {
		return "Input should be " + quoted[0]
	}
	return fmt.Sprintf("Input should be %s or %s",
		strings.Join(quoted[:len(quoted)-1], ", "), quoted[len(quoted)-1])
}

// sortDetails orders by position then field so output is stable; the
// validator walks schema properties in map order.
func sortDetails(details []ErrorDetail) {
	sort.SliceStable(details, func(i, j int) bool {
		li, lj := details[i].Line, details[j].Line
		if li == 0 {
			li = int(^uint(0) >> 1)
		}
		if lj == 0 {
			lj = int(^uint(0) >> 1)
		}
		if li != lj {
			return li < lj
		}
		return details[i].Field < details[j].Field
	})
}

// suggestField returns the closest valid field name within a difflib-style
// 0.6 similarity cutoff, or "".
func suggestField(name string, candidates []string) string {
	best := ""
	bestDist := -1
	for _, cand := range candidates {
		d := editDistance(name, cand)
		if bestDist < 0 || d < bestDist {
			best, bestDist = cand, d
		}
	}
	if best == "" {
		return ""
	}
	maxLen := len([]rune(name))
	if l := len([]rune(best)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 || bestDist*5 > maxLen*2 {
		return ""
	}
	return best
}

func editDistance(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}
	prev := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		curr := make([]int, len(br)+1)
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev = curr
	}
	return prev[len(br)]
}
