package assertions

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/apicontract/packages/http"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
	Subject  string
	Operator string
	Note     string
}

// CaptureLookup resolves a captured value reference such as "create-user.id".
type CaptureLookup func(ref string) (any, bool)

type Evaluator struct {
	response *http.Response
	bodyJSON gjson.Result
	baseDir  string // Base directory for resolving schema file paths
	captures CaptureLookup
}

// EvaluatorOption is a functional option for configuring an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithBaseDir sets the directory schema file paths are relative to.
func WithBaseDir(dir string) EvaluatorOption {
	return func(e *Evaluator) {
		e.baseDir = dir
	}
}

// WithCaptures enables the "capture <ref>" subject.
func WithCaptures(lookup CaptureLookup) EvaluatorOption {
	return func(e *Evaluator) {
		e.captures = lookup
	}
}

func NewEvaluator(resp *http.Response, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		response: resp,
		bodyJSON: resp.JSON(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate returns one result per expectation, in order.
func Evaluate(resp *http.Response, expectations []*Expectation, opts ...EvaluatorOption) []*Result {
	evaluator := NewEvaluator(resp, opts...)
	results := make([]*Result, len(expectations))
	for i, exp := range expectations {
		results[i] = evaluator.Evaluate(exp)
	}
	return results
}

// Failed filters the failing results.
func Failed(results []*Result) []*Result {
	var failed []*Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

func (e *Evaluator) Evaluate(exp *Expectation) *Result {
	result := &Result{
		Subject:  exp.Subject,
		Operator: exp.Operator.String(),
		Expected: exp.Expected,
		Note:     exp.Note,
	}
	if exp.Operator == OpHasProperty {
		result.Expected = exp.Property
		if exp.Expected != nil {
			result.Expected = map[string]any{exp.Property: exp.Expected}
		}
	}

	if err := exp.Validate(); err != nil {
		result.Message = err.Error()
		return result
	}

	actual, found, err := e.getActualValue(exp.Subject)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	result.Actual = actual

	passed, msg := e.compare(actual, found, exp)
	result.Passed = passed
	result.Message = msg

	// For length operators, show the computed length as the actual value
	if exp.Operator == OpLength || exp.Operator == OpMinLength {
		result.Actual = computeLength(actual)
	}

	return result
}

func (e *Evaluator) getActualValue(subject string) (any, bool, error) {
	subject = strings.TrimSpace(subject)
	switch {
	case subject == "status":
		return e.response.StatusCode, true, nil
	case subject == "duration":
		return e.response.DurationMs(), true, nil
	case subject == "headers":
		headers := make(map[string]any, len(e.response.Headers))
		for k, v := range e.response.Headers {
			headers[k] = v
		}
		return headers, true, nil
	case strings.HasPrefix(subject, "header ") || strings.HasPrefix(subject, "header."):
		name := strings.TrimSpace(subject[len("header "):])
		if !e.response.HasHeader(name) {
			return nil, false, nil
		}
		return e.response.Header(name), true, nil
	case strings.HasPrefix(subject, "capture "):
		ref := strings.TrimSpace(strings.TrimPrefix(subject, "capture "))
		if e.captures == nil {
			return nil, false, fmt.Errorf("no captured values available for %q", ref)
		}
		v, ok := e.captures(ref)
		return v, ok, nil
	case subject == "body" || strings.HasPrefix(subject, "body.") || strings.HasPrefix(subject, "body["):
		v, ok := e.getBodyValue(strings.TrimPrefix(subject, "body"))
		return v, ok, nil
	default:
		v, ok := e.getBodyValue(subject)
		return v, ok, nil
	}
}

func isHeaderSubject(subject string) bool {
	subject = strings.TrimSpace(subject)
	return strings.HasPrefix(subject, "header ") || strings.HasPrefix(subject, "header.")
}

var bracketPattern = regexp.MustCompile(`\[(\d+)\]`)

// convertBracketNotation converts array bracket notation to gjson dot notation
// e.g., "[0].id" -> "0.id", "items[0].tags[1]" -> "items.0.tags.1"
func convertBracketNotation(path string) string {
	result := bracketPattern.ReplaceAllString(path, ".$1")
	return strings.TrimPrefix(result, ".")
}

func (e *Evaluator) getBodyValue(path string) (any, bool) {
	path = strings.TrimPrefix(path, ".")
	if !e.bodyJSON.Exists() {
		if path == "" {
			return e.response.BodyString(), true
		}
		return nil, false
	}

	if path == "" {
		return e.bodyJSON.Value(), true
	}

	result := e.bodyJSON.Get(convertBracketNotation(path))
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

func (e *Evaluator) compare(actual any, found bool, exp *Expectation) (bool, string) {
	expected := exp.Expected
	if s, ok := actual.(string); ok && isHeaderSubject(exp.Subject) && exp.Operator.isThreshold() {
		// Header values are always text; Content-Length and friends compare as numbers.
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			actual = f
		}
	}
	switch exp.Operator {
	case OpEquals:
		return equals(actual, expected)
	case OpNotEquals:
		if passed, _ := equals(actual, expected); passed {
			return false, fmt.Sprintf("expected not to equal %v", expected)
		}
		return true, ""
	case OpOneOf:
		return oneOf(actual, expected)
	case OpNotOneOf:
		if passed, _ := oneOf(actual, expected); passed {
			return false, fmt.Sprintf("expected %v not to be one of %v", actual, expected)
		}
		return true, ""
	case OpHasProperty:
		return hasProperty(actual, exp.Property, expected)
	case OpInclude:
		return include(actual, expected)
	case OpLessThan:
		return compareNumeric(actual, expected, "<")
	case OpLessOrEqual:
		return compareNumeric(actual, expected, "<=")
	case OpGreaterThan:
		return compareNumeric(actual, expected, ">")
	case OpGreaterOrEqual:
		return compareNumeric(actual, expected, ">=")
	case OpLength:
		return length(actual, expected, false)
	case OpMinLength:
		return length(actual, expected, true)
	case OpType:
		return typeCheck(actual, expected)
	case OpContains:
		return contains(actual, expected)
	case OpNotContains:
		if passed, _ := contains(actual, expected); passed {
			return false, fmt.Sprintf("expected '%v' not to contain '%v'", actual, expected)
		}
		return true, ""
	case OpMatches:
		return matches(actual, expected)
	case OpExists:
		if !found || actual == nil {
			return false, "expected to exist"
		}
		return true, ""
	case OpNotExists:
		if found && actual != nil {
			return false, "expected not to exist"
		}
		return true, ""
	case OpSchema:
		return e.schema(actual, expected)
	default:
		return false, fmt.Sprintf("unknown operator: %v", exp.Operator)
	}
}

// equals compares strictly: numbers of any Go type compare by value, but a
// string never equals a number.
func equals(actual, expected any) (bool, string) {
	if reflect.DeepEqual(normalize(actual), normalize(expected)) {
		return true, ""
	}
	return false, fmt.Sprintf("expected %v, got %v", formatLiteral(expected), formatLiteral(actual))
}

func oneOf(actual, expected any) (bool, string) {
	set, ok := expected.([]any)
	if !ok {
		return false, fmt.Sprintf("expected a list for oneOf, got %T", expected)
	}
	for _, item := range set {
		if passed, _ := equals(actual, item); passed {
			return true, ""
		}
	}
	return false, fmt.Sprintf("expected %v to be one of %v", formatLiteral(actual), expected)
}

func hasProperty(actual any, property string, expected any) (bool, string) {
	obj, ok := normalize(actual).(map[string]any)
	if !ok {
		return false, fmt.Sprintf("expected an object with property %q, got %T", property, actual)
	}

	value, found := obj[property]
	if !found {
		for k, v := range obj {
			if strings.EqualFold(k, property) && isHeaderMap(obj) {
				value, found = v, true
				break
			}
		}
	}
	if !found {
		return false, fmt.Sprintf("expected property %q to exist", property)
	}

	if expected == nil {
		return true, ""
	}
	if passed, _ := equals(value, expected); !passed {
		return false, fmt.Sprintf("expected property %q to be %v, got %v", property, formatLiteral(expected), formatLiteral(value))
	}
	return true, ""
}

// isHeaderMap reports whether every value is a string, in which case
// property names are matched case-insensitively.
func isHeaderMap(obj map[string]any) bool {
	for _, v := range obj {
		if _, ok := v.(string); !ok {
			return false
		}
	}
	return true
}

// include checks that an object contains a subset of fields, an array
// contains an element, or a string contains a substring.
func include(actual, expected any) (bool, string) {
	switch a := normalize(actual).(type) {
	case map[string]any:
		subset, ok := normalize(expected).(map[string]any)
		if !ok {
			return false, fmt.Sprintf("expected an object subset, got %T", expected)
		}
		if path, ok := matchSubset(a, subset, ""); !ok {
			return false, fmt.Sprintf("expected object to include %v (mismatch at %s)", formatLiteral(expected), path)
		}
		return true, ""
	case []any:
		for _, item := range a {
			if passed, _ := equals(item, expected); passed {
				return true, ""
			}
			if sub, ok := normalize(expected).(map[string]any); ok {
				if obj, ok := item.(map[string]any); ok {
					if _, match := matchSubset(obj, sub, ""); match {
						return true, ""
					}
				}
			}
		}
		return false, fmt.Sprintf("expected array to include %v", formatLiteral(expected))
	case string:
		return contains(a, expected)
	default:
		return false, fmt.Sprintf("cannot check inclusion on %T", actual)
	}
}

func matchSubset(actual, subset map[string]any, prefix string) (string, bool) {
	keys := make([]string, 0, len(subset))
	for k := range subset {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		av, ok := actual[k]
		if !ok {
			return path, false
		}
		if nested, ok := subset[k].(map[string]any); ok {
			if anested, ok := av.(map[string]any); ok {
				if p, match := matchSubset(anested, nested, path); !match {
					return p, false
				}
				continue
			}
			return path, false
		}
		if !reflect.DeepEqual(av, subset[k]) {
			return path, false
		}
	}
	return "", true
}

// compareNumeric accepts numeric strings only on the expected side, where
// resolved templates and CLI variables arrive as text. JSON strings in the
// body never compare as numbers.
func compareNumeric(actual, expected any, op string) (bool, string) {
	actualNum, aOk := toFloat64(actual)
	if _, isString := actual.(string); isString {
		aOk = false
	}
	expectedNum, eOk := toFloat64(expected)

	if !aOk || !eOk {
		return false, fmt.Sprintf("cannot compare non-numeric values: %v %s %v", actual, op, expected)
	}

	var passed bool
	switch op {
	case ">":
		passed = actualNum > expectedNum
	case ">=":
		passed = actualNum >= expectedNum
	case "<":
		passed = actualNum < expectedNum
	case "<=":
		passed = actualNum <= expectedNum
	}

	if passed {
		return true, ""
	}
	return false, fmt.Sprintf("expected %v %s %v", actual, op, expected)
}

func contains(actual, expected any) (bool, string) {
	if arr, ok := actual.([]any); ok {
		for _, item := range arr {
			if passed, _ := equals(item, expected); passed {
				return true, ""
			}
		}
		return false, fmt.Sprintf("expected array to contain %v", formatLiteral(expected))
	}

	actualStr := fmt.Sprintf("%v", actual)
	expectedStr := fmt.Sprintf("%v", expected)
	if strings.Contains(actualStr, expectedStr) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to contain '%v'", actual, expected)
}

func matches(actual, expected any) (bool, string) {
	actualStr := fmt.Sprintf("%v", actual)
	pattern := fmt.Sprintf("%v", expected)

	pattern = strings.TrimPrefix(pattern, "/")
	pattern = strings.TrimSuffix(pattern, "/")

	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid regex pattern: %v", err)
	}

	if re.MatchString(actualStr) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to match /%v/", actual, pattern)
}

// computeLength returns the length of a value, or -1 if length cannot be computed
func computeLength(actual any) int {
	switch v := actual.(type) {
	case string:
		return len(v)
	case []any:
		return len(v)
	case map[string]any:
		return len(v)
	default:
		rv := reflect.ValueOf(actual)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
			return rv.Len()
		default:
			return -1
		}
	}
}

func length(actual, expected any, atLeast bool) (bool, string) {
	expectedLen, ok := toInt(expected)
	if !ok {
		return false, fmt.Sprintf("expected length must be a number, got %v", expected)
	}

	actualLen := computeLength(actual)
	if actualLen == -1 {
		return false, fmt.Sprintf("cannot get length of %T", actual)
	}

	if atLeast {
		if actualLen >= expectedLen {
			return true, ""
		}
		return false, fmt.Sprintf("expected length of at least %d, got %d", expectedLen, actualLen)
	}
	if actualLen == expectedLen {
		return true, ""
	}
	return false, fmt.Sprintf("expected length %d, got %d", expectedLen, actualLen)
}

func typeOf(actual any) string {
	switch actual.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return reflect.TypeOf(actual).String()
	}
}

func typeCheck(actual, expected any) (bool, string) {
	expectedType := strings.ToLower(fmt.Sprintf("%v", expected))
	actualType := typeOf(actual)

	if actualType == expectedType {
		return true, ""
	}
	return false, fmt.Sprintf("expected type %s, got %s", expectedType, actualType)
}

func (e *Evaluator) schema(actual, expected any) (bool, string) {
	var schemaLoader gojsonschema.JSONLoader
	switch s := expected.(type) {
	case map[string]any:
		schemaLoader = gojsonschema.NewGoLoader(s)
	default:
		schemaPath := fmt.Sprintf("%v", expected)
		if !filepath.IsAbs(schemaPath) && e.baseDir != "" {
			schemaPath = filepath.Join(e.baseDir, schemaPath)
		}
		if err := validatePathWithinBase(schemaPath, e.baseDir); err != nil {
			return false, err.Error()
		}
		schemaData, err := os.ReadFile(schemaPath)
		if err != nil {
			return false, fmt.Sprintf("failed to read schema file: %v", err)
		}
		schemaLoader = gojsonschema.NewBytesLoader(schemaData)
	}

	actualJSON, err := json.Marshal(actual)
	if err != nil {
		return false, fmt.Sprintf("failed to marshal actual value: %v", err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(actualJSON))
	if err != nil {
		return false, fmt.Sprintf("schema validation error: %v", err)
	}

	if result.Valid() {
		return true, ""
	}

	var errors []string
	for _, desc := range result.Errors() {
		errors = append(errors, desc.String())
	}
	return false, fmt.Sprintf("schema validation failed: %s", strings.Join(errors, "; "))
}

// validatePathWithinBase checks that the resolved path stays within the base directory
func validatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}

	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}

	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}

	return nil
}

// normalize converts every numeric type to float64 and map[any]any to
// map[string]any so values decoded from YAML and JSON compare equal.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, item := range n {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, item := range n {
			out[fmt.Sprintf("%v", k)] = normalize(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(n))
		for k, item := range n {
			out[k] = item
		}
		return out
	default:
		return v
	}
}

func formatLiteral(v any) string {
	switch s := v.(type) {
	case string:
		return strconv.Quote(s)
	case nil:
		return "null"
	case map[string]any, []any:
		if data, err := json.Marshal(s); err == nil {
			return string(data)
		}
	}
	return fmt.Sprintf("%v", v)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		return int(n), n == math.Trunc(n)
	case float32:
		return int(n), float64(n) == math.Trunc(float64(n))
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, true
		}
	}
	return 0, false
}
