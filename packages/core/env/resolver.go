package env

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/apicontract/packages/builtin"
	"github.com/abdul-hamid-achik/apicontract/packages/capture"
	"github.com/abdul-hamid-achik/apicontract/packages/logging"
)

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// MissingCaptureError lists capture references with no value in the run.
type MissingCaptureError struct {
	Refs []string
}

func (e *MissingCaptureError) Error() string {
	return fmt.Sprintf("captured value not available: %s", strings.Join(e.Refs, ", "))
}

// Resolver expands templates against variables, built-in functions and the
// run's captured values. It is safe for concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]any
	cases     map[string]bool
	captures  *capture.Namespace
	funcs     *builtin.Registry
	logger    logging.Logger
}

func NewResolver() *Resolver {
	return &Resolver{
		variables: make(map[string]any),
		cases:     make(map[string]bool),
		captures:  capture.NewNamespace(),
		funcs:     builtin.NewRegistry(),
		logger:    logging.Discard,
	}
}

// SetLogger sets where warnings about unresolved variables go.
func (r *Resolver) SetLogger(l logging.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l == nil {
		l = logging.Discard
	}
	r.logger = l
}

func (r *Resolver) warn(format string, args ...any) {
	r.mu.RLock()
	l := r.logger
	r.mu.RUnlock()
	l.Printf("warning: "+format, args...)
}

func (r *Resolver) SetVariables(vars map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range vars {
		r.variables[k] = v
	}
}

func (r *Resolver) SetVariable(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variables[name] = value
}

// SetCases declares which case names exist, so "case.capture" expressions
// are told apart from dotted variable names.
func (r *Resolver) SetCases(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		r.cases[name] = true
	}
}

func (r *Resolver) SetCaptures(ns *capture.Namespace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures = ns
}

func (r *Resolver) Captures() *capture.Namespace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.captures
}

func (r *Resolver) GetVariable(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variables[name]
	return v, ok
}

// isCaptureRef reports whether expr names a capture of a known case.
func (r *Resolver) isCaptureRef(expr string) bool {
	caseName, _, ok := capture.SplitRef(expr)
	if !ok {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cases[caseName]
}

type lookupResult struct {
	value    any
	resolved bool
	missing  string
	err      error
}

func (r *Resolver) lookup(expr string) lookupResult {
	if strings.HasPrefix(expr, "$") {
		name := expr[1:]
		if val, ok := os.LookupEnv(name); ok {
			return lookupResult{value: val, resolved: true}
		}
		r.warn("unresolved environment variable: $%s", name)
		return lookupResult{}
	}

	if builtin.IsCall(expr) {
		val, err := r.funcs.Call(expr)
		if err != nil {
			return lookupResult{err: err}
		}
		return lookupResult{value: val, resolved: true}
	}

	if val, ok := r.GetVariable(expr); ok {
		return lookupResult{value: val, resolved: true}
	}

	if r.isCaptureRef(expr) {
		if val, ok := r.Captures().Lookup(expr); ok {
			return lookupResult{value: val, resolved: true}
		}
		return lookupResult{missing: expr}
	}

	r.warn("unresolved variable: %s", expr)
	return lookupResult{}
}

// Resolve expands every expression in input. Unknown variables are left in
// place; missing captures yield a *MissingCaptureError.
func (r *Resolver) Resolve(input string) (string, error) {
	var missing []string
	var errs []error

	out := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])
		res := r.lookup(expr)
		switch {
		case res.err != nil:
			errs = append(errs, res.err)
		case res.missing != "":
			missing = append(missing, res.missing)
		case res.resolved:
			return capture.Format(res.value)
		}
		return match
	})

	if len(missing) > 0 {
		return out, &MissingCaptureError{Refs: missing}
	}
	if len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}

// ResolveAll resolves every value of a string map.
func (r *Resolver) ResolveAll(values map[string]string) (map[string]string, error) {
	result := make(map[string]string, len(values))
	var missing []string
	var errs []error
	for k, v := range values {
		resolved, err := r.Resolve(v)
		result[k] = resolved
		var mce *MissingCaptureError
		if errors.As(err, &mce) {
			missing = append(missing, mce.Refs...)
		} else if err != nil {
			errs = append(errs, err)
		}
	}
	if len(missing) > 0 {
		return result, &MissingCaptureError{Refs: missing}
	}
	return result, errors.Join(errs...)
}

// ResolveValue walks structured values such as a JSON body. A string made of
// exactly one expression keeps the type of the resolved value, so
// "{{create-user.id}}" becomes the number 11 rather than "11".
func (r *Resolver) ResolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		if m := variablePattern.FindStringSubmatchIndex(val); m != nil && m[0] == 0 && m[1] == len(val) {
			res := r.lookup(strings.TrimSpace(val[m[2]:m[3]]))
			switch {
			case res.err != nil:
				return val, res.err
			case res.missing != "":
				return val, &MissingCaptureError{Refs: []string{res.missing}}
			case res.resolved:
				return res.value, nil
			}
			return val, nil
		}
		return r.Resolve(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		var missing []string
		for k, item := range val {
			resolved, err := r.ResolveValue(item)
			if err != nil {
				var mce *MissingCaptureError
				if !errors.As(err, &mce) {
					return nil, err
				}
				missing = append(missing, mce.Refs...)
			}
			out[k] = resolved
		}
		if len(missing) > 0 {
			return out, &MissingCaptureError{Refs: missing}
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		var missing []string
		for i, item := range val {
			resolved, err := r.ResolveValue(item)
			if err != nil {
				var mce *MissingCaptureError
				if !errors.As(err, &mce) {
					return nil, err
				}
				missing = append(missing, mce.Refs...)
			}
			out[i] = resolved
		}
		if len(missing) > 0 {
			return out, &MissingCaptureError{Refs: missing}
		}
		return out, nil
	default:
		return v, nil
	}
}

// Expressions returns the trimmed expressions inside input, in order.
func Expressions(input string) []string {
	var exprs []string
	for _, m := range variablePattern.FindAllStringSubmatch(input, -1) {
		exprs = append(exprs, strings.TrimSpace(m[1]))
	}
	return exprs
}

// ValueExpressions collects the expressions of every string inside v.
func ValueExpressions(v any) []string {
	switch val := v.(type) {
	case string:
		return Expressions(val)
	case map[string]any:
		var exprs []string
		for _, item := range val {
			exprs = append(exprs, ValueExpressions(item)...)
		}
		return exprs
	case []any:
		var exprs []string
		for _, item := range val {
			exprs = append(exprs, ValueExpressions(item)...)
		}
		return exprs
	default:
		return nil
	}
}

// IsVariableExpr reports whether expr is a plain variable or capture
// reference, as opposed to an environment lookup or function call.
func IsVariableExpr(expr string) bool {
	return !strings.HasPrefix(expr, "$") && !builtin.IsCall(expr)
}
