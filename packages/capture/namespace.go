package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrAlreadyCaptured is returned when a key is written twice in one run.
var ErrAlreadyCaptured = errors.New("value already captured")

// Value is one captured value together with its origin.
type Value struct {
	Case  string
	Name  string
	Value any
}

// Key returns the "case.capture" reference for this value.
func (v Value) Key() string {
	return Key(v.Case, v.Name)
}

// String renders the value for template substitution. Strings are inserted
// verbatim, numbers without exponent or trailing zeros, everything else as
// JSON.
func (v Value) String() string {
	return Format(v.Value)
}

func Format(value any) string {
	switch val := value.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

func Key(caseName, name string) string {
	return caseName + "." + name
}

// SplitRef splits "case.capture" at the last dot.
func SplitRef(ref string) (caseName, name string, ok bool) {
	i := strings.LastIndex(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}

// Namespace is the run-scoped store of captured values. Each key can be
// written once; readers never observe a partially written value.
type Namespace struct {
	mu     sync.RWMutex
	values map[string]Value
}

func NewNamespace() *Namespace {
	return &Namespace{values: make(map[string]Value)}
}

func (n *Namespace) Set(caseName, name string, value any) error {
	key := Key(caseName, name)

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.values[key]; exists {
		return fmt.Errorf("%s: %w", key, ErrAlreadyCaptured)
	}
	n.values[key] = Value{Case: caseName, Name: name, Value: value}
	return nil
}

// SetAll writes every value captured by one case.
func (n *Namespace) SetAll(caseName string, values map[string]any) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := n.Set(caseName, name, values[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Namespace) Get(ref string) (Value, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.values[ref]
	return v, ok
}

// Lookup returns the raw value for ref.
func (n *Namespace) Lookup(ref string) (any, bool) {
	v, ok := n.Get(ref)
	return v.Value, ok
}

func (n *Namespace) Has(ref string) bool {
	_, ok := n.Get(ref)
	return ok
}

// Missing returns the refs that are not in the namespace, in input order.
func (n *Namespace) Missing(refs []string) []string {
	var missing []string
	for _, ref := range refs {
		if !n.Has(ref) {
			missing = append(missing, ref)
		}
	}
	return missing
}

func (n *Namespace) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.values)
}

// Snapshot copies the namespace as a ref → value map.
func (n *Namespace) Snapshot() map[string]any {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]any, len(n.values))
	for k, v := range n.values {
		out[k] = v.Value
	}
	return out
}
