package runner

import (
	"fmt"
	"strings"
)

// DependencyUnsatisfiedError is the reason a case is skipped when a value it
// needs was never captured, because its producer failed, was skipped or
// did not find the value.
type DependencyUnsatisfiedError struct {
	Case    string
	Missing []string
}

func (e *DependencyUnsatisfiedError) Error() string {
	return fmt.Sprintf("case %q needs values that were not captured: %s", e.Case, strings.Join(e.Missing, ", "))
}
