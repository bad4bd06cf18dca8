package suite

import (
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/assertions"
	"github.com/abdul-hamid-achik/apicontract/packages/capture"
)

type Suite struct {
	Name      string
	BaseURL   string
	Timeout   time.Duration
	Variables map[string]any
	Cases     []*Case
	// Path is the file the suite was loaded from, empty for built suites.
	Path string
}

type Case struct {
	Name        string
	Ordinal     int
	Description string
	Tags        []string
	Skip        string
	Only        bool
	// Needs lists declared dependencies as "case.capture" references.
	Needs    []string
	Request  RequestSpec
	Expect   []*assertions.Expectation
	Captures []*capture.Capture

	// Malformed is set when the case cannot be executed as written.
	Malformed *MalformedSpecError

	dependencies []string
}

type RequestSpec struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	// Body is sent verbatim when it is a string and encoded as JSON otherwise.
	Body any
	// Timeout zero means the runner default; negative disables it.
	Timeout          time.Duration
	FailOnStatusCode *bool
}

// FailsOnStatusCode reports the effective failOnStatusCode setting.
func (r RequestSpec) FailsOnStatusCode() bool {
	if r.FailOnStatusCode == nil {
		return true
	}
	return *r.FailOnStatusCode
}

// Dependencies returns every "case.capture" reference the case needs, from
// needs and from templates, without duplicates. Valid after Link.
func (c *Case) Dependencies() []string {
	return c.dependencies
}

// DependsOn returns the names of the cases this case depends on.
func (c *Case) DependsOn() []string {
	seen := make(map[string]bool)
	var names []string
	for _, ref := range c.dependencies {
		name, _, _ := capture.SplitRef(ref)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func (c *Case) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CaptureNames returns the capture names declared by the case.
func (c *Case) CaptureNames() []string {
	names := make([]string, len(c.Captures))
	for i, cp := range c.Captures {
		names[i] = cp.Name
	}
	return names
}

func (s *Suite) Case(name string) *Case {
	for _, c := range s.Cases {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *Suite) CaseNames() []string {
	names := make([]string, len(s.Cases))
	for i, c := range s.Cases {
		names[i] = c.Name
	}
	return names
}

// HasOnly reports whether any case is marked only.
func (s *Suite) HasOnly() bool {
	for _, c := range s.Cases {
		if c.Only {
			return true
		}
	}
	return false
}

// Malformed returns the cases that failed validation.
func (s *Suite) Malformed() []*Case {
	var out []*Case
	for _, c := range s.Cases {
		if c.Malformed != nil {
			out = append(out, c)
		}
	}
	return out
}

// MalformedSpecError describes a case that cannot be executed as written.
type MalformedSpecError struct {
	Case   string
	Field  string
	Reason string
	Err    error
}

func (e *MalformedSpecError) Error() string {
	msg := fmt.Sprintf("case %q", e.Case)
	if e.Field != "" {
		msg += fmt.Sprintf(" %s", e.Field)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedSpecError) Unwrap() error {
	return e.Err
}

// ParseError reports a suite file that could not be read at all.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
