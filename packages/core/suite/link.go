package suite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/apicontract/packages/capture"
	"github.com/abdul-hamid-achik/apicontract/packages/core/env"
	"github.com/abdul-hamid-achik/apicontract/packages/http"
)

func (c *Case) markMalformed(field, reason string, err error) {
	if c.Malformed != nil {
		return
	}
	c.Malformed = &MalformedSpecError{Case: c.Name, Field: field, Reason: reason, Err: err}
}

// Link numbers the cases, validates each one and computes dependencies.
// A case may only depend on captures of cases declared before it. Every
// case sharing a name with another is malformed. Link is idempotent.
func (s *Suite) Link() {
	declared := make(map[string]*Case, len(s.Cases))
	names := make(map[string]int, len(s.Cases))

	for i, c := range s.Cases {
		c.Ordinal = i + 1
		c.dependencies = nil

		if strings.TrimSpace(c.Name) == "" {
			c.Name = fmt.Sprintf("case-%d", c.Ordinal)
			c.markMalformed("name", "is required", nil)
		}
		names[c.Name]++
	}

	for _, c := range s.Cases {
		if names[c.Name] > 1 {
			c.markMalformed("name", "is declared more than once", nil)
		}
		if _, ok := declared[c.Name]; !ok {
			declared[c.Name] = c
		}

		s.checkRequest(c)
		for j, exp := range c.Expect {
			if err := exp.Validate(); err != nil {
				c.markMalformed(fmt.Sprintf("expect[%d]", j), "invalid expectation", err)
			}
		}

		refs := make([]string, 0, len(c.Needs))
		refs = append(refs, c.Needs...)
		refs = append(refs, s.templateRefs(c)...)

		seen := make(map[string]bool)
		for _, ref := range refs {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			s.addDependency(c, ref, declared)
		}
	}
}

func (s *Suite) checkRequest(c *Case) {
	if err := http.ValidateMethod(c.Request.Method); err != nil {
		c.markMalformed("request.method", "unsupported method", err)
		return
	}
	u := strings.TrimSpace(c.Request.URL)
	if u == "" {
		c.markMalformed("request.url", "is required", nil)
		return
	}
	if isAbsolute(u) {
		if len(env.Expressions(u)) == 0 {
			if err := http.ValidateURL(u); err != nil {
				c.markMalformed("request.url", "invalid URL", err)
			}
		}
		return
	}
	if s.BaseURL == "" && !strings.HasPrefix(u, "{{") {
		c.markMalformed("request.url", "is relative but the suite has no baseUrl", nil)
	}
}

func isAbsolute(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// templateRefs returns the expressions used in the request and in expected
// values that name a capture of a case in this suite. Other dotted
// expressions are left to variable resolution.
func (s *Suite) templateRefs(c *Case) []string {
	var exprs []string
	exprs = append(exprs, env.Expressions(c.Request.URL)...)
	for _, k := range sortedKeys(c.Request.Headers) {
		exprs = append(exprs, env.Expressions(c.Request.Headers[k])...)
	}
	for _, k := range sortedKeys(c.Request.Query) {
		exprs = append(exprs, env.Expressions(c.Request.Query[k])...)
	}
	exprs = append(exprs, env.ValueExpressions(c.Request.Body)...)
	for _, exp := range c.Expect {
		exprs = append(exprs, env.ValueExpressions(exp.Expected)...)
	}

	var refs []string
	for _, expr := range exprs {
		if !env.IsVariableExpr(expr) {
			continue
		}
		if _, isVar := s.Variables[expr]; isVar {
			continue
		}
		if caseName, _, ok := capture.SplitRef(expr); ok && s.Case(caseName) != nil {
			refs = append(refs, expr)
		}
	}
	return refs
}

func (s *Suite) addDependency(c *Case, ref string, declared map[string]*Case) {
	caseName, name, ok := capture.SplitRef(ref)
	if !ok {
		c.markMalformed("needs", fmt.Sprintf("%q is not a case.capture reference", ref), nil)
		return
	}
	if caseName == c.Name {
		c.markMalformed("needs", fmt.Sprintf("%q refers to the case itself", ref), nil)
		return
	}
	producer, ok := declared[caseName]
	if !ok {
		if s.Case(caseName) != nil {
			c.markMalformed("needs", fmt.Sprintf("%q refers to a case declared later", ref), nil)
		} else {
			c.markMalformed("needs", fmt.Sprintf("%q refers to unknown case %q", ref, caseName), nil)
		}
		return
	}
	found := false
	for _, cp := range producer.Captures {
		if cp.Name == name {
			found = true
			break
		}
	}
	if !found {
		c.markMalformed("needs", fmt.Sprintf("case %q does not capture %q", caseName, name), nil)
		return
	}
	c.dependencies = append(c.dependencies, ref)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
