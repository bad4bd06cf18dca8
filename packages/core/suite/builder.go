package suite

import (
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/assertions"
	"github.com/abdul-hamid-achik/apicontract/packages/capture"
)

// Builder assembles a suite in Go code:
//
//	s := suite.New("users").BaseURL("https://jsonplaceholder.typicode.com").
//		Case("list-users").GET("/users").
//		Expect("status", "equals", 200).
//		Expect("body", "minLength", 1).
//		Build()
type Builder struct {
	suite *Suite
}

func New(name string) *Builder {
	return &Builder{suite: &Suite{Name: name, Variables: make(map[string]any)}}
}

func (b *Builder) BaseURL(u string) *Builder {
	b.suite.BaseURL = strings.TrimRight(u, "/")
	return b
}

func (b *Builder) Timeout(d time.Duration) *Builder {
	b.suite.Timeout = d
	return b
}

func (b *Builder) Variable(name string, value any) *Builder {
	b.suite.Variables[name] = value
	return b
}

// Case starts a new case. Cases run in the order they are added.
func (b *Builder) Case(name string) *CaseBuilder {
	c := &Case{Name: name, Request: RequestSpec{Method: "GET"}}
	b.suite.Cases = append(b.suite.Cases, c)
	return &CaseBuilder{parent: b, c: c}
}

// Build links and returns the suite.
func (b *Builder) Build() *Suite {
	b.suite.Link()
	return b.suite
}

type CaseBuilder struct {
	parent *Builder
	c      *Case
	last   []*assertions.Expectation
}

func (cb *CaseBuilder) Request(method, url string) *CaseBuilder {
	cb.c.Request.Method = strings.ToUpper(method)
	cb.c.Request.URL = url
	return cb
}

func (cb *CaseBuilder) GET(url string) *CaseBuilder    { return cb.Request("GET", url) }
func (cb *CaseBuilder) POST(url string) *CaseBuilder   { return cb.Request("POST", url) }
func (cb *CaseBuilder) PUT(url string) *CaseBuilder    { return cb.Request("PUT", url) }
func (cb *CaseBuilder) PATCH(url string) *CaseBuilder  { return cb.Request("PATCH", url) }
func (cb *CaseBuilder) DELETE(url string) *CaseBuilder { return cb.Request("DELETE", url) }

func (cb *CaseBuilder) Header(key, value string) *CaseBuilder {
	if cb.c.Request.Headers == nil {
		cb.c.Request.Headers = make(map[string]string)
	}
	cb.c.Request.Headers[key] = value
	return cb
}

func (cb *CaseBuilder) Query(key, value string) *CaseBuilder {
	if cb.c.Request.Query == nil {
		cb.c.Request.Query = make(map[string]string)
	}
	cb.c.Request.Query[key] = value
	return cb
}

// Body sets a structured body, sent as JSON, or a raw string body.
func (cb *CaseBuilder) Body(body any) *CaseBuilder {
	cb.c.Request.Body = body
	return cb
}

func (cb *CaseBuilder) Timeout(d time.Duration) *CaseBuilder {
	cb.c.Request.Timeout = d
	return cb
}

func (cb *CaseBuilder) FailOnStatusCode(fail bool) *CaseBuilder {
	cb.c.Request.FailOnStatusCode = &fail
	return cb
}

func (cb *CaseBuilder) Description(d string) *CaseBuilder {
	cb.c.Description = d
	return cb
}

func (cb *CaseBuilder) Tags(tags ...string) *CaseBuilder {
	cb.c.Tags = append(cb.c.Tags, tags...)
	return cb
}

func (cb *CaseBuilder) Skip(reason string) *CaseBuilder {
	cb.c.Skip = reason
	return cb
}

func (cb *CaseBuilder) Only() *CaseBuilder {
	cb.c.Only = true
	return cb
}

// Needs declares "case.capture" references this case depends on.
func (cb *CaseBuilder) Needs(refs ...string) *CaseBuilder {
	cb.c.Needs = append(cb.c.Needs, refs...)
	return cb
}

// Expect adds an expectation. An unknown operator marks the case malformed.
func (cb *CaseBuilder) Expect(subject, operator string, expected any) *CaseBuilder {
	op, err := assertions.ParseOperator(operator)
	if err != nil {
		cb.c.markMalformed(fmt.Sprintf("expect[%d]", len(cb.c.Expect)), "invalid expectation", err)
		cb.last = nil
		return cb
	}
	exp := &assertions.Expectation{Subject: subject, Operator: op, Expected: expected}
	cb.c.Expect = append(cb.c.Expect, exp)
	cb.last = []*assertions.Expectation{exp}
	return cb
}

// ExpectProperty adds a hasProperty expectation, optionally with a value.
func (cb *CaseBuilder) ExpectProperty(subject, property string, value ...any) *CaseBuilder {
	exp := &assertions.Expectation{Subject: subject, Operator: assertions.OpHasProperty, Property: property}
	if len(value) > 0 {
		exp.Expected = value[0]
	}
	cb.c.Expect = append(cb.c.Expect, exp)
	cb.last = []*assertions.Expectation{exp}
	return cb
}

// Note attaches a note to the expectation added last.
func (cb *CaseBuilder) Note(note string) *CaseBuilder {
	for _, e := range cb.last {
		e.Note = note
	}
	return cb
}

// Capture records the value at subject (e.g. "body.id") under name.
func (cb *CaseBuilder) Capture(name, subject string) *CaseBuilder {
	c, err := capture.Parse(name, subject)
	if err != nil {
		cb.c.markMalformed("capture", "invalid capture", err)
		return cb
	}
	cb.c.Captures = append(cb.c.Captures, c)
	return cb
}

// Case finishes this case and starts the next one.
func (cb *CaseBuilder) Case(name string) *CaseBuilder {
	return cb.parent.Case(name)
}

func (cb *CaseBuilder) Build() *Suite {
	return cb.parent.Build()
}
