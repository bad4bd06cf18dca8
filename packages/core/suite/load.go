package suite

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/assertions"
	"github.com/abdul-hamid-achik/apicontract/packages/capture"
	"gopkg.in/yaml.v3"
)

// Duration accepts "10s" style strings, integers as milliseconds, and
// "off" to disable a timeout.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", n.Line)
	}
	switch n.ShortTag() {
	case "!!int":
		ms, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	case "!!str":
		switch strings.ToLower(n.Value) {
		case "off", "none", "disabled":
			*d = Duration(-1)
			return nil
		}
		parsed, err := time.ParseDuration(n.Value)
		if err != nil {
			return fmt.Errorf("line %d: invalid duration %q", n.Line, n.Value)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("line %d: invalid duration %q", n.Line, n.Value)
	}
}

// skipValue accepts skip: true or skip: "reason".
type skipValue string

func (s *skipValue) UnmarshalYAML(n *yaml.Node) error {
	if n.ShortTag() == "!!bool" {
		var b bool
		if err := n.Decode(&b); err != nil {
			return err
		}
		if b {
			*s = "skipped"
		}
		return nil
	}
	var reason string
	if err := n.Decode(&reason); err != nil {
		return err
	}
	*s = skipValue(reason)
	return nil
}

type fileSuite struct {
	Name      string         `yaml:"name"`
	BaseURL   string         `yaml:"baseUrl"`
	Timeout   Duration       `yaml:"timeout"`
	Variables map[string]any `yaml:"variables"`
	Cases     []fileCase     `yaml:"cases"`
}

type fileCase struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Tags        []string    `yaml:"tags"`
	Skip        skipValue   `yaml:"skip"`
	Only        bool        `yaml:"only"`
	Needs       []string    `yaml:"needs"`
	Request     fileRequest `yaml:"request"`
	Expect      []yaml.Node `yaml:"expect"`
	Capture     yaml.Node   `yaml:"capture"`
}

type fileRequest struct {
	Method           string            `yaml:"method"`
	URL              string            `yaml:"url"`
	Headers          map[string]string `yaml:"headers"`
	Query            map[string]string `yaml:"query"`
	Body             any               `yaml:"body"`
	Timeout          Duration          `yaml:"timeout"`
	FailOnStatusCode *bool             `yaml:"failOnStatusCode"`
}

// Load reads a suite from a YAML or JSON file.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, withPath(err, path)
	}
	s.Path = path
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

func withPath(err error, path string) error {
	if pe, ok := err.(*ParseError); ok {
		pe.Path = path
		return pe
	}
	return &ParseError{Path: path, Err: err}
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// Parse decodes a suite document. Unknown keys are rejected.
func Parse(data []byte) (*Suite, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var fs fileSuite
	if err := dec.Decode(&fs); err != nil {
		pe := &ParseError{Path: "<input>", Err: err}
		if m := yamlLinePattern.FindStringSubmatch(err.Error()); m != nil {
			pe.Line, _ = strconv.Atoi(m[1])
		}
		return nil, pe
	}

	s := &Suite{
		Name:      fs.Name,
		BaseURL:   strings.TrimRight(fs.BaseURL, "/"),
		Timeout:   time.Duration(fs.Timeout),
		Variables: fs.Variables,
	}
	if s.Variables == nil {
		s.Variables = make(map[string]any)
	}

	for i := range fs.Cases {
		s.Cases = append(s.Cases, buildCase(&fs.Cases[i]))
	}
	s.Link()
	return s, nil
}

func buildCase(fc *fileCase) *Case {
	c := &Case{
		Name:        strings.TrimSpace(fc.Name),
		Description: fc.Description,
		Tags:        fc.Tags,
		Skip:        string(fc.Skip),
		Only:        fc.Only,
		Needs:       fc.Needs,
		Request: RequestSpec{
			Method:           strings.ToUpper(strings.TrimSpace(fc.Request.Method)),
			URL:              strings.TrimSpace(fc.Request.URL),
			Headers:          fc.Request.Headers,
			Query:            fc.Request.Query,
			Body:             fc.Request.Body,
			Timeout:          time.Duration(fc.Request.Timeout),
			FailOnStatusCode: fc.Request.FailOnStatusCode,
		},
	}
	if c.Request.Method == "" {
		c.Request.Method = "GET"
	}

	for i := range fc.Expect {
		exps, err := parseExpectation(&fc.Expect[i])
		if err != nil {
			c.markMalformed(fmt.Sprintf("expect[%d]", i), "invalid expectation", err)
			continue
		}
		c.Expect = append(c.Expect, exps...)
	}

	captures, err := parseCaptures(&fc.Capture)
	if err != nil {
		c.markMalformed("capture", "invalid capture", err)
	}
	c.Captures = captures
	return c
}

// parseExpectation decodes one expect entry:
//
//	- status: 200
//	- status: {oneOf: [400, 201]}
//	  note: the backend does not validate input
//	- body[0]: {hasProperty: email}
//
// A scalar or sequence value is compared with equals. A mapping value is
// always an operator map, so objects are compared with {equals: {...}} or
// {include: {...}} and a misspelled operator is reported.
func parseExpectation(n *yaml.Node) ([]*assertions.Expectation, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expectation must be a mapping of subject to value", n.Line)
	}

	var note string
	var exps []*assertions.Expectation
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		if key.Value == "note" {
			if err := value.Decode(&note); err != nil {
				return nil, fmt.Errorf("line %d: note: %w", value.Line, err)
			}
			continue
		}
		parsed, err := parseSubject(key.Value, value)
		if err != nil {
			return nil, err
		}
		exps = append(exps, parsed...)
	}

	if len(exps) == 0 {
		return nil, fmt.Errorf("line %d: expectation has no subject", n.Line)
	}
	for _, e := range exps {
		e.Note = note
	}
	return exps, nil
}

func parseSubject(subject string, value *yaml.Node) ([]*assertions.Expectation, error) {
	if value.Kind != yaml.MappingNode {
		var expected any
		if err := value.Decode(&expected); err != nil {
			return nil, fmt.Errorf("line %d: %w", value.Line, err)
		}
		return []*assertions.Expectation{{Subject: subject, Operator: assertions.OpEquals, Expected: expected}}, nil
	}

	var exps []*assertions.Expectation
	for i := 0; i+1 < len(value.Content); i += 2 {
		opNode, operand := value.Content[i], value.Content[i+1]
		op, err := assertions.ParseOperator(opNode.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", opNode.Line, err)
		}
		exp := &assertions.Expectation{Subject: subject, Operator: op}
		if op == assertions.OpHasProperty {
			if err := decodeHasProperty(exp, operand); err != nil {
				return nil, err
			}
		} else if err := operand.Decode(&exp.Expected); err != nil {
			return nil, fmt.Errorf("line %d: %w", operand.Line, err)
		}
		exps = append(exps, exp)
	}
	return exps, nil
}

// decodeHasProperty accepts "name" or [name, value].
func decodeHasProperty(exp *assertions.Expectation, n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		exp.Property = n.Value
		return nil
	case yaml.SequenceNode:
		if len(n.Content) != 2 {
			return fmt.Errorf("line %d: hasProperty takes a name or [name, value]", n.Line)
		}
		exp.Property = n.Content[0].Value
		return n.Content[1].Decode(&exp.Expected)
	default:
		return fmt.Errorf("line %d: hasProperty takes a name or [name, value]", n.Line)
	}
}

func parseCaptures(n *yaml.Node) ([]*capture.Capture, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: capture must be a mapping of name to subject", n.Line)
	}

	var captures []*capture.Capture
	for i := 0; i+1 < len(n.Content); i += 2 {
		c, err := capture.Parse(n.Content[i].Value, n.Content[i+1].Value)
		if err != nil {
			return captures, fmt.Errorf("line %d: %w", n.Content[i].Line, err)
		}
		captures = append(captures, c)
	}
	return captures, nil
}

// Discover expands directories into the suite files they contain
// (*.yaml, *.yml, *.json), skipping configuration files.
func Discover(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if IsSuiteFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

var configNames = map[string]bool{
	".apicontract.json": true,
	".apicontract.yaml": true,
	".apicontract.yml":  true,
	"apicontract.json":  true,
	"apicontract.yaml":  true,
	"apicontract.yml":   true,
}

func IsSuiteFile(path string) bool {
	if configNames[filepath.Base(path)] {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
