package capture

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/apicontract/packages/http"
	"github.com/tidwall/gjson"
)

type Source int

const (
	SourceBody Source = iota
	SourceHeader
	SourceStatus
	SourceDuration
)

func (s Source) String() string {
	switch s {
	case SourceBody:
		return "body"
	case SourceHeader:
		return "header"
	case SourceStatus:
		return "status"
	case SourceDuration:
		return "duration"
	default:
		return "unknown"
	}
}

// Capture names one value to pull out of a response.
type Capture struct {
	Name   string
	Source Source
	Path   string
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Parse builds a Capture from a name and a subject expression such as
// "body.id" or "header Location".
func Parse(name, subject string) (*Capture, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid capture name %q", name)
	}
	subject = strings.TrimSpace(subject)
	c := &Capture{Name: name}
	switch {
	case subject == "status":
		c.Source = SourceStatus
	case subject == "duration":
		c.Source = SourceDuration
	case subject == "body":
		c.Source = SourceBody
	case strings.HasPrefix(subject, "body.") || strings.HasPrefix(subject, "body["):
		c.Source = SourceBody
		c.Path = bodyPath(strings.TrimPrefix(subject, "body"))
	case strings.HasPrefix(subject, "header ") || strings.HasPrefix(subject, "header."):
		c.Source = SourceHeader
		c.Path = strings.TrimSpace(subject[len("header "):])
		if c.Path == "" {
			return nil, fmt.Errorf("capture %s: header name is empty", name)
		}
	default:
		return nil, fmt.Errorf("capture %s: unsupported subject %q", name, subject)
	}
	return c, nil
}

var bracketPattern = regexp.MustCompile(`\[(\d+)\]`)

func bodyPath(path string) string {
	path = bracketPattern.ReplaceAllString(path, ".$1")
	return strings.TrimPrefix(path, ".")
}

func (c *Capture) String() string {
	switch c.Source {
	case SourceHeader:
		return "header " + c.Path
	case SourceBody:
		if c.Path == "" {
			return "body"
		}
		return "body." + c.Path
	default:
		return c.Source.String()
	}
}

type Extractor struct {
	response *http.Response
	bodyJSON gjson.Result
}

func NewExtractor(resp *http.Response) *Extractor {
	return &Extractor{
		response: resp,
		bodyJSON: resp.JSON(),
	}
}

func (e *Extractor) Extract(capture *Capture) (any, bool) {
	switch capture.Source {
	case SourceBody:
		return e.extractFromBody(capture.Path)
	case SourceHeader:
		return e.extractFromHeader(capture.Path)
	case SourceStatus:
		return e.response.StatusCode, true
	case SourceDuration:
		return e.response.DurationMs(), true
	default:
		return nil, false
	}
}

func (e *Extractor) extractFromBody(path string) (any, bool) {
	if !e.bodyJSON.Exists() {
		if path == "" {
			return e.response.BodyString(), true
		}
		return nil, false
	}

	if path == "" {
		return e.bodyJSON.Value(), true
	}

	result := e.bodyJSON.Get(path)
	if !result.Exists() || result.Type == gjson.Null {
		return nil, false
	}
	return result.Value(), true
}

func (e *Extractor) extractFromHeader(name string) (any, bool) {
	if !e.response.HasHeader(name) {
		return nil, false
	}
	return e.response.Header(name), true
}

// ExtractAll returns the values found and the names of captures that had
// nothing to extract, sorted.
func ExtractAll(resp *http.Response, captures []*Capture) (map[string]any, []string) {
	extractor := NewExtractor(resp)
	results := make(map[string]any)
	var missing []string

	for _, c := range captures {
		if value, ok := extractor.Extract(c); ok {
			results[c.Name] = value
		} else {
			missing = append(missing, c.Name)
		}
	}

	sort.Strings(missing)
	return results, missing
}
