package http

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/alessio/shellescape"
)

// SupportedMethods lists the methods a Request may use.
var SupportedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

type Request struct {
	Method      string
	URL         string
	Headers     map[string]string
	QueryParams map[string]string
	Body        string
	// Timeout overrides the client timeout when non-zero. A negative value
	// disables the deadline for this request.
	Timeout time.Duration
	// FailOnStatusCode makes Send return a StatusCodeError alongside the
	// response when the status is not 2xx/3xx.
	FailOnStatusCode bool
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:           strings.ToUpper(method),
		URL:              requestURL,
		Headers:          make(map[string]string),
		QueryParams:      make(map[string]string),
		FailOnStatusCode: true,
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) SetBody(body string) *Request {
	r.Body = body
	return r
}

// SetJSONBody encodes v as the request body and sets a JSON content type
// unless one was already given.
func (r *Request) SetJSONBody(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding body: %w", err)
	}
	r.Body = string(data)
	if r.Header("Content-Type") == "" {
		r.SetHeader("Content-Type", "application/json")
	}
	return nil
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

func (r *Request) SetQueryParam(key, value string) *Request {
	r.QueryParams[key] = value
	return r
}

func (r *Request) SetFailOnStatusCode(fail bool) *Request {
	r.FailOnStatusCode = fail
	return r
}

// Header looks up a request header case-insensitively.
func (r *Request) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Request) BuildURL() string {
	if len(r.QueryParams) == 0 {
		return r.URL
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}

	q := u.Query()
	for k, v := range r.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Validate checks the method and URL.
func (r *Request) Validate() error {
	if err := ValidateMethod(r.Method); err != nil {
		return err
	}
	return ValidateURL(r.URL)
}

func ValidateMethod(method string) error {
	for _, m := range SupportedMethods {
		if method == m {
			return nil
		}
	}
	return &MalformedRequestError{
		Field:  "method",
		Value:  method,
		Reason: "supported methods are " + strings.Join(SupportedMethods, ", "),
	}
}

// ValidateURL checks that a URL is well-formed and uses an allowed scheme
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return &MalformedRequestError{Field: "url", Reason: "url is required"}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return &MalformedRequestError{Field: "url", Value: rawURL, Reason: err.Error()}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return &MalformedRequestError{Field: "url", Value: rawURL, Reason: "only http and https are allowed"}
	}

	if u.Host == "" {
		return &MalformedRequestError{Field: "url", Value: rawURL, Reason: "url must have a host"}
	}

	return nil
}

// Curl renders the request as a shell-safe curl command line.
func (r *Request) Curl() string {
	var b commandBuilder
	b.add("curl", "-X", r.Method)

	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.add("-H", k+": "+r.Headers[k])
	}

	if r.Body != "" {
		b.add("--data-raw", r.Body)
	}
	b.add(r.BuildURL())
	return b.String()
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}
