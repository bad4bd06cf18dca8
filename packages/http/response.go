package http

import (
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// Response is the normalized descriptor of a completed exchange. Header
// keys are stored lower-cased.
type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration

	jsonOnce sync.Once
	json     gjson.Result
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

// JSON returns the parsed body. The result does not exist when the body is
// not JSON.
func (r *Response) JSON() gjson.Result {
	r.jsonOnce.Do(func() {
		if r.IsJSON() || gjson.ValidBytes(r.Body) {
			r.json = gjson.ParseBytes(r.Body)
		}
	})
	return r.json
}

// BodyValue returns the decoded JSON body, or the raw body as a string.
func (r *Response) BodyValue() any {
	if j := r.JSON(); j.Exists() {
		return j.Value()
	}
	return r.BodyString()
}

func (r *Response) Header(key string) string {
	if v, ok := r.Headers[strings.ToLower(key)]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Response) HasHeader(key string) bool {
	for k := range r.Headers {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

func (r *Response) IsJSON() bool {
	return strings.Contains(r.ContentType(), "json")
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500
}

func (r *Response) DurationMs() int64 {
	return r.Duration.Milliseconds()
}
