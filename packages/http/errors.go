package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// NetworkReason classifies a transport failure.
type NetworkReason string

const (
	ReasonTimeout           NetworkReason = "timeout"
	ReasonConnectionRefused NetworkReason = "connection refused"
	ReasonDNS               NetworkReason = "dns failure"
	ReasonCanceled          NetworkReason = "canceled"
	ReasonOther             NetworkReason = "network error"
)

// NetworkError is returned when no response could be obtained.
type NetworkError struct {
	Reason NetworkReason
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Method, e.URL, e.Reason, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Timeout() bool {
	return e.Reason == ReasonTimeout
}

func newNetworkError(req *Request, err error) *NetworkError {
	return &NetworkError{
		Reason: classify(err),
		Method: req.Method,
		URL:    req.URL,
		Err:    err,
	}
}

func classify(err error) NetworkReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return ReasonTimeout
		}
		return ReasonDNS
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonConnectionRefused
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}

	return ReasonOther
}

// StatusCodeError accompanies a response whose status is not 2xx/3xx when
// the request asked to fail on status codes.
type StatusCodeError struct {
	StatusCode int
	Status     string
	Method     string
	URL        string
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("%s %s returned %s (set failOnStatusCode: false to assert on it)", e.Method, e.URL, e.Status)
}

// MalformedRequestError reports a request that can never be sent.
type MalformedRequestError struct {
	Field  string
	Value  string
	Reason string
}

func (e *MalformedRequestError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}
