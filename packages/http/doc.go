// Package http is the HTTP client adapter used by the runner.
//
// It wraps the standard library's http package with:
//   - Per-request and client-wide timeouts (a negative timeout disables it)
//   - Redirect, proxy and TLS verification settings
//   - A normalized, immutable Response with case-insensitive headers
//   - Typed errors: NetworkError, StatusCodeError, MalformedRequestError
//   - curl rendering of requests for failure reports
package http
