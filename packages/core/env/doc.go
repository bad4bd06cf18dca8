// Package env resolves {{...}} templates in requests.
//
// An expression is one of:
//   - $NAME: process environment variable
//   - name(args): built-in function, see package builtin
//   - case.capture: value captured by an earlier case in the same run
//   - name: suite, config or dotenv variable
//
// A reference to a capture that is absent is an error, so callers can skip
// the dependent case instead of sending a half-resolved request.
package env
