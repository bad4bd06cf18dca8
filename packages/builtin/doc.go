// Package builtin provides the functions available inside {{...}} templates.
//
// Available functions:
//   - uuid(): random UUID v4
//   - now(): current UTC time, RFC 3339
//   - date(layout): current UTC date, Go layout, default 2006-01-02
//   - timestamp(), timestampMs(): Unix time
//   - random(min, max): random integer in range, inclusive
//   - randomString(length), randomEmail(): random test data
//   - base64(value), base64Decode(value), sha256(value), urlEncode(value)
//   - env(name, fallback): environment variable lookup
package builtin
