// Package assertions evaluates declarative expectations against an HTTP
// response.
//
// Supported subjects:
//   - status, duration (milliseconds)
//   - headers, header <name>
//   - body, body.<path> (gjson path syntax, [n] brackets accepted)
//   - capture <case>.<name> (a value captured earlier in the run)
//
// Supported operators: equals, notEquals, oneOf, notOneOf, hasProperty,
// include, lessThan, lessOrEqual, greaterThan, greaterOrEqual, length,
// minLength, type, contains, notContains, matches, exists, notExists, schema.
//
// Every expectation is evaluated; a failure never prevents its siblings from
// being evaluated.
package assertions
