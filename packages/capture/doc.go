// Package capture extracts values from responses and holds them for the
// duration of a run.
//
// A capture is declared as a name and a subject expression:
//   - body or body.<path> (gjson path, [n] brackets accepted)
//   - header <name>
//   - status
//   - duration
//
// Values land in a Namespace keyed by "case.capture". Later cases reference
// them as {{case.capture}} in templates or declare them under needs.
package capture
