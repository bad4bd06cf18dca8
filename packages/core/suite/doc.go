// Package suite defines test suites: an ordered list of cases, each with a
// request, expectations and captures.
//
// Suites come from YAML or JSON files (Load, Parse) or from the fluent
// builder (New). Both paths end in Link, which numbers the cases, checks
// them and works out which captured values each case depends on. Problems
// local to one case are recorded on the case as a *MalformedSpecError
// instead of failing the whole load, so the rest of the suite still runs.
package suite
