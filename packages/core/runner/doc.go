// Package runner executes suites.
//
// Each case moves from pending to running to one terminal state:
//   - completed: the request went out and the expectations were evaluated
//   - skipped: filtered out, marked skip, a needed captured value was
//     absent, or the run was canceled or aborted before the case ran
//   - aborted: the case is malformed and cannot be executed as written
//
// Cases run in declared order by default. In parallel mode a case waits
// only for the cases whose captures it needs. Captured values live in a
// namespace scoped to one Run call.
package runner
