// Package cmd implements the apicontract CLI commands using Cobra.
//
// Available commands:
//   - run: Execute contract suites and report their outcomes
//   - validate: Load suites and report malformed cases without sending requests
//   - list: Display the cases of each suite
//   - init: Create a config file and an example suite
//   - mock: Serve the users API the example suites are written against
//   - history: Inspect and prune stored run reports
//   - version: Show version information
//
// Exit codes follow the run report: 0 when every executed case passed, 1
// on a failed case or an interrupted run, 2 when a case was aborted as
// malformed, 3 for configuration errors and 64 for usage errors.
package cmd
