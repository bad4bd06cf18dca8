// Package config loads the apicontract configuration file.
//
// It provides:
//   - JSON or YAML files (.apicontract.json, apicontract.yaml, ...)
//   - default values
//   - named environments with their variables
//   - Merge, so command-line values override the file
package config
