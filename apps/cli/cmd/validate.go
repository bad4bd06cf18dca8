package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/apicontract/packages/core/suite"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>...",
	Short: "Validate suites without sending requests",
	Long: `Load contract suites and report syntax errors and malformed cases
without executing them. Exits with 2 when any suite or case is invalid.

Examples:
  apicontract validate users.yaml
  apicontract validate ./contracts/`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := suite.Discover(args)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	if len(files) == 0 {
		return exitWith(ExitUsageError, errors.New("no suite files found (*.yaml, *.yml, *.json)"))
	}

	hasErrors := false
	for _, file := range files {
		s, err := suite.Load(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
			continue
		}

		malformed := s.Malformed()
		if len(malformed) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d cases)\n", file, len(s.Cases))
			continue
		}
		hasErrors = true
		fmt.Fprintf(cmd.ErrOrStderr(), "Invalid: %s\n", file)
		for _, c := range malformed {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %v\n", c.Malformed)
		}
	}

	if hasErrors {
		return exitWith(ExitMalformed, errors.New("validation failed"))
	}
	return nil
}
