package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/apicontract/packages/core/suite"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <file|directory>...",
	Short: "List the cases of each suite",
	Long: `List the cases defined in contract suites in execution order, with
their tags and the captures they depend on.

Examples:
  apicontract list users.yaml
  apicontract list ./contracts/`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := suite.Discover(args)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	if len(files) == 0 {
		return exitWith(ExitUsageError, errors.New("no suite files found (*.yaml, *.yml, *.json)"))
	}

	out := cmd.OutOrStdout()
	for _, file := range files {
		s, err := suite.Load(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error loading %s: %v\n", file, err)
			continue
		}

		fmt.Fprintf(out, "\n%s (%s):\n", file, s.Name)
		for _, c := range s.Cases {
			name := c.Name
			if c.Request.Method != "" {
				name = fmt.Sprintf("%s  %s %s", c.Name, c.Request.Method, c.Request.URL)
			}
			fmt.Fprintf(out, "  %d. %s\n", c.Ordinal, name)
			if len(c.Tags) > 0 {
				fmt.Fprintf(out, "     tags: %s\n", strings.Join(c.Tags, ", "))
			}
			if deps := c.Dependencies(); len(deps) > 0 {
				fmt.Fprintf(out, "     needs: %s\n", strings.Join(deps, ", "))
			}
			if c.Skip != "" {
				fmt.Fprintf(out, "     skip: %s\n", c.Skip)
			}
			if c.Malformed != nil {
				fmt.Fprintf(out, "     malformed: %v\n", c.Malformed)
			}
		}
	}

	return nil
}
