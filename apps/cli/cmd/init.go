package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/apicontract/packages/core/config"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new apicontract project",
	Long: `Initialize a new apicontract project in the current directory.

This creates:
  - apicontract.yaml  - Configuration file with environments
  - users.yaml        - Example suite for the bundled mock server

Examples:
  apicontract init
  apicontract init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

const exampleSuite = `name: users
baseUrl: "{{baseUrl}}"
cases:
  - name: list-users
    tags: [smoke]
    request:
      url: /users
    expect:
      - status: 200
      - body: {type: array, minLength: 1}
      - header content-type: {contains: application/json}

  - name: create-user
    tags: [crud]
    request:
      method: POST
      url: /users
      body:
        name: Test QA
        username: testqa
        email: qa@example.com
    expect:
      - status: 201
      - body: {include: {name: Test QA}}
    capture:
      userId: body.id

  - name: get-created-user
    tags: [crud]
    request:
      url: /users/{{create-user.userId}}
      failOnStatusCode: false
    expect:
      - status: {oneOf: [200, 404]}
        note: created users are not persisted
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, "apicontract.yaml")
	exampleFile := filepath.Join(cwd, "users.yaml")

	if !forceInit {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return exitWith(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.DefaultEnvironment = "local"
	cfg.Headers = map[string]string{
		"User-Agent": "apicontract/" + version,
	}
	cfg.Environments = map[string]map[string]any{
		"local": {
			"baseUrl": "http://localhost:3000",
		},
		"jsonplaceholder": {
			"baseUrl": "https://jsonplaceholder.typicode.com",
		},
	}

	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(exampleFile, []byte(exampleSuite), 0644); err != nil {
		return fmt.Errorf("failed to create example suite: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\napicontract project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Start 'apicontract mock' and run 'apicontract run users.yaml' to execute the example suite.\n")

	return nil
}
