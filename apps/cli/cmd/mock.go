package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/logging"
	"github.com/abdul-hamid-achik/apicontract/packages/mock"
	"github.com/spf13/cobra"
)

var (
	mockPortFlag    int
	mockDelayFlag   string
	mockVerboseFlag bool
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Start the users API mock server",
	Long: `Start an HTTP server that answers like the JSONPlaceholder users
resource, so suites can run without network access.

The mock server:
- Serves ten fixed users under /users and /users/{id}
- Accepts POST, PUT, PATCH and DELETE without storing anything
- Answers 404 for unknown ids and 500 for PUT on an unknown id
- Can add artificial delays to simulate network latency

Examples:
  apicontract mock
  apicontract mock --port 3000
  apicontract mock --port 3000 --delay 100ms
  apicontract mock --verbose`,
	Args: cobra.NoArgs,
	RunE: mockCommand,
}

func init() {
	mockCmd.Flags().IntVarP(&mockPortFlag, "port", "p", 3000, "Port to run the mock server on")
	mockCmd.Flags().StringVarP(&mockDelayFlag, "delay", "d", "0", "Delay to add to all responses (e.g., 100ms, 1s)")
	mockCmd.Flags().BoolVarP(&mockVerboseFlag, "verbose", "v", false, "Log every request")
}

func mockCommand(cmd *cobra.Command, args []string) error {
	var delay time.Duration
	if mockDelayFlag != "0" {
		var err error
		delay, err = time.ParseDuration(mockDelayFlag)
		if err != nil {
			return exitWith(ExitUsageError, fmt.Errorf("invalid delay value %q: %w", mockDelayFlag, err))
		}
	}

	logger := logging.NewConsoleLogger(logging.WithWriter(cmd.ErrOrStderr()))
	server := mock.NewServer(
		mock.WithPort(mockPortFlag),
		mock.WithDelay(delay),
		mock.WithVerbose(mockVerboseFlag),
		mock.WithLogger(logger),
	)

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %d routes on http://localhost:%d\n", len(server.Routes()), mockPortFlag)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.StartWithContext(ctx)
}
