package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/core/config"
	"github.com/abdul-hamid-achik/apicontract/packages/history"
	"github.com/spf13/cobra"
)

var (
	historyDBFlag     string
	historySuiteFlag  string
	historyLimitFlag  int
	historyFailedFlag bool
	historyKeepFlag   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect stored run reports",
	Long: `Inspect the run reports that 'apicontract run --history' stored.
The database defaults to the history setting of the config file.

Examples:
  apicontract history list --db runs.db
  apicontract history list --suite users --failed
  apicontract history show 5f0c3c1e-...
  apicontract history prune --keep 50`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  historyListCommand,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the cases of one run",
	Args:  cobra.ExactArgs(1),
	RunE:  historyShowCommand,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest runs of each suite",
	Args:  cobra.NoArgs,
	RunE:  historyPruneCommand,
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyDBFlag, "db", getEnvString("APICONTRACT_HISTORY", ""), "History database (env: APICONTRACT_HISTORY)")

	historyListCmd.Flags().StringVar(&historySuiteFlag, "suite", "", "Only runs of this suite")
	historyListCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "Maximum number of runs")
	historyListCmd.Flags().BoolVar(&historyFailedFlag, "failed", false, "Only runs that did not pass")

	historyPruneCmd.Flags().IntVar(&historyKeepFlag, "keep", 20, "Runs to keep per suite")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyPruneCmd)
}

func openHistory(ctx context.Context) (*history.Store, error) {
	location := historyDBFlag
	if location == "" {
		cfg, err := config.LoadConfig(configFlag)
		if err != nil {
			return nil, exitWith(ExitConfigError, err)
		}
		location = cfg.History
	}
	if location == "" {
		return nil, exitWith(ExitUsageError, errors.New("no history database (use --db or set history in the config file)"))
	}

	store, err := history.Open(ctx, location)
	if err != nil {
		return nil, exitWith(ExitConfigError, err)
	}
	return store, nil
}

func historyListCommand(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(cmd.Context(), history.Filter{
		Suite:      historySuiteFlag,
		Limit:      historyLimitFlag,
		FailedOnly: historyFailedFlag,
	})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSUITE\tSTARTED\tPASSED\tFAILED\tSKIPPED\tABORTED\tEXIT\tDURATION\tP95")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
			r.ID, r.Suite, r.StartedAt.Local().Format(time.DateTime),
			r.Passed, r.Failed, r.Skipped, r.Aborted, exitLabel(r),
			r.Duration.Round(time.Millisecond), r.P95.Round(time.Millisecond))
	}
	return tw.Flush()
}

func exitLabel(r *history.Run) string {
	label := strconv.Itoa(r.ExitCode)
	if r.Incomplete {
		label += " (incomplete)"
	}
	return label
}

func historyShowCommand(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Get(cmd.Context(), args[0])
	if errors.Is(err, history.ErrNoRuns) {
		return exitWith(ExitUsageError, err)
	}
	if err != nil {
		return err
	}
	cases, err := store.Cases(cmd.Context(), run.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s\n", run.ID)
	fmt.Fprintf(out, "Suite:   %s (%s)\n", run.Suite, run.Path)
	fmt.Fprintf(out, "Started: %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Result:  %d passed, %d failed, %d aborted, %d skipped, %d total, exit %s\n",
		run.Passed, run.Failed, run.Aborted, run.Skipped, run.Total, exitLabel(run))
	if run.AbortReason != "" {
		fmt.Fprintf(out, "Aborted: %s\n", run.AbortReason)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCASE\tSTATUS\tHTTP\tFAILURES\tDURATION\tERROR")
	for _, c := range cases {
		httpStatus := "-"
		if c.StatusCode > 0 {
			httpStatus = strconv.Itoa(c.StatusCode)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.Ordinal, c.Name, c.Status, httpStatus, c.Failures, c.Duration.Round(time.Millisecond), c.Error)
	}
	return tw.Flush()
}

func historyPruneCommand(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.Prune(cmd.Context(), historyKeepFlag)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d runs from %s\n", deleted, store.Path())
	return nil
}
