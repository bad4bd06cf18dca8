package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/core/config"
	"github.com/abdul-hamid-achik/apicontract/packages/core/runner"
	"github.com/abdul-hamid-achik/apicontract/packages/core/suite"
	"github.com/abdul-hamid-achik/apicontract/packages/export/metrics"
	"github.com/abdul-hamid-achik/apicontract/packages/history"
	"github.com/abdul-hamid-achik/apicontract/packages/logging"
	"github.com/abdul-hamid-achik/apicontract/packages/notify"
	"github.com/abdul-hamid-achik/apicontract/packages/output"
	"github.com/abdul-hamid-achik/apicontract/packages/report"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <file|directory>...",
	Short: "Run API contract suites",
	Long: `Run the contract suites defined in YAML or JSON files. Directories are
searched recursively; configuration files are never treated as suites.

Examples:
  apicontract run users.yaml
  apicontract run users.yaml --env staging
  apicontract run ./contracts/ --tags smoke
  apicontract run ./contracts/ --parallel --concurrency 10
  apicontract run users.yaml --var token=abc -H "X-Trace: 1"
  apicontract run ./contracts/ -o junit --output-file report.xml
  apicontract run ./contracts/ -o xlsx --output-file report.xlsx
  apicontract run ./contracts/ --history sqlite://runs.db --notify-on recovery`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	envFlag             string
	envFileFlag         string
	nameFlag            string
	tagsFlag            string
	verboseFlag         bool
	quietFlag           bool
	bailFlag            bool
	timeoutFlag         string
	noColorFlag         bool
	dryRunFlag          bool
	outputFlag          string
	outputFileFlag      string
	parallelFlag        bool
	concurrencyFlag     int
	rateLimitFlag       float64
	watchFlag           bool
	proxyFlag           string
	insecureFlag        bool
	failOnMalformedFlag bool
	headerFlags         []string
	varFlags            []string
	historyFlag         string
	waitForFlag         string

	// Notification flags
	notifyOnFlag     string
	slackWebhookFlag string
	slackChannelFlag string
	teamsWebhookFlag string

	// Metrics flags
	prometheusFileFlag  string
	metricsJSONFileFlag string
	datadogAPIKeyFlag   string
	datadogSiteFlag     string
	datadogTagsFlag     string
)

func init() {
	// Selection flags
	runCmd.Flags().StringVarP(&envFlag, "env", "e", getEnvString("APICONTRACT_ENV", ""), "Environment to use (env: APICONTRACT_ENV)")
	runCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("APICONTRACT_ENV_FILE", ""), "Path to .env file for variable interpolation (env: APICONTRACT_ENV_FILE)")
	runCmd.Flags().StringVarP(&nameFlag, "name", "n", "", "Run only cases matching name pattern")
	runCmd.Flags().StringVarP(&tagsFlag, "tags", "t", getEnvString("APICONTRACT_TAGS", ""), "Run only cases with specified tags (comma-separated) (env: APICONTRACT_TAGS)")
	runCmd.Flags().StringArrayVar(&varFlags, "var", nil, "Set a template variable (name=value, repeatable)")

	// Output flags
	runCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", getEnvBool("APICONTRACT_VERBOSE", false), "Verbose output (env: APICONTRACT_VERBOSE)")
	runCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", getEnvBool("APICONTRACT_QUIET", false), "Log only warnings and errors, even with --verbose (env: APICONTRACT_QUIET)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("APICONTRACT_NO_COLOR", false), "Disable colored output (env: APICONTRACT_NO_COLOR)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("APICONTRACT_OUTPUT", ""), "Output format: "+strings.Join(output.Formats, ", ")+" (env: APICONTRACT_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("APICONTRACT_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: APICONTRACT_OUTPUT_FILE)")
	runCmd.Flags().StringVar(&historyFlag, "history", getEnvString("APICONTRACT_HISTORY", ""), "Store run reports in a SQLite database (env: APICONTRACT_HISTORY)")

	// Execution flags
	runCmd.Flags().BoolVar(&bailFlag, "bail", getEnvBool("APICONTRACT_BAIL", false), "Stop on first failure (env: APICONTRACT_BAIL)")
	runCmd.Flags().BoolVar(&failOnMalformedFlag, "fail-on-malformed", getEnvBool("APICONTRACT_FAIL_ON_MALFORMED", false), "Abort a suite before any request when a case is malformed (env: APICONTRACT_FAIL_ON_MALFORMED)")
	runCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("APICONTRACT_TIMEOUT", ""), "Default request timeout (e.g., 30s, 1m) (env: APICONTRACT_TIMEOUT)")
	runCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Load suites and show what would run without executing")
	runCmd.Flags().BoolVarP(&parallelFlag, "parallel", "p", getEnvBool("APICONTRACT_PARALLEL", false), "Run independent cases in parallel (env: APICONTRACT_PARALLEL)")
	runCmd.Flags().IntVar(&concurrencyFlag, "concurrency", getEnvInt("APICONTRACT_CONCURRENCY", 0), "Number of concurrent requests when running in parallel (env: APICONTRACT_CONCURRENCY)")
	runCmd.Flags().Float64Var(&rateLimitFlag, "rate-limit", getEnvFloat("APICONTRACT_RATE_LIMIT", 0), "Maximum requests per second (env: APICONTRACT_RATE_LIMIT)")
	runCmd.Flags().StringVar(&waitForFlag, "wait-for", getEnvString("APICONTRACT_WAIT_FOR", ""), "Poll this URL until it answers 200 before running (env: APICONTRACT_WAIT_FOR)")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch suite files for changes and re-run")

	// Network flags
	runCmd.Flags().StringArrayVarP(&headerFlags, "header", "H", nil, "Header sent with every request (\"Name: value\", repeatable)")
	runCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("APICONTRACT_PROXY", ""), "Proxy URL for HTTP requests (env: APICONTRACT_PROXY)")
	runCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("APICONTRACT_INSECURE", false), "Disable SSL certificate validation (env: APICONTRACT_INSECURE)")

	// Notification flags
	runCmd.Flags().StringVar(&notifyOnFlag, "notify-on", getEnvString("APICONTRACT_NOTIFY_ON", ""), "When to notify: always, failure, success, recovery (env: APICONTRACT_NOTIFY_ON)")
	runCmd.Flags().StringVar(&slackWebhookFlag, "slack-webhook", getEnvString("SLACK_WEBHOOK", ""), "Slack webhook URL (env: SLACK_WEBHOOK)")
	runCmd.Flags().StringVar(&slackChannelFlag, "slack-channel", getEnvString("SLACK_CHANNEL", ""), "Slack channel override (env: SLACK_CHANNEL)")
	runCmd.Flags().StringVar(&teamsWebhookFlag, "teams-webhook", getEnvString("TEAMS_WEBHOOK", ""), "Microsoft Teams webhook URL (env: TEAMS_WEBHOOK)")

	// Metrics flags
	runCmd.Flags().StringVar(&prometheusFileFlag, "metrics-prometheus", getEnvString("APICONTRACT_METRICS_PROMETHEUS", ""), "Write Prometheus text metrics to this file (env: APICONTRACT_METRICS_PROMETHEUS)")
	runCmd.Flags().StringVar(&metricsJSONFileFlag, "metrics-json", getEnvString("APICONTRACT_METRICS_JSON", ""), "Write JSON metrics to this file (env: APICONTRACT_METRICS_JSON)")
	runCmd.Flags().StringVar(&datadogAPIKeyFlag, "datadog-api-key", getEnvString("DD_API_KEY", ""), "Send metrics to DataDog with this API key (env: DD_API_KEY)")
	runCmd.Flags().StringVar(&datadogSiteFlag, "datadog-site", getEnvString("DD_SITE", "datadoghq.com"), "DataDog site (env: DD_SITE)")
	runCmd.Flags().StringVar(&datadogTagsFlag, "datadog-tags", getEnvString("DD_TAGS", ""), "Comma-separated DataDog tags (env: DD_TAGS)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// session is everything a run needs besides the suite files.
type session struct {
	cmd      *cobra.Command
	cfg      *config.Config
	env      string
	runner   *runner.Runner
	store    *history.Store
	notifier *notify.Manager
	metrics  []metrics.Exporter
	logger   logging.Logger
}

func runCommand(cmd *cobra.Command, args []string) error {
	overrides, err := flagOverrides(cmd)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	flagVars, err := parseVars(varFlags)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	cfg, err := loadRunConfig(overrides)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}

	format := strings.ToLower(cfg.Output)
	if _, err := output.New(format, io.Discard, output.Settings{}); err != nil {
		return exitWith(ExitUsageError, err)
	}
	if output.Binary(format) && cfg.OutputFile == "" {
		return exitWith(ExitUsageError, fmt.Errorf("--output %s writes a binary file and needs --output-file", format))
	}

	files, err := suite.Discover(args)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	if len(files) == 0 {
		return exitWith(ExitUsageError, errors.New("no suite files found (*.yaml, *.yml, *.json)"))
	}

	if dryRunFlag {
		return dryRun(cmd, files)
	}

	logger := logging.NewConsoleLogger(
		logging.WithWriter(cmd.ErrOrStderr()),
		logging.WithQuiet(quietFlag || !cfg.GetVerbose()),
		logging.WithNoColor(cfg.GetNoColor()),
	)

	runnerCfg, envName, err := buildRunnerConfig(cfg, flagVars, logger)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}

	notifier, err := buildNotifier(cfg.Notify)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &session{
		cmd:      cmd,
		cfg:      cfg,
		env:      envName,
		runner:   runner.NewRunner(runnerCfg),
		notifier: notifier,
		metrics:  buildExporters(),
		logger:   logger,
	}

	if cfg.History != "" {
		store, err := history.Open(ctx, cfg.History)
		if err != nil {
			return exitWith(ExitConfigError, err)
		}
		defer store.Close()
		s.store = store
	}

	if w := cfg.WaitFor; w != nil {
		err := s.runner.WaitForService(ctx, runner.WaitFor{
			URL:      w.URL,
			Status:   w.Status,
			Timeout:  time.Duration(w.Timeout) * time.Millisecond,
			Interval: time.Duration(w.Interval) * time.Millisecond,
		})
		if err != nil {
			return exitWith(ExitTestFailure, err)
		}
	}

	code, err := s.runOnce(ctx, files)
	if err != nil {
		return exitWith(code, err)
	}
	if !watchFlag {
		return exitWith(code, nil)
	}
	return s.watch(ctx, args, files)
}

func dryRun(cmd *cobra.Command, files []string) error {
	code := ExitSuccess
	for _, file := range files {
		st, err := suite.Load(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Cannot load %s: %v\n", file, err)
			code = ExitMalformed
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Would run: %s (%s, %d cases)\n", file, st.Name, len(st.Cases))
	}
	return exitWith(code, nil)
}

// runOnce runs every file, writes the report and records it. The returned
// error is only set when the report itself could not be written.
func (s *session) runOnce(ctx context.Context, files []string) (int, error) {
	var w io.Writer = s.cmd.OutOrStdout()
	if s.cfg.OutputFile != "" {
		f, err := os.Create(s.cfg.OutputFile)
		if err != nil {
			return ExitConfigError, fmt.Errorf("cannot create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	formatter, err := output.New(s.cfg.Output, w, output.Settings{
		Verbose: s.cfg.GetVerbose(),
		NoColor: s.cfg.GetNoColor(),
	})
	if err != nil {
		return ExitUsageError, err
	}
	formatter.FormatHeader(version)

	startTime := time.Now()
	var reports []*report.SuiteReport
	loadFailed := false
	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		rep, err := s.runner.RunFile(ctx, file)
		if err != nil {
			formatter.FormatError(err)
			loadFailed = true
			continue
		}
		formatter.FormatReport(rep)
		reports = append(reports, rep)

		if s.cfg.GetBail() && !rep.Success() {
			break
		}
	}

	if flushable, ok := formatter.(output.Flushable); ok {
		if err := flushable.Flush(time.Since(startTime)); err != nil {
			return ExitTestFailure, fmt.Errorf("error writing output: %w", err)
		}
	}

	s.record(ctx, reports)

	code := report.ExitCodeOf(reports)
	if loadFailed && code < ExitMalformed {
		code = ExitMalformed
	}
	return code, nil
}

// record saves reports to history, exports metrics and sends notifications.
// Failures here never change the exit code.
func (s *session) record(ctx context.Context, reports []*report.SuiteReport) {
	// Notifications and history should still go out after Ctrl+C.
	ctx = context.WithoutCancel(ctx)

	if s.notifier != nil && s.store != nil {
		s.notifier.SetPreviousSuccess(s.previousSuccess(ctx, reports))
	}

	if s.store != nil {
		for _, rep := range reports {
			if err := s.store.Save(ctx, rep); err != nil {
				s.logger.Printf("warning: failed to save run history: %v", err)
			}
		}
	}

	if len(s.metrics) > 0 {
		snapshot := metrics.FromReports(reports, time.Now())
		if err := metrics.ExportAll(ctx, snapshot, s.metrics...); err != nil {
			s.logger.Printf("warning: failed to export metrics: %v", err)
		}
	}

	if s.notifier != nil {
		summary := notify.Summarize(reports, s.env)
		if err := s.notifier.Notify(ctx, summary); err != nil {
			s.logger.Printf("warning: failed to send notification: %v", err)
		}
	}
}

// previousSuccess reports whether the last stored run of every suite in
// reports succeeded. Suites without history count as successful.
func (s *session) previousSuccess(ctx context.Context, reports []*report.SuiteReport) bool {
	for _, rep := range reports {
		last, err := s.store.Last(ctx, rep.Suite)
		if errors.Is(err, history.ErrNoRuns) {
			continue
		}
		if err != nil {
			s.logger.Printf("warning: reading run history: %v", err)
			continue
		}
		if !last.Success() {
			return false
		}
	}
	return true
}

// watch re-runs the suites whenever a watched suite file changes, until
// the context is canceled.
func (s *session) watch(ctx context.Context, args, files []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return exitWith(ExitConfigError, fmt.Errorf("failed to create file watcher: %w", err))
	}
	defer watcher.Close()

	watchedDirs := make(map[string]bool)
	for _, file := range files {
		dir := filepath.Dir(file)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				s.logger.Printf("warning: failed to watch %s: %v", dir, err)
			}
			watchedDirs[dir] = true
		}
	}

	// New suites created under a directory argument are picked up too.
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			_ = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() && !watchedDirs[path] {
					_ = watcher.Add(path)
					watchedDirs[path] = true
				}
				return nil
			})
		}
	}

	out := s.cmd.ErrOrStderr()
	fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	debounce := time.NewTimer(WatchDebounceDelay)
	debounce.Stop()
	var changed string
	code := ExitSuccess

	for {
		select {
		case <-ctx.Done():
			return exitWith(code, nil)

		case event, ok := <-watcher.Events:
			if !ok {
				return exitWith(code, nil)
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if suite.IsSuiteFile(event.Name) {
					changed = event.Name
					debounce.Reset(WatchDebounceDelay)
				}
			}

		case <-debounce.C:
			fmt.Fprintf(out, "\n\nFile changed: %s\nRe-running suites...\n\n", changed)
			current, err := suite.Discover(args)
			if err != nil {
				s.logger.Printf("error: %v", err)
				continue
			}
			code, err = s.runOnce(ctx, current)
			if err != nil {
				s.logger.Printf("error: %v", err)
			}
			fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return exitWith(code, nil)
			}
			s.logger.Printf("warning: watcher error: %v", err)
		}
	}
}
