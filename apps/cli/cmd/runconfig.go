package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/core/config"
	"github.com/abdul-hamid-achik/apicontract/packages/core/env"
	"github.com/abdul-hamid-achik/apicontract/packages/core/runner"
	"github.com/abdul-hamid-achik/apicontract/packages/export/metrics"
	"github.com/abdul-hamid-achik/apicontract/packages/logging"
	"github.com/abdul-hamid-achik/apicontract/packages/notify"
	"github.com/spf13/cobra"
)

// loadRunConfig loads the config file and applies flag overrides on top.
func loadRunConfig(overrides *config.Config) (*config.Config, error) {
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, err
	}

	cfg := fileConfig.Merge(overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// flagOverrides turns the run flags into a config that only holds what the
// user set, so that Merge keeps file values for everything else.
func flagOverrides(cmd *cobra.Command) (*config.Config, error) {
	o := &config.Config{
		DefaultEnvironment: envFlag,
		Proxy:              proxyFlag,
		Output:             outputFlag,
		OutputFile:         outputFileFlag,
		EnvFile:            envFileFlag,
		History:            historyFlag,
		Concurrency:        concurrencyFlag,
		RateLimit:          rateLimitFlag,
		Verbose:            boolOverride(cmd, "verbose", verboseFlag),
		NoColor:            boolOverride(cmd, "no-color", noColorFlag),
		Parallel:           boolOverride(cmd, "parallel", parallelFlag),
		Bail:               boolOverride(cmd, "bail", bailFlag),
		FailOnMalformed:    boolOverride(cmd, "fail-on-malformed", failOnMalformedFlag),
	}

	if timeoutFlag != "" {
		timeout, err := time.ParseDuration(timeoutFlag)
		if err != nil || timeout <= 0 {
			return nil, fmt.Errorf("invalid timeout value %q (use format like 30s, 1m, 500ms)", timeoutFlag)
		}
		o.Timeout = int(timeout.Milliseconds())
	}

	if insecure := boolOverride(cmd, "insecure", insecureFlag); insecure != nil {
		o.ValidateSSL = config.BoolPtr(!*insecure)
	}

	headers, err := parseHeaders(headerFlags)
	if err != nil {
		return nil, err
	}
	o.Headers = headers

	if notifyOnFlag != "" || slackWebhookFlag != "" || teamsWebhookFlag != "" {
		o.Notify = &config.NotifyConfig{
			On:           notifyOnFlag,
			SlackWebhook: slackWebhookFlag,
			SlackChannel: slackChannelFlag,
			TeamsWebhook: teamsWebhookFlag,
		}
	}

	if waitForFlag != "" {
		o.WaitFor = &config.WaitForConfig{URL: waitForFlag}
	}
	return o, nil
}

// boolOverride returns nil unless the flag was given or its environment
// fallback turned it on.
func boolOverride(cmd *cobra.Command, name string, val bool) *bool {
	if cmd.Flags().Changed(name) || val {
		return config.BoolPtr(val)
	}
	return nil
}

func parseHeaders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(values))
	for _, h := range values {
		key, value, ok := strings.Cut(h, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q (expected \"Name: value\")", h)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}

func parseVars(values []string) (map[string]any, error) {
	vars := make(map[string]any, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q (expected name=value)", v)
		}
		vars[key] = value
	}
	return vars, nil
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// buildRunnerConfig resolves variables from every source and returns the
// runner config together with the selected environment name. Later sources
// win: config environment, env file, APICONTRACT_VAR_* variables, --var.
func buildRunnerConfig(cfg *config.Config, flagVars map[string]any, logger logging.Logger) (*runner.Config, string, error) {
	environment, err := env.LoadEnvironment(cfg.DefaultEnvironment, cfg.Environments)
	if err != nil {
		return nil, "", err
	}

	var dotenv map[string]any
	if cfg.EnvFile != "" {
		values, err := env.LoadAndExportDotEnv(cfg.EnvFile)
		if err != nil {
			return nil, "", err
		}
		dotenv = env.StringVariables(values)
	}

	rc := &runner.Config{
		Environment:     environment.Name,
		Variables:       env.MergeVariables(environment.Variables, dotenv, env.LoadSystemEnv(env.VariablePrefix), flagVars),
		Headers:         cfg.Headers,
		Timeout:         cfg.TimeoutDuration(),
		FollowRedirect:  cfg.GetFollowRedirects(),
		Insecure:        !cfg.GetValidateSSL(),
		Proxy:           cfg.Proxy,
		Verbose:         cfg.GetVerbose(),
		Bail:            cfg.GetBail(),
		NameFilter:      nameFlag,
		TagsFilter:      splitTags(tagsFlag),
		Parallel:        cfg.GetParallel(),
		Concurrency:     cfg.Concurrency,
		RateLimit:       cfg.RateLimit,
		FailOnMalformed: cfg.GetFailOnMalformed(),
		Logger:          logger,
	}
	return rc, environment.Name, nil
}

// buildNotifier returns nil when no webhook is configured.
func buildNotifier(nc *config.NotifyConfig) (*notify.Manager, error) {
	if nc == nil || (nc.SlackWebhook == "" && nc.TeamsWebhook == "") {
		return nil, nil
	}

	notifyOn, err := notify.ParseNotifyOn(nc.On)
	if err != nil {
		return nil, err
	}

	var notifiers []notify.Notifier
	if nc.SlackWebhook != "" {
		slackOpts := []notify.SlackOption{}
		if nc.SlackChannel != "" {
			slackOpts = append(slackOpts, notify.WithSlackChannel(nc.SlackChannel))
		}
		notifiers = append(notifiers, notify.NewSlackNotifier(nc.SlackWebhook, slackOpts...))
	}
	if nc.TeamsWebhook != "" {
		notifiers = append(notifiers, notify.NewTeamsNotifier(nc.TeamsWebhook))
	}
	return notify.NewManager(notifyOn, notifiers...), nil
}

func buildExporters() []metrics.Exporter {
	var exporters []metrics.Exporter
	if prometheusFileFlag != "" {
		exporters = append(exporters, metrics.NewPrometheusExporter(metrics.WithPrometheusFile(prometheusFileFlag)))
	}
	if metricsJSONFileFlag != "" {
		exporters = append(exporters, metrics.NewJSONExporter(metrics.WithJSONFile(metricsJSONFileFlag)))
	}
	if datadogAPIKeyFlag != "" {
		exporters = append(exporters, metrics.NewDataDogExporter(
			metrics.WithDataDogAPIKey(datadogAPIKeyFlag),
			metrics.WithDataDogSite(datadogSiteFlag),
			metrics.WithDataDogTags(splitTags(datadogTagsFlag)),
		))
	}
	return exporters
}
