package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/assertions"
	"github.com/abdul-hamid-achik/apicontract/packages/capture"
	"github.com/abdul-hamid-achik/apicontract/packages/core/env"
	"github.com/abdul-hamid-achik/apicontract/packages/core/suite"
	"github.com/abdul-hamid-achik/apicontract/packages/http"
	"github.com/abdul-hamid-achik/apicontract/packages/logging"
	"github.com/abdul-hamid-achik/apicontract/packages/report"
	"golang.org/x/time/rate"
)

const (
	// DefaultConcurrency is the default number of concurrent requests in parallel mode
	DefaultConcurrency = 5
)

const reasonDependency = "dependency not satisfied"

type Config struct {
	Environment string
	// Variables override suite variables of the same name.
	Variables map[string]any
	// Headers are sent with every request; case headers win.
	Headers map[string]string
	// Timeout applies to requests whose case and suite set none.
	Timeout        time.Duration
	FollowRedirect bool
	Insecure       bool
	Proxy          string
	Verbose        bool
	Bail           bool
	NameFilter     string
	TagsFilter     []string
	Parallel       bool
	Concurrency    int
	// RateLimit caps requests per second across the run. Zero disables it.
	RateLimit float64
	// FailOnMalformed ends the run before any request when a case is
	// malformed. The malformed cases are aborted, the rest skipped.
	FailOnMalformed bool
	Logger          logging.Logger
}

type Runner struct {
	client *http.Client
	config *Config
	logger logging.Logger
}

type Option func(*Runner)

// WithClient replaces the HTTP client built from the config.
func WithClient(c *http.Client) Option {
	return func(r *Runner) {
		r.client = c
	}
}

func NewRunner(cfg *Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = &Config{FollowRedirect: true}
	}

	clientOpts := []http.ClientOption{
		http.WithFollowRedirects(cfg.FollowRedirect),
		http.WithValidateSSL(!cfg.Insecure),
	}
	if cfg.Timeout != 0 {
		clientOpts = append(clientOpts, http.WithTimeout(cfg.Timeout))
	}
	if cfg.Proxy != "" {
		clientOpts = append(clientOpts, http.WithProxy(cfg.Proxy))
	}

	r := &Runner{
		client: http.NewClient(clientOpts...),
		config: cfg,
		logger: cfg.Logger,
	}
	if r.logger == nil {
		r.logger = logging.Discard
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunFile loads and runs one suite file. The error is only non-nil when the
// file cannot be loaded.
func (r *Runner) RunFile(ctx context.Context, path string) (*report.SuiteReport, error) {
	s, err := suite.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading suite: %w", err)
	}
	return r.Run(ctx, s), nil
}

// run holds the state of one Run call.
type run struct {
	*Runner
	suite    *suite.Suite
	recorder *report.Recorder
	resolver *env.Resolver
	captures *capture.Namespace
	limiter  *rate.Limiter
	baseDir  string
	bailed   atomic.Bool
}

// Run executes every case of s and returns the finalized report. It
// records exactly one outcome per case.
func (r *Runner) Run(ctx context.Context, s *suite.Suite) *report.SuiteReport {
	ns := capture.NewNamespace()
	resolver := env.NewResolver()
	resolver.SetLogger(r.logger)
	resolver.SetVariables(s.Variables)
	resolver.SetVariables(r.config.Variables)
	resolver.SetCases(s.CaseNames())
	resolver.SetCaptures(ns)

	rn := &run{
		Runner:   r,
		suite:    s,
		recorder: report.NewRecorder(s.Name, s.Path),
		resolver: resolver,
		captures: ns,
	}
	if s.Path != "" {
		rn.baseDir = filepath.Dir(s.Path)
	}
	if r.config.RateLimit > 0 {
		rn.limiter = rate.NewLimiter(rate.Limit(r.config.RateLimit), 1)
	}

	runnable := rn.plan()
	if r.config.Parallel {
		rn.runParallel(ctx, runnable)
	} else {
		rn.runSequential(ctx, runnable)
	}

	return rn.recorder.Finalize()
}

// plan records outcomes for cases that will not run and returns the rest.
func (rn *run) plan() []*suite.Case {
	hasOnly := rn.suite.HasOnly()
	var runnable, malformed []*suite.Case

	for _, c := range rn.suite.Cases {
		switch {
		case !rn.shouldRun(c, hasOnly):
			rn.recorder.Record(report.Skipped(c.Name, c.Ordinal, report.ReasonFilteredOut, nil))
		case c.Skip != "":
			rn.recorder.Record(report.Skipped(c.Name, c.Ordinal, c.Skip, nil))
		case c.Malformed != nil:
			rn.logger.Printf("error: aborting %s: %v", c.Name, c.Malformed)
			rn.recorder.Record(report.Aborted(c.Name, c.Ordinal, c.Malformed))
			malformed = append(malformed, c)
		default:
			runnable = append(runnable, c)
		}
	}

	if len(malformed) > 0 && rn.config.FailOnMalformed {
		reason := fmt.Sprintf("%d malformed case(s), first: %s", len(malformed), malformed[0].Malformed)
		rn.recorder.MarkAborted(reason)
		rn.logger.Printf("error: run aborted: %s", reason)
		for _, c := range runnable {
			rn.recorder.Record(report.Skipped(c.Name, c.Ordinal, report.ReasonRunAborted, nil))
		}
		return nil
	}
	return runnable
}

func (rn *run) runSequential(ctx context.Context, cases []*suite.Case) {
	for _, c := range cases {
		rn.recorder.Record(rn.runCase(ctx, c))
	}
}

func (rn *run) runParallel(ctx context.Context, cases []*suite.Case) {
	concurrency := rn.config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	done := make(map[int]chan struct{}, len(rn.suite.Cases))
	for _, c := range rn.suite.Cases {
		ch := make(chan struct{})
		if rn.recorder.Recorded(c.Name, c.Ordinal) {
			close(ch)
		}
		done[c.Ordinal] = ch
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for _, c := range cases {
		wg.Add(1)
		go func(c *suite.Case) {
			defer wg.Done()
			defer close(done[c.Ordinal])

			// Wait only for the cases this one depends on.
			for _, dep := range c.DependsOn() {
				producer := rn.suite.Case(dep)
				if producer == nil {
					continue
				}
				select {
				case <-done[producer.Ordinal]:
				case <-ctx.Done():
				}
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				rn.recorder.Record(report.Skipped(c.Name, c.Ordinal, report.ReasonRunCanceled, ctx.Err()))
				return
			}
			defer func() { <-sem }()

			rn.recorder.Record(rn.runCase(ctx, c))
		}(c)
	}

	wg.Wait()
}

func (rn *run) runCase(ctx context.Context, c *suite.Case) *report.CaseOutcome {
	if ctx.Err() != nil {
		return report.Skipped(c.Name, c.Ordinal, report.ReasonRunCanceled, ctx.Err())
	}
	if rn.config.Bail && rn.bailed.Load() {
		return report.Skipped(c.Name, c.Ordinal, report.ReasonBail, nil)
	}

	if missing := rn.captures.Missing(c.Dependencies()); len(missing) > 0 {
		return rn.skipDependency(c, missing)
	}

	expectations, err := rn.resolveExpectations(c)
	var req *http.Request
	if err == nil {
		req, err = rn.buildRequest(c)
	}
	if err != nil {
		var mce *env.MissingCaptureError
		if errors.As(err, &mce) {
			return rn.skipDependency(c, mce.Refs)
		}
		malformed := &suite.MalformedSpecError{Case: c.Name, Field: "request", Reason: "cannot build request", Err: err}
		rn.logger.Printf("error: aborting %s: %v", c.Name, malformed)
		return report.Aborted(c.Name, c.Ordinal, malformed)
	}

	return rn.send(ctx, c, req, expectations)
}

func (rn *run) send(ctx context.Context, c *suite.Case, req *http.Request, expectations []*assertions.Expectation) *report.CaseOutcome {
	if rn.limiter != nil {
		if err := rn.limiter.Wait(ctx); err != nil {
			return report.Skipped(c.Name, c.Ordinal, report.ReasonRunCanceled, err)
		}
	}

	if rn.config.Verbose {
		rn.logger.Printf("%s %s %s", c.Name, req.Method, req.BuildURL())
	}

	start := time.Now()
	resp, err := rn.client.Send(ctx, req)
	elapsed := time.Since(start)

	if err != nil && ctx.Err() != nil {
		outcome := report.Skipped(c.Name, c.Ordinal, report.ReasonRunCanceled, err)
		outcome.Request = req
		return outcome
	}

	var results []*assertions.Result
	if resp != nil {
		results = assertions.Evaluate(resp, expectations,
			assertions.WithBaseDir(rn.baseDir),
			assertions.WithCaptures(rn.captures.Lookup),
		)
	}

	outcome := report.Completed(c.Name, c.Ordinal, results, err)
	outcome.Tags = c.Tags
	outcome.Request = req
	outcome.Response = resp
	outcome.Duration = elapsed
	if resp != nil {
		outcome.Duration = resp.Duration
	}

	if outcome.Passed {
		rn.capture(c, outcome)
	} else if rn.config.Bail {
		rn.bailed.Store(true)
	}
	return outcome
}

// resolveExpectations expands templates in expected values, so a case can
// compare a response field with a value captured earlier.
func (rn *run) resolveExpectations(c *suite.Case) ([]*assertions.Expectation, error) {
	out := make([]*assertions.Expectation, len(c.Expect))
	var errs []error
	for i, exp := range c.Expect {
		resolved := *exp
		v, err := rn.resolver.ResolveValue(exp.Expected)
		if err != nil {
			errs = append(errs, err)
		}
		resolved.Expected = v
		out[i] = &resolved
	}
	return out, mergeErrors(errs)
}

func (rn *run) skipDependency(c *suite.Case, missing []string) *report.CaseOutcome {
	err := &DependencyUnsatisfiedError{Case: c.Name, Missing: missing}
	rn.logger.Printf("warning: skipping %s: %v", c.Name, err)
	return report.Skipped(c.Name, c.Ordinal, reasonDependency, err)
}

func (rn *run) capture(c *suite.Case, outcome *report.CaseOutcome) {
	if len(c.Captures) == 0 {
		return
	}
	values, missing := capture.ExtractAll(outcome.Response, c.Captures)
	if len(missing) > 0 {
		rn.logger.Printf("warning: %s: nothing to capture for %s", c.Name, strings.Join(missing, ", "))
	}
	if err := rn.captures.SetAll(c.Name, values); err != nil {
		rn.logger.Printf("warning: %s: %v", c.Name, err)
	}
	outcome.Captures = values
}

func (rn *run) buildRequest(c *suite.Case) (*http.Request, error) {
	spec := c.Request
	var errs []error
	resolve := func(s string) string {
		out, err := rn.resolver.Resolve(s)
		if err != nil {
			errs = append(errs, err)
		}
		return out
	}

	url := resolve(spec.URL)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		base := resolve(rn.suite.BaseURL)
		url = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(url, "/")
	}

	req := http.NewRequest(spec.Method, url)
	for k, v := range rn.config.Headers {
		req.SetHeader(k, resolve(v))
	}
	for k, v := range spec.Headers {
		req.SetHeader(k, resolve(v))
	}
	for k, v := range spec.Query {
		req.SetQueryParam(k, resolve(v))
	}

	switch body := spec.Body.(type) {
	case nil:
	case string:
		req.SetBody(resolve(body))
	default:
		resolved, err := rn.resolver.ResolveValue(body)
		if err != nil {
			errs = append(errs, err)
		}
		if err := req.SetJSONBody(resolved); err != nil {
			errs = append(errs, err)
		}
	}

	req.SetTimeout(firstNonZero(spec.Timeout, rn.suite.Timeout))
	req.SetFailOnStatusCode(spec.FailsOnStatusCode())

	if err := mergeErrors(errs); err != nil {
		return req, err
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// mergeErrors folds every missing capture into one error so the skip
// reason names all of them.
func mergeErrors(errs []error) error {
	var missing []string
	var other []error
	for _, err := range errs {
		var mce *env.MissingCaptureError
		if errors.As(err, &mce) {
			missing = append(missing, mce.Refs...)
		} else {
			other = append(other, err)
		}
	}
	if len(missing) > 0 {
		return &env.MissingCaptureError{Refs: missing}
	}
	return errors.Join(other...)
}

func firstNonZero(ds ...time.Duration) time.Duration {
	for _, d := range ds {
		if d != 0 {
			return d
		}
	}
	return 0
}

func (rn *run) shouldRun(c *suite.Case, hasOnly bool) bool {
	if hasOnly && !c.Only {
		return false
	}

	if rn.config.NameFilter != "" {
		if !matchesPattern(c.Name, rn.config.NameFilter) {
			return false
		}
	}

	if len(rn.config.TagsFilter) > 0 {
		if !hasAnyTag(c.Tags, rn.config.TagsFilter) {
			return false
		}
	}

	return true
}

func matchesPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}

	matched, err := filepath.Match(pattern, name)
	if err != nil {
		return name == pattern
	}
	return matched
}

func hasAnyTag(tags []string, filters []string) bool {
	for _, filter := range filters {
		for _, tag := range tags {
			if tag == filter {
				return true
			}
		}
	}
	return false
}
