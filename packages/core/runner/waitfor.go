package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/http"
)

const (
	DefaultWaitTimeout  = 30 * time.Second
	DefaultWaitInterval = 500 * time.Millisecond
	waitAttemptTimeout  = 5 * time.Second
)

// WaitFor describes a readiness probe run before the first case.
type WaitFor struct {
	URL      string
	Status   int
	Timeout  time.Duration
	Interval time.Duration
}

// WaitForService polls w.URL until it answers with w.Status, the timeout
// passes or ctx is done.
func (r *Runner) WaitForService(ctx context.Context, w WaitFor) error {
	if w.URL == "" {
		return nil
	}
	if err := http.ValidateURL(w.URL); err != nil {
		return err
	}
	if w.Status == 0 {
		w.Status = 200
	}
	if w.Timeout <= 0 {
		w.Timeout = DefaultWaitTimeout
	}
	if w.Interval <= 0 {
		w.Interval = DefaultWaitInterval
	}

	if r.config.Verbose {
		r.logger.Printf("waiting for %s to return %d (timeout: %v, interval: %v)", w.URL, w.Status, w.Timeout, w.Interval)
	}

	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	var lastErr error
	var lastStatus int
	for {
		req := http.NewRequest("GET", w.URL).
			SetTimeout(min(waitAttemptTimeout, w.Timeout)).
			SetFailOnStatusCode(false)
		resp, err := r.client.Send(ctx, req)
		if err != nil {
			lastErr = err
		} else {
			lastStatus = resp.StatusCode
			if resp.StatusCode == w.Status {
				if r.config.Verbose {
					r.logger.Printf("%s is ready (status: %d)", w.URL, resp.StatusCode)
				}
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if lastStatus != 0 {
				return fmt.Errorf("service %s not ready after %v: got status %d, expected %d", w.URL, w.Timeout, lastStatus, w.Status)
			}
			return fmt.Errorf("service %s not ready after %v: %w", w.URL, w.Timeout, lastErr)
		case <-ticker.C:
		}
	}
}
