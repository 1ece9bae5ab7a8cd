package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/caserun/packages/http"
	"github.com/abdul-hamid-achik/caserun/packages/logging"
)

// WaitForConfig describes a readiness probe run before a suite starts.
type WaitForConfig struct {
	URL      string
	Status   int
	Timeout  time.Duration
	Interval time.Duration
}

// WaitForService polls cfg.URL until it answers with cfg.Status or the
// timeout passes.
func WaitForService(ctx context.Context, client *http.Client, cfg WaitForConfig, logger *logging.Logger) error {
	if cfg.URL == "" {
		return nil
	}
	if client == nil {
		client = http.NewClient(http.WithTimeout(5 * time.Second))
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.Status == 0 {
		cfg.Status = 200
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}

	logger.Info("waiting for service", "url", cfg.URL, "status", cfg.Status, "timeout", cfg.Timeout)

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var (
		lastErr    error
		lastStatus int
	)
	for {
		resp, err := client.Do(ctx, &http.Request{Method: "GET", URL: cfg.URL})
		if err != nil {
			lastErr = err
		} else {
			lastStatus = resp.StatusCode
			if resp.StatusCode == cfg.Status {
				logger.Info("service ready", "url", cfg.URL)
				return nil
			}
		}

		if err := sleepContext(ctx, cfg.Interval); err != nil {
			break
		}
	}

	if lastErr != nil {
		return fmt.Errorf("service %s not ready after %v: %w", cfg.URL, cfg.Timeout, lastErr)
	}
	return fmt.Errorf("service %s not ready after %v: got status %d, expected %d",
		cfg.URL, cfg.Timeout, lastStatus, cfg.Status)
}
