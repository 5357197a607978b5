package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"restock-monitor/config"
	"restock-monitor/internal/types"
)

// Fetcher performs rate-limited, retrying HTTP GETs. It serves the cheap
// paths that do not need a live tab: listing pre-scans and availability
// probes.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	retries   int
	userAgent string
	logger    types.Logger
}

// NewFetcher creates a fetcher with the given rate limit and retry policy.
func NewFetcher(cfg config.FetchConfig, userAgent string, logger types.Logger) *Fetcher {
	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Fetcher{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		retries:   cfg.MaxRetries,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Get performs a GET request, waiting on the rate limiter before each
// attempt.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= f.retries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", f.userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")

		f.logger.Debugf("fetching %s (attempt %d/%d)", url, attempt+1, f.retries+1)

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			f.logger.Warnf("request failed (attempt %d): %v", attempt+1, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
			f.logger.Warnf("unexpected status code %d (attempt %d)", resp.StatusCode, attempt+1)
			continue
		}
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		f.logger.Debugf("retrieved %d bytes from %s", len(body), url)
		return body, nil
	}

	return nil, fmt.Errorf("all retry attempts failed: %w", lastErr)
}
