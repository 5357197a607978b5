package utils

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/chromedp/chromedp"

	"restock-monitor/config"
	"restock-monitor/internal/types"
)

// Browser owns the chromedp allocator shared by all sessions.
type Browser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	cfg         config.BrowserConfig
	logger      types.Logger
}

// NewBrowser creates the browser allocator. Sessions (tabs) are created on
// demand from it.
func NewBrowser(cfg config.BrowserConfig, logger types.Logger) *Browser {
	// Suppress chromedp debug logging
	log.SetOutput(io.Discard)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.Flag("headless", cfg.Headless),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		allocCtx:    allocCtx,
		allocCancel: cancel,
		cfg:         cfg,
		logger:      logger,
	}
}

// NewSession opens a new tab. The caller owns it and must Close it.
func (b *Browser) NewSession() *Session {
	ctx, cancel := chromedp.NewContext(b.allocCtx)
	return &Session{
		ctx:     ctx,
		cancel:  cancel,
		timeout: b.cfg.Timeout,
		logger:  b.logger,
	}
}

// CheckPage is the hidden-tab path: open a throwaway tab, load the URL,
// wait for the page to settle, grab the HTML and close the tab.
func (b *Browser) CheckPage(ctx context.Context, url string) (string, error) {
	session := b.NewSession()
	defer session.Close()

	if err := session.Navigate(ctx, url); err != nil {
		return "", err
	}
	select {
	case <-time.After(b.cfg.LoadWait):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return session.HTML(ctx)
}

// Close shuts down the allocator and every tab spawned from it.
func (b *Browser) Close() {
	if b.allocCancel != nil {
		b.allocCancel()
	}
}

// Session is a persistent browser tab. All operations are bounded by the
// configured timeout.
type Session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  types.Logger
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, s.timeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Navigate loads the given URL in the tab.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Reload reloads the current document.
func (s *Session) Reload(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	return nil
}

// Location returns the tab's current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// HTML returns the current document's outer HTML.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	s.logger.Debugf("retrieved page content (%d bytes)", len(html))
	return html, nil
}

// Click clicks the first element matching the selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// SetValue sets the value of the first element matching the selector.
func (s *Session) SetValue(ctx context.Context, selector, value string) error {
	if err := s.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to set value on %s: %w", selector, err)
	}
	return nil
}

// Evaluate runs a JavaScript expression in the page, discarding its result.
func (s *Session) Evaluate(ctx context.Context, expression string) error {
	if err := s.run(ctx, chromedp.Evaluate(expression, nil)); err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

// Close destroys the tab.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}
