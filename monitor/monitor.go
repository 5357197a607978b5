package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"restock-monitor/config"
	"restock-monitor/extractor"
	"restock-monitor/internal/types"
)

// State of a monitoring session.
type State int

const (
	Idle State = iota
	Active
)

// Browser is the slice of a live tab the monitor needs.
type Browser interface {
	Location(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
}

// CheckoutInitiator triggers the auto-checkout sequence.
type CheckoutInitiator interface {
	InitiateCheckout(ctx context.Context, product types.Product) types.CheckoutResult
}

// ProductSource reads persisted state. Storage is the source of truth; the
// monitor re-reads the monitored list on every tick rather than caching it.
type ProductSource interface {
	MonitoredProducts() ([]types.Product, error)
	RefreshInterval() (int, error)
}

// Events is the monitor's channel back to the coordinator.
type Events interface {
	StatusUpdate(message string)
	StockUpdate(product types.Product, inStock, autoCheckout bool)
	ProductsFetched(products []types.Product)
	AdvanceSequence(currentIndex, totalProducts int)
}

// Renderer draws the on-page status indicator. All rendering errors are
// ignored; the indicator is presentation, not state.
type Renderer interface {
	ShowActive(ctx context.Context, intervalSeconds int) error
	ShowSequential(ctx context.Context, index, total int) error
	ShowStopped(ctx context.Context) error
	Notify(ctx context.Context, message string) error
}

// Session is the per-page monitoring state machine: Idle until started,
// Active while the polling timer runs, Idle again on stop. Faults inside a
// tick are logged and swallowed; they never stop the timer.
type Session struct {
	ID string

	browser    Browser
	extract    *extractor.Extractor
	classifier *extractor.Classifier
	driver     CheckoutInitiator
	source     ProductSource
	events     Events
	renderer   Renderer
	logger     types.Logger

	baseURL     string
	reloadDelay time.Duration

	mu       sync.Mutex
	state    State
	settings types.MonitorSettings
	stopCh   chan struct{}

	// A tick that starts while the previous one is still running is
	// skipped: overlapping automation on one tab would interleave
	// navigations.
	ticking sync.Mutex

	// schedule is injectable for tests.
	schedule func(time.Duration, func())
}

// NewSession creates an idle monitoring session bound to one tab.
func NewSession(browser Browser, ext *extractor.Extractor, classifier *extractor.Classifier,
	driver CheckoutInitiator, source ProductSource, events Events, renderer Renderer,
	site config.SiteConfig, reloadDelay time.Duration, logger types.Logger) *Session {
	return &Session{
		ID:          uuid.NewString(),
		browser:     browser,
		extract:     ext,
		classifier:  classifier,
		driver:      driver,
		source:      source,
		events:      events,
		renderer:    renderer,
		logger:      logger,
		baseURL:     site.BaseURL,
		reloadDelay: reloadDelay,
		state:       Idle,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Settings returns a copy of the active settings.
func (s *Session) Settings() types.MonitorSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Start begins monitoring. Starting an already active session tears down
// the previous timer first (restart semantics). The first check runs
// immediately, out of schedule.
func (s *Session) Start(ctx context.Context, settings types.MonitorSettings) types.Response {
	s.mu.Lock()

	if s.state == Active {
		s.teardownLocked()
	}

	fallback := config.DefaultRefreshInterval
	if persisted, err := s.source.RefreshInterval(); err == nil && persisted > 0 {
		fallback = persisted
	}
	settings.RefreshInterval = config.ClampInterval(settings.RefreshInterval, fallback)

	s.settings = settings
	s.state = Active
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	interval := time.Duration(settings.RefreshInterval) * time.Second
	s.mu.Unlock()

	s.renderIndicator(ctx)

	// The polling loop outlives the start request: its lifetime is owned by
	// the session alone, so ticks run on their own context and only Stop
	// (or a restart) ends the loop.
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.tick(context.Background())
			case <-stopCh:
				return
			}
		}
	}()

	// Immediate out-of-schedule check.
	go s.tick(context.Background())

	s.logger.Infof("page monitoring started, interval %ds", settings.RefreshInterval)
	return types.Response{Success: true, Message: fmt.Sprintf("monitoring started, checking every %d seconds", settings.RefreshInterval)}
}

// Stop clears the timer and flips back to Idle. Work already dispatched by
// an earlier tick runs to completion.
func (s *Session) Stop(ctx context.Context) types.Response {
	s.mu.Lock()
	if s.state == Idle {
		s.mu.Unlock()
		return types.Response{Success: true, Message: "monitoring already stopped"}
	}
	s.teardownLocked()
	s.state = Idle
	s.mu.Unlock()

	if err := s.renderer.ShowStopped(ctx); err != nil {
		s.logger.Debugf("indicator update failed: %v", err)
	}

	s.logger.Info("page monitoring stopped")
	return types.Response{Success: true, Message: "monitoring stopped"}
}

// UpdateInterval applies a new tick cadence. Values below the minimum are
// rejected without change. An active session restarts its timer; the new
// cadence applies from now, not retroactively.
func (s *Session) UpdateInterval(ctx context.Context, seconds int) types.Response {
	if seconds < config.MinRefreshInterval {
		return types.Response{Success: false, Message: fmt.Sprintf("refresh interval must be at least %d seconds", config.MinRefreshInterval)}
	}

	s.mu.Lock()
	s.settings.RefreshInterval = seconds
	active := s.state == Active
	settings := s.settings
	s.mu.Unlock()

	if active {
		return s.Start(ctx, settings)
	}
	return types.Response{Success: true, Message: fmt.Sprintf("refresh interval set to %d seconds", seconds)}
}

func (s *Session) teardownLocked() {
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

func (s *Session) renderIndicator(ctx context.Context) {
	s.mu.Lock()
	settings := s.settings
	s.mu.Unlock()

	var err error
	if settings.IsSequential {
		err = s.renderer.ShowSequential(ctx, settings.CurrentIndex, settings.TotalProducts)
	} else {
		err = s.renderer.ShowActive(ctx, settings.RefreshInterval)
	}
	if err != nil {
		s.logger.Debugf("indicator update failed: %v", err)
	}
}

// tick runs one poll. Overlapping ticks are skipped rather than queued.
func (s *Session) tick(ctx context.Context) {
	if !s.ticking.TryLock() {
		s.logger.Debug("previous tick still in progress, skipping")
		return
	}
	defer s.ticking.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("tick failed: %v", r)
		}
	}()

	if s.State() != Active {
		return
	}

	if err := s.checkCurrentPage(ctx); err != nil {
		// Degrade to "no detection this tick", never terminate the timer.
		s.logger.Warnf("check failed: %v", err)
	}
}

// checkCurrentPage classifies the tab's document and dispatches to the
// product or listing flow.
func (s *Session) checkCurrentPage(ctx context.Context) error {
	loc, err := s.browser.Location(ctx)
	if err != nil {
		return err
	}
	doc, err := s.document(ctx)
	if err != nil {
		return err
	}

	switch s.classifier.Classify(loc, doc) {
	case types.PageProduct:
		return s.checkProductPage(ctx, loc, doc)
	case types.PageListing:
		return s.checkListingPage(ctx, doc)
	default:
		s.logger.Debugf("page %s is neither product nor listing, nothing to check", loc)
		return nil
	}
}

func (s *Session) checkProductPage(ctx context.Context, loc string, doc *goquery.Document) error {
	snapshot := s.extract.ExtractProduct(loc, doc)
	if snapshot == nil {
		return fmt.Errorf("extraction yielded nothing on %s", loc)
	}

	monitored, err := s.source.MonitoredProducts()
	if err != nil {
		return fmt.Errorf("failed to load monitored products: %w", err)
	}

	settings := s.Settings()
	matched := Match(*snapshot, monitored)
	checkoutTriggered := false

	if matched != nil {
		merged := matched.Merge(*snapshot)
		s.events.StockUpdate(merged, merged.InStock, settings.AutoCheckout)

		if merged.InStock {
			s.logger.Infof("%s is in stock", merged.Name)
			_ = s.renderer.Notify(ctx, fmt.Sprintf("%s is in stock!", merged.Name))
			if settings.AutoCheckout {
				checkoutTriggered = true
				result := s.driver.InitiateCheckout(ctx, merged)
				s.logger.Infof("checkout attempt: success=%t %s", result.Success, result.Message)
			}
		}
	}

	s.afterCheck(ctx, settings, checkoutTriggered)
	return nil
}

func (s *Session) checkListingPage(ctx context.Context, doc *goquery.Document) error {
	cards := s.extract.ExtractListing(s.baseURL, doc)
	monitored, err := s.source.MonitoredProducts()
	if err != nil {
		return fmt.Errorf("failed to load monitored products: %w", err)
	}

	settings := s.Settings()
	navigated := false

	for _, card := range cards {
		matched := Match(card, monitored)
		if matched == nil || !card.InStock {
			continue
		}
		merged := matched.Merge(card)
		s.logger.Infof("listing shows %s in stock", merged.Name)
		s.events.StockUpdate(merged, true, settings.AutoCheckout)
		_ = s.renderer.Notify(ctx, fmt.Sprintf("%s is in stock!", merged.Name))

		if settings.AutoCheckout && !navigated {
			navigated = true
			if err := s.browser.Navigate(ctx, merged.URL); err != nil {
				s.logger.Warnf("failed to navigate to %s: %v", merged.URL, err)
				navigated = false
			}
		}
	}

	if !navigated {
		s.afterCheck(ctx, settings, false)
	}
	return nil
}

// afterCheck advances the sequence in sequential mode, otherwise schedules
// a reload so the next tick reads a fresh document. A tick that handed the
// tab to the checkout driver schedules neither.
func (s *Session) afterCheck(ctx context.Context, settings types.MonitorSettings, checkoutTriggered bool) {
	if checkoutTriggered {
		return
	}
	if settings.IsSequential {
		index, total := settings.CurrentIndex, settings.TotalProducts
		s.schedule(s.reloadDelay, func() {
			if s.State() != Active {
				return
			}
			s.events.AdvanceSequence(index, total)
		})
		return
	}
	s.schedule(s.reloadDelay, func() {
		if s.State() != Active {
			return
		}
		if err := s.browser.Reload(ctx); err != nil {
			s.logger.Warnf("reload failed: %v", err)
		}
	})
}

// CheckStock extracts the current page, merges the snapshot over the given
// product and reports the result as a stockUpdate event.
func (s *Session) CheckStock(ctx context.Context, product types.Product, autoCheckout bool) types.Response {
	loc, err := s.browser.Location(ctx)
	if err != nil {
		return types.Response{Success: false, Error: err.Error()}
	}
	doc, err := s.document(ctx)
	if err != nil {
		return types.Response{Success: false, Error: err.Error()}
	}

	snapshot := s.extract.ExtractProduct(loc, doc)
	if snapshot == nil {
		return types.Response{Success: false, Error: "unable to extract product information"}
	}

	merged := product.Merge(*snapshot)
	s.events.StockUpdate(merged, merged.InStock, autoCheckout)
	return types.Response{Success: true, Product: &merged}
}

// FetchProducts discovers products from the current page: a product page
// yields its single product, a listing yields one per card, and the home
// page navigates to the first collection so a later call can scan it.
// Discovered products are announced for the coordinator to adopt.
func (s *Session) FetchProducts(ctx context.Context) types.Response {
	loc, err := s.browser.Location(ctx)
	if err != nil {
		return types.Response{Success: false, Error: err.Error()}
	}
	doc, err := s.document(ctx)
	if err != nil {
		return types.Response{Success: false, Error: err.Error()}
	}

	var products []types.Product

	switch {
	case s.classifier.IsProductPage(loc, doc):
		if p := s.extract.ExtractProduct(loc, doc); p != nil {
			products = []types.Product{*p}
		}
	case s.classifier.IsListingPage(loc, doc):
		products = s.extract.ExtractListing(s.baseURL, doc)
	case isHomePage(loc):
		links := s.extract.ExtractCollectionLinks(s.baseURL, doc)
		if len(links) > 0 {
			s.events.StatusUpdate(fmt.Sprintf("found %d collections on home page, opening the first", len(links)))
			if err := s.browser.Navigate(ctx, links[0]); err != nil {
				return types.Response{Success: false, Error: err.Error()}
			}
			return types.Response{Success: true, Count: 0}
		}
		products = s.extract.ExtractListing(s.baseURL, doc)
	}

	if len(products) > 0 {
		s.events.ProductsFetched(products)
	}
	return types.Response{Success: true, Count: len(products)}
}

func (s *Session) document(ctx context.Context) (*goquery.Document, error) {
	html, err := s.browser.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
}

func isHomePage(loc string) bool {
	if i := strings.Index(loc, "://"); i >= 0 {
		rest := loc[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			loc = rest[j:]
		} else {
			return true
		}
	}
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	return loc == "/" || loc == ""
}
