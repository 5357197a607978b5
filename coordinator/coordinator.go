package coordinator

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
	"restock-monitor/store"
)

// Storage is the persistence surface the coordinator needs. *store.Store
// satisfies it.
type Storage interface {
	MonitoredProducts() ([]types.Product, error)
	FindProduct(url string) (*types.Product, error)
	SaveProduct(product types.Product) error
	RemoveProduct(url string) error
	GetBool(key string) (bool, error)
	SetBool(key string, value bool) error
	RefreshInterval() (int, error)
	SetRefreshInterval(seconds int) error
}

// Tab couples a live browser tab with its monitoring session and checkout
// driver. The coordinator addresses tabs only through this contract; their
// internals run independently.
type Tab interface {
	ID() string
	StartMonitoring(ctx context.Context, settings types.MonitorSettings) types.Response
	StopMonitoring(ctx context.Context) types.Response
	UpdateInterval(ctx context.Context, seconds int) types.Response
	CheckStock(ctx context.Context, product types.Product, autoCheckout bool) types.Response
	FetchProducts(ctx context.Context) types.Response
	Checkout(ctx context.Context, product types.Product) types.CheckoutResult
	Navigate(ctx context.Context, url string) error
	Close()
}

// TabOpener creates a new tab wired to the given coordinator.
type TabOpener func(c *Coordinator) (Tab, error)

// PageChecker is the hidden-tab sweep's cheap page read.
type PageChecker interface {
	CheckPage(ctx context.Context, url string) (string, error)
}

const maxBufferedEvents = 200

// Coordinator is the process-wide authority for monitoring state and the
// monitored-product collection. At every process start the monitoring and
// auto-checkout flags are forced to false regardless of their persisted
// values.
type Coordinator struct {
	storage Storage
	extract *extractor.Extractor
	checker PageChecker
	openTab TabOpener
	cfg     *config.Config
	logger  types.Logger

	mu           sync.Mutex
	isMonitoring bool
	autoCheckout bool
	products     []types.Product // cache; storage is the source of truth
	tabs         []Tab
	sweepStop    chan struct{}

	eventsMu sync.Mutex
	events   []types.Event
}

// New builds the coordinator, enforcing the restart invariant and priming
// the product cache from storage.
func New(storage Storage, ext *extractor.Extractor, checker PageChecker, openTab TabOpener,
	cfg *config.Config, logger types.Logger) (*Coordinator, error) {
	c := &Coordinator{
		storage: storage,
		extract: ext,
		checker: checker,
		openTab: openTab,
		cfg:     cfg,
		logger:  logger,
	}

	// Monitoring never resumes silently across a restart.
	if err := storage.SetBool(store.KeyIsMonitoring, false); err != nil {
		return nil, fmt.Errorf("failed to reset monitoring flag: %w", err)
	}
	if err := storage.SetBool(store.KeyAutoCheckout, false); err != nil {
		return nil, fmt.Errorf("failed to reset auto-checkout flag: %w", err)
	}

	products, err := storage.MonitoredProducts()
	if err != nil {
		return nil, err
	}
	c.products = products

	return c, nil
}

// Status reports the in-memory monitoring flags, not storage.
func (c *Coordinator) Status() types.MonitoringStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.MonitoringStatus{IsMonitoring: c.isMonitoring, AutoCheckout: c.autoCheckout}
}

// MonitoredProducts refreshes the cache from storage and returns it.
func (c *Coordinator) MonitoredProducts() []types.Product {
	products, err := c.storage.MonitoredProducts()
	if err != nil {
		c.logger.Warnf("failed to refresh monitored products: %v", err)
		c.mu.Lock()
		defer c.mu.Unlock()
		return append([]types.Product(nil), c.products...)
	}
	c.mu.Lock()
	c.products = products
	c.mu.Unlock()
	return products
}

// StartMonitoring persists the monitoring flag and interval and starts the
// configured check strategy. With the poll strategy it broadcasts a
// start-session command to every tab, opening one if none exists; tabs that
// fail to start are logged and skipped, never propagated.
func (c *Coordinator) StartMonitoring(ctx context.Context, settings types.MonitorSettings) types.Response {
	interval := config.ClampInterval(settings.RefreshInterval, c.persistedInterval())
	settings.RefreshInterval = interval

	if err := c.storage.SetBool(store.KeyIsMonitoring, true); err != nil {
		return types.Response{Success: false, Error: err.Error()}
	}
	if err := c.storage.SetRefreshInterval(interval); err != nil {
		c.logger.Warnf("failed to persist refresh interval: %v", err)
	}

	c.mu.Lock()
	c.isMonitoring = true
	c.autoCheckout = settings.AutoCheckout
	c.mu.Unlock()

	if err := c.storage.SetBool(store.KeyAutoCheckout, settings.AutoCheckout); err != nil {
		c.logger.Warnf("failed to persist auto-checkout flag: %v", err)
	}

	if c.cfg.Monitor.CheckStrategy == config.StrategyOpenHiddenTab {
		c.startSweep(settings)
	} else if err := c.startPageSessions(ctx, settings); err != nil {
		c.StatusUpdate(fmt.Sprintf("monitoring could not start: %v", err))
		return types.Response{Success: false, Error: err.Error()}
	}

	c.StatusUpdate("stock monitoring started")
	return types.Response{Success: true}
}

// startPageSessions broadcasts the start command. When no tab is open yet
// the coordinator opens one pointed at the monitored list: sequential mode
// across several products, plain polling for a single one.
func (c *Coordinator) startPageSessions(ctx context.Context, settings types.MonitorSettings) error {
	products := c.MonitoredProducts()

	c.mu.Lock()
	haveTabs := len(c.tabs) > 0
	c.mu.Unlock()

	if !haveTabs {
		if len(products) == 0 {
			return fmt.Errorf("no monitored products and no open pages")
		}
		tab, err := c.openTab(c)
		if err != nil {
			return fmt.Errorf("failed to open tab: %w", err)
		}
		if err := tab.Navigate(ctx, products[0].URL); err != nil {
			tab.Close()
			return fmt.Errorf("failed to open %s: %w", products[0].URL, err)
		}
		c.RegisterTab(tab)

		if len(products) > 1 {
			settings.IsSequential = true
			settings.CurrentIndex = 0
			settings.TotalProducts = len(products)
		}
	}

	c.broadcast(func(t Tab) error {
		if resp := t.StartMonitoring(ctx, settings); !resp.Success {
			return fmt.Errorf("%s", resp.Message)
		}
		return nil
	})
	return nil
}

// StopMonitoring persists the flag and broadcasts stop to every tab.
func (c *Coordinator) StopMonitoring(ctx context.Context) types.Response {
	if err := c.storage.SetBool(store.KeyIsMonitoring, false); err != nil {
		return types.Response{Success: false, Error: err.Error()}
	}

	c.mu.Lock()
	c.isMonitoring = false
	if c.sweepStop != nil {
		close(c.sweepStop)
		c.sweepStop = nil
	}
	c.mu.Unlock()

	c.broadcast(func(t Tab) error {
		if resp := t.StopMonitoring(ctx); !resp.Success {
			return fmt.Errorf("%s", resp.Message)
		}
		return nil
	})

	c.StatusUpdate("stock monitoring stopped")
	return types.Response{Success: true}
}

// SetAutoCheckout persists the flag and announces the change.
func (c *Coordinator) SetAutoCheckout(enabled bool) types.Response {
	if err := c.storage.SetBool(store.KeyAutoCheckout, enabled); err != nil {
		return types.Response{Success: false, Error: err.Error()}
	}

	c.mu.Lock()
	c.autoCheckout = enabled
	c.mu.Unlock()

	if enabled {
		c.StatusUpdate("auto-checkout enabled")
	} else {
		c.StatusUpdate("auto-checkout disabled")
	}
	return types.Response{Success: true}
}

// AddOrUpdateMonitoredProduct upserts by URL. An existing entry is merged
// with the incoming snapshot so persisted attributes like Quantity survive.
func (c *Coordinator) AddOrUpdateMonitoredProduct(product types.Product) types.Response {
	if product.URL == "" {
		return types.Response{Success: false, Error: "product has no URL"}
	}

	existing, err := c.storage.FindProduct(product.URL)
	if err != nil {
		return types.Response{Success: false, Error: err.Error()}
	}

	merged := product
	if existing != nil {
		merged = existing.Merge(product)
	}
	if err := c.storage.SaveProduct(merged); err != nil {
		return types.Response{Success: false, Error: err.Error()}
	}

	c.MonitoredProducts()
	c.StatusUpdate(fmt.Sprintf("added %s to the monitored list", merged.Name))
	return types.Response{Success: true}
}

// RemoveMonitoredProduct drops the product and tells collaborators to
// refresh their cached view.
func (c *Coordinator) RemoveMonitoredProduct(url string) types.Response {
	if err := c.storage.RemoveProduct(url); err != nil {
		return types.Response{Success: false, Error: err.Error()}
	}
	c.MonitoredProducts()
	c.StatusUpdate("monitored product removed")
	return types.Response{Success: true}
}

// UpdateRefreshInterval validates, persists and broadcasts a new poll
// interval.
func (c *Coordinator) UpdateRefreshInterval(ctx context.Context, seconds int) types.Response {
	if seconds < config.MinRefreshInterval {
		return types.Response{Success: false, Message: fmt.Sprintf("refresh interval must be at least %d seconds", config.MinRefreshInterval)}
	}
	if seconds > config.MaxRefreshInterval {
		return types.Response{Success: false, Message: fmt.Sprintf("refresh interval must be at most %d seconds", config.MaxRefreshInterval)}
	}

	if err := c.storage.SetRefreshInterval(seconds); err != nil {
		return types.Response{Success: false, Error: err.Error()}
	}

	c.broadcast(func(t Tab) error {
		if resp := t.UpdateInterval(ctx, seconds); !resp.Success {
			return fmt.Errorf("%s", resp.Message)
		}
		return nil
	})

	c.StatusUpdate(fmt.Sprintf("refresh interval set to %d seconds", seconds))
	return types.Response{Success: true, Message: fmt.Sprintf("refresh interval set to %d seconds", seconds)}
}

// RegisterTab adds a tab to the registry.
func (c *Coordinator) RegisterTab(t Tab) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tabs = append(c.tabs, t)
}

// broadcast applies fn to every registered tab. Per-tab failures are
// logged and otherwise ignored, mirroring messages sent to pages without a
// listener.
func (c *Coordinator) broadcast(fn func(Tab) error) {
	c.mu.Lock()
	tabs := append([]Tab(nil), c.tabs...)
	c.mu.Unlock()

	for _, t := range tabs {
		if err := fn(t); err != nil {
			c.logger.Debugf("tab %s ignored command: %v", t.ID(), err)
		}
	}
}

func (c *Coordinator) primaryTab() Tab {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tabs) == 0 {
		return nil
	}
	return c.tabs[0]
}

func (c *Coordinator) persistedInterval() int {
	seconds, err := c.storage.RefreshInterval()
	if err != nil || seconds <= 0 {
		return config.DefaultRefreshInterval
	}
	return seconds
}

// Close stops monitoring activity and releases every tab.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.sweepStop != nil {
		close(c.sweepStop)
		c.sweepStop = nil
	}
	tabs := c.tabs
	c.tabs = nil
	c.mu.Unlock()

	for _, t := range tabs {
		t.Close()
	}
}

// --- monitor.Events ---

// StatusUpdate publishes a status event.
func (c *Coordinator) StatusUpdate(message string) {
	c.logger.Info(message)
	c.publish(types.Event{Type: types.EventStatusUpdate, Message: message})
}

// StockUpdate publishes a stock event. Checkout triggering on in-stock
// product pages is owned by the page monitor itself, so no relay happens
// here.
func (c *Coordinator) StockUpdate(product types.Product, inStock, autoCheckout bool) {
	state := "out of stock"
	if inStock {
		state = "in stock"
	}
	c.logger.Infof("stock update: %s is %s", product.Name, state)
	p := product
	c.publish(types.Event{
		Type:         types.EventStockUpdate,
		Product:      &p,
		InStock:      inStock,
		AutoCheckout: autoCheckout,
		Message:      fmt.Sprintf("%s is %s", product.Name, state),
	})
}

// CheckoutComplete publishes the terminal checkout event.
func (c *Coordinator) CheckoutComplete(success bool, message string) {
	c.publish(types.Event{Type: types.EventCheckoutComplete, Success: success, Message: message})
}

// ProductsFetched adopts discovered products into the monitored list and
// publishes them.
func (c *Coordinator) ProductsFetched(products []types.Product) {
	for _, p := range products {
		if resp := c.AddOrUpdateMonitoredProduct(p); !resp.Success {
			c.logger.Warnf("could not adopt %s: %s", p.URL, resp.Error)
		}
	}
	c.publish(types.Event{
		Type:     types.EventProductsFetched,
		Products: products,
		Message:  fmt.Sprintf("fetched %d products", len(products)),
	})
}

// AdvanceSequence moves a sequential monitoring cycle to the next
// monitored URL and restarts the page session there.
func (c *Coordinator) AdvanceSequence(currentIndex, totalProducts int) {
	products := c.MonitoredProducts()
	if len(products) == 0 {
		return
	}
	next := (currentIndex + 1) % len(products)

	tab := c.primaryTab()
	if tab == nil {
		return
	}

	ctx := context.Background()
	c.logger.Infof("sequential mode: advancing to product %d/%d", next+1, len(products))
	if err := tab.Navigate(ctx, products[next].URL); err != nil {
		c.logger.Warnf("failed to advance to %s: %v", products[next].URL, err)
		return
	}

	c.mu.Lock()
	auto := c.autoCheckout
	c.mu.Unlock()

	tab.StartMonitoring(ctx, types.MonitorSettings{
		AutoCheckout:    auto,
		RefreshInterval: c.persistedInterval(),
		IsSequential:    true,
		CurrentIndex:    next,
		TotalProducts:   len(products),
	})
}

func (c *Coordinator) publish(evt types.Event) {
	evt.ID = uuid.NewString()
	evt.Time = time.Now()

	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	c.events = append(c.events, evt)
	if len(c.events) > maxBufferedEvents {
		c.events = c.events[len(c.events)-maxBufferedEvents:]
	}
}

// Events returns a copy of the buffered event stream, newest last.
func (c *Coordinator) Events() []types.Event {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	return append([]types.Event(nil), c.events...)
}

// --- hidden-tab sweep (legacy dispatch strategy) ---

// startSweep runs the legacy strategy: on every interval, each monitored
// product is checked in a throwaway tab.
func (c *Coordinator) startSweep(settings types.MonitorSettings) {
	c.mu.Lock()
	if c.sweepStop != nil {
		close(c.sweepStop)
	}
	c.sweepStop = make(chan struct{})
	stop := c.sweepStop
	c.mu.Unlock()

	interval := time.Duration(settings.RefreshInterval) * time.Second

	// The sweep outlives the start request; only StopMonitoring or Close
	// ends it, so checks run on their own context.
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		c.sweepOnce(context.Background(), settings.AutoCheckout)
		for {
			select {
			case <-ticker.C:
				c.sweepOnce(context.Background(), settings.AutoCheckout)
			case <-stop:
				return
			}
		}
	}()
}

func (c *Coordinator) sweepOnce(ctx context.Context, autoCheckout bool) {
	products := c.MonitoredProducts()
	if len(products) == 0 {
		return
	}
	c.StatusUpdate(fmt.Sprintf("checking stock for %d monitored products", len(products)))

	for _, product := range products {
		merged, err := c.checkOne(ctx, product)
		if err != nil {
			c.logger.Warnf("stock check failed for %s: %v", product.URL, err)
			continue
		}
		c.StockUpdate(*merged, merged.InStock, autoCheckout)

		if merged.InStock && autoCheckout {
			c.checkoutInTab(ctx, *merged)
		}
	}
}

func (c *Coordinator) checkOne(ctx context.Context, product types.Product) (*types.Product, error) {
	html, err := c.checker.CheckPage(ctx, product.URL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	snapshot := c.extract.ExtractProduct(product.URL, doc)
	if snapshot == nil {
		return nil, fmt.Errorf("extraction yielded nothing")
	}
	merged := product.Merge(*snapshot)
	return &merged, nil
}

func (c *Coordinator) checkoutInTab(ctx context.Context, product types.Product) {
	tab, err := c.openTab(c)
	if err != nil {
		c.logger.Errorf("failed to open checkout tab: %v", err)
		return
	}
	// The tab exists only for this attempt. It is never registered, so it
	// receives no broadcasts, and it is released on every exit path.
	defer tab.Close()

	if err := tab.Navigate(ctx, product.URL); err != nil {
		c.logger.Errorf("failed to open %s: %v", product.URL, err)
		return
	}
	result := tab.Checkout(ctx, product)
	c.logger.Infof("checkout attempt: success=%t %s", result.Success, result.Message)
}
