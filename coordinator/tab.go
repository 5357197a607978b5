package coordinator

import (
	"context"

	"restock-monitor/checkout"
	"restock-monitor/config"
	"restock-monitor/extractor"
	"restock-monitor/internal/types"
	"restock-monitor/monitor"
	"restock-monitor/utils"
)

// browserTab is the concrete Tab: one chromedp session plus the monitor
// state machine, checkout driver and banner renderer bound to it.
type browserTab struct {
	session *utils.Session
	monitor *monitor.Session
	driver  *checkout.Driver
}

// NewTabOpener returns a TabOpener that spawns fully wired tabs from the
// shared browser allocator. Checkout completions and monitor events flow
// back into the owning coordinator.
func NewTabOpener(browser *utils.Browser, ext *extractor.Extractor, classifier *extractor.Classifier,
	source monitor.ProductSource, cfg *config.Config, logger types.Logger) TabOpener {
	return func(c *Coordinator) (Tab, error) {
		session := browser.NewSession()
		renderer := utils.NewBannerRenderer(session)

		driver := checkout.NewDriver(session, classifier, cfg.Site, cfg.Checkout, logger)
		driver.OnComplete(c.CheckoutComplete)

		mon := monitor.NewSession(session, ext, classifier, driver, source, c, renderer,
			cfg.Site, cfg.Monitor.ReloadDelay, logger)

		return &browserTab{session: session, monitor: mon, driver: driver}, nil
	}
}

func (t *browserTab) ID() string { return t.monitor.ID }

func (t *browserTab) StartMonitoring(ctx context.Context, settings types.MonitorSettings) types.Response {
	return t.monitor.Start(ctx, settings)
}

func (t *browserTab) StopMonitoring(ctx context.Context) types.Response {
	return t.monitor.Stop(ctx)
}

func (t *browserTab) UpdateInterval(ctx context.Context, seconds int) types.Response {
	return t.monitor.UpdateInterval(ctx, seconds)
}

func (t *browserTab) CheckStock(ctx context.Context, product types.Product, autoCheckout bool) types.Response {
	return t.monitor.CheckStock(ctx, product, autoCheckout)
}

func (t *browserTab) FetchProducts(ctx context.Context) types.Response {
	return t.monitor.FetchProducts(ctx)
}

func (t *browserTab) Checkout(ctx context.Context, product types.Product) types.CheckoutResult {
	return t.driver.InitiateCheckout(ctx, product)
}

func (t *browserTab) Navigate(ctx context.Context, url string) error {
	return t.session.Navigate(ctx, url)
}

func (t *browserTab) Close() {
	t.session.Close()
}
