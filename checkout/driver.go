package checkout

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"restock-monitor/config"
	"restock-monitor/extractor"
	"restock-monitor/internal/types"
)

// Browser is the slice of a live tab the driver needs. DOM decisions are
// made on HTML snapshots; only actuation goes through these methods.
type Browser interface {
	Location(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	SetValue(ctx context.Context, selector, value string) error
	Evaluate(ctx context.Context, expression string) error
}

// Quantity controls, in cascade order.
var quantityInputSelectors = []string{
	`input[name="quantity"]`,
	`input.quantity__input`,
	`[data-quantity-input]`,
	`#Quantity`,
}

var quantityPlusSelectors = []string{
	`.quantity-plus`,
	`.js-qty__adjust--plus`,
	`[data-quantity-plus]`,
	`button[name="plus"]`,
}

// Size dropdowns and clickable size options.
var sizeSelectSelectors = []string{
	`select[name="options[Size]"]`,
	`select[id*="Size"]`,
	`select[class*="size"]`,
}

const sizeOptionSelector = `.swatch-element, [data-value], [data-option-value]`

// Transient UI containers and the confirm affordances inside them.
var modalSelectors = []string{
	`.modal`,
	`.popup`,
	`[role="dialog"]`,
	`.modal-dialog`,
}

const modalCheckoutSelector = `[name="checkout"], .checkout-button, a[href*="checkout"]`
const modalConfirmSelector = `.btn-confirm, .confirm, button.primary, [data-confirm]`

var cartNotificationSelectors = []string{
	`.cart-notification`,
	`.cart-popup`,
	`.added-to-cart`,
	`.cart-success`,
}

// Fixed checkout control selectors, tried after the text-content search.
var checkoutSelectors = []string{
	`a[href="/checkout"]`,
	`a[href*="/checkout"]`,
	`form[action*="checkout"] button[type="submit"]`,
	`button[name="checkout"]`,
	`input[name="checkout"]`,
	`.cart__checkout`,
	`#checkout`,
}

// Checkout controls nested inside a cart drawer.
var drawerCheckoutSelectors = []string{
	`.cart-drawer [name="checkout"]`,
	`.mini-cart .checkout-button`,
	`.drawer a[href*="checkout"]`,
}

// checkoutTexts are the button labels the text-content search matches,
// including the site's localized label.
var checkoutTexts = []string{"Checkout", "Check out", "結帳"}

// Driver executes the add-to-cart and checkout automation sequence on a
// live tab. Every public entry point terminates with a result; no fault
// escapes.
type Driver struct {
	browser    Browser
	classifier *extractor.Classifier
	site       config.SiteConfig
	delays     config.CheckoutConfig
	logger     types.Logger

	// onComplete receives the terminal checkoutComplete event.
	onComplete func(success bool, message string)

	// sleep and schedule are injectable for tests.
	sleep    func(time.Duration)
	schedule func(time.Duration, func())
}

// NewDriver creates a checkout driver bound to one tab.
func NewDriver(browser Browser, classifier *extractor.Classifier, site config.SiteConfig, delays config.CheckoutConfig, logger types.Logger) *Driver {
	return &Driver{
		browser:    browser,
		classifier: classifier,
		site:       site,
		delays:     delays,
		logger:     logger,
		sleep:      time.Sleep,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// OnComplete registers the checkoutComplete event sink.
func (d *Driver) OnComplete(fn func(success bool, message string)) {
	d.onComplete = fn
}

func (d *Driver) emit(success bool, message string) {
	if d.onComplete != nil {
		d.onComplete(success, message)
	}
}

func (d *Driver) cartURL() string {
	return strings.TrimSuffix(d.site.BaseURL, "/") + d.site.CartPath
}

func (d *Driver) checkoutURL() string {
	return strings.TrimSuffix(d.site.BaseURL, "/") + d.site.CheckoutPath
}

// InitiateCheckout runs the full automation sequence for the product. A
// navigation the driver itself performed counts as a valid terminal
// outcome; the caller re-invokes on the next poll tick if needed.
func (d *Driver) InitiateCheckout(ctx context.Context, product types.Product) (result types.CheckoutResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("checkout failed unexpectedly: %v", r)
			// Last resort: at least get the cart in front of the operator.
			_ = d.browser.Navigate(ctx, d.cartURL())
			msg := fmt.Sprintf("checkout error: %v", r)
			d.emit(false, msg)
			result = types.CheckoutResult{Success: false, Message: msg}
		}
	}()

	d.logger.Infof("initiating checkout for %s", product.Name)

	doc, loc, err := d.snapshot(ctx)
	if err != nil {
		d.emit(false, err.Error())
		return types.CheckoutResult{Success: false, Message: err.Error()}
	}

	// Precondition: must be on the product's page. Navigate and let the
	// monitor re-invoke after the next tick sees the new document.
	if !d.classifier.IsProductPage(loc, doc) {
		d.logger.Infof("not on a product page, navigating to %s", product.URL)
		if err := d.browser.Navigate(ctx, product.URL); err != nil {
			d.emit(false, err.Error())
			return types.CheckoutResult{Success: false, Message: err.Error()}
		}
		return types.CheckoutResult{Success: false, Message: "navigating to product page"}
	}

	if qty := product.EffectiveQuantity(); qty > 1 {
		d.setQuantity(ctx, doc, qty)
	}

	if len(product.Sizes) > 0 {
		if err := d.selectSize(ctx, doc, product.Sizes[0]); err != nil {
			// Best effort: a failed size selection does not abort the flow.
			d.logger.Warnf("size selection failed: %v", err)
		}
	}

	if res := d.addToCart(ctx, doc); !res.Success {
		d.emit(false, res.Message)
		return res
	}

	d.sleep(d.delays.CartSettleDelay)

	doc, _, err = d.snapshot(ctx)
	if err == nil {
		d.dismissTransientUI(ctx, doc)
		d.proceedToCheckout(ctx, doc)
	} else {
		d.logger.Warnf("could not re-read page after add to cart: %v", err)
		d.navigateCartWithFallback(ctx)
	}

	d.sleep(d.delays.CheckoutSettleDelay)

	if loc, err := d.browser.Location(ctx); err == nil {
		if !strings.Contains(loc, d.site.CartPath) && !strings.Contains(loc, d.site.CheckoutPath) {
			d.logger.Info("not on cart or checkout yet, running secondary checkout pass")
			d.secondaryProceedToCheckout(ctx)
		}
	}

	msg := fmt.Sprintf("added %s to cart and proceeded toward checkout", product.Name)
	d.emit(true, msg)
	return types.CheckoutResult{Success: true, Message: msg}
}

// snapshot reads the tab's current location and document.
func (d *Driver) snapshot(ctx context.Context) (*goquery.Document, string, error) {
	loc, err := d.browser.Location(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read page location: %w", err)
	}
	html, err := d.browser.HTML(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read page content: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, loc, nil
}

// setQuantity sets the purchase quantity. Cascade: a numeric input with
// change+input notifications, then repeated plus-control clicks assuming a
// starting value of one. No matching control is a no-op, not a failure.
func (d *Driver) setQuantity(ctx context.Context, doc *goquery.Document, qty int) {
	d.logger.Infof("setting quantity to %d", qty)

	if sel, ok := firstMatch(doc, quantityInputSelectors); ok {
		if err := d.browser.SetValue(ctx, sel, strconv.Itoa(qty)); err != nil {
			d.logger.Warnf("failed to set quantity input: %v", err)
			return
		}
		_ = d.browser.Evaluate(ctx, notifyInputJS(sel))
		return
	}

	if sel, ok := firstMatch(doc, quantityPlusSelectors); ok {
		for i := 1; i < qty; i++ {
			if err := d.browser.Click(ctx, sel); err != nil {
				d.logger.Warnf("quantity increase click failed: %v", err)
				return
			}
		}
		return
	}

	d.logger.Debug("no quantity control found, leaving default quantity")
}

// selectSize selects the given size. Cascade: dropdown option matched by
// text or value, then a clickable swatch matched by text or data attribute.
func (d *Driver) selectSize(ctx context.Context, doc *goquery.Document, size string) error {
	d.logger.Infof("selecting size %s", size)

	for _, selSelector := range sizeSelectSelectors {
		sel := doc.Find(selSelector).First()
		if sel.Length() == 0 {
			continue
		}
		var value string
		sel.Find("option").EachWithBreak(func(_ int, opt *goquery.Selection) bool {
			text := strings.TrimSpace(opt.Text())
			v, _ := opt.Attr("value")
			if strings.Contains(text, size) || strings.Contains(v, size) {
				value = v
				return false
			}
			return true
		})
		if value == "" {
			continue
		}
		if err := d.browser.SetValue(ctx, selSelector, value); err != nil {
			return err
		}
		_ = d.browser.Evaluate(ctx, notifyInputJS(selSelector))
		return nil
	}

	// Clickable swatches: prefer an addressable attribute selector, fall
	// back to a text-content click inside the page.
	match := doc.Find(sizeOptionSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), size) {
			return true
		}
		if v, ok := s.Attr("data-value"); ok && strings.Contains(v, size) {
			return true
		}
		v, ok := s.Attr("data-option-value")
		return ok && strings.Contains(v, size)
	})
	if match.Length() == 0 {
		return fmt.Errorf("no size option found for %q", size)
	}
	if v, ok := match.First().Attr("data-value"); ok {
		return d.browser.Click(ctx, fmt.Sprintf(`[data-value=%q]`, v))
	}
	if v, ok := match.First().Attr("data-option-value"); ok {
		return d.browser.Click(ctx, fmt.Sprintf(`[data-option-value=%q]`, v))
	}
	return d.browser.Evaluate(ctx, clickByTextJS(sizeOptionSelector, size))
}

// addToCart locates and activates the add-to-cart control. Absence and
// disabled state are distinct failures.
func (d *Driver) addToCart(ctx context.Context, doc *goquery.Document) types.CheckoutResult {
	control := doc.Find(extractor.AddToCartSelector).First()
	if control.Length() == 0 {
		return types.CheckoutResult{Success: false, Message: "add-to-cart control not found"}
	}
	if _, disabled := control.Attr("disabled"); disabled {
		return types.CheckoutResult{Success: false, Message: "add-to-cart control disabled, likely sold out"}
	}

	d.logger.Info("clicking add to cart")
	if err := d.browser.Click(ctx, extractor.AddToCartSelector); err != nil {
		return types.CheckoutResult{Success: false, Message: fmt.Sprintf("add-to-cart click failed: %v", err)}
	}
	return types.CheckoutResult{Success: true, Message: "added to cart"}
}

// dismissTransientUI closes modals and cart-added notifications that appear
// after add to cart, preferring proceed-to-checkout affordances over
// generic confirms. All failures here are ignored.
func (d *Driver) dismissTransientUI(ctx context.Context, doc *goquery.Document) {
	for _, container := range modalSelectors {
		modal := doc.Find(container)
		if modal.Length() == 0 {
			continue
		}
		d.logger.Debugf("dismissing modal %s", container)
		if modal.Find(modalCheckoutSelector).Length() > 0 {
			_ = d.browser.Click(ctx, scopedSelector(container, modalCheckoutSelector))
			continue
		}
		if modal.Find(modalConfirmSelector).Length() > 0 {
			_ = d.browser.Click(ctx, scopedSelector(container, modalConfirmSelector))
		}
	}

	for _, container := range cartNotificationSelectors {
		note := doc.Find(container)
		if note.Length() == 0 {
			continue
		}
		link := note.Find(modalCheckoutSelector).First()
		if link.Length() == 0 {
			continue
		}
		d.logger.Debugf("following checkout link in %s", container)
		_ = d.browser.Click(ctx, scopedSelector(container, modalCheckoutSelector))
		if href, ok := link.Attr("href"); ok {
			_ = d.browser.Navigate(ctx, d.absolute(href))
		}
	}
}

// proceedToCheckout finds and activates a checkout control: text-content
// search, then fixed selectors, then drawer-nested controls. Each found
// control gets three redundant triggers since site script may swallow any
// one of them. If nothing is found the driver falls back to direct cart
// navigation with a delayed checkout-path navigation.
func (d *Driver) proceedToCheckout(ctx context.Context, doc *goquery.Document) {
	if el, ok := findByText(doc, checkoutTexts); ok {
		d.logger.Info("activating checkout control found by text")
		d.triggerAll(ctx, el)
		return
	}

	for _, sel := range checkoutSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			d.logger.Infof("activating checkout control %s", sel)
			d.triggerAll(ctx, target{selector: sel, href: hrefOf(found)})
			return
		}
	}

	for _, sel := range drawerCheckoutSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			d.logger.Infof("activating drawer checkout control %s", sel)
			d.triggerAll(ctx, target{selector: sel, href: hrefOf(found)})
			return
		}
	}

	d.logger.Warn("no checkout control found anywhere")
	d.navigateCartWithFallback(ctx)
}

// secondaryProceedToCheckout is an independent fallback pass with the same
// responsibilities as the primary one, kept separate for resilience.
func (d *Driver) secondaryProceedToCheckout(ctx context.Context) {
	doc, _, err := d.snapshot(ctx)
	if err != nil {
		_ = d.browser.Navigate(ctx, d.checkoutURL())
		return
	}

	for _, container := range []string{".cart-drawer", ".mini-cart", ".drawer"} {
		drawer := doc.Find(container)
		if drawer.Length() == 0 {
			continue
		}
		button := drawer.Find(`[name="checkout"], .checkout-button, a[href*="checkout"]`).First()
		if button.Length() == 0 {
			continue
		}
		_ = d.browser.Click(ctx, scopedSelector(container, `[name="checkout"], .checkout-button, a[href*="checkout"]`))
		if href, ok := button.Attr("href"); ok {
			_ = d.browser.Navigate(ctx, d.absolute(href))
		}
		return
	}

	_ = d.browser.Navigate(ctx, d.checkoutURL())
}

// navigateCartWithFallback goes straight to the cart and schedules a
// delayed navigation to checkout in case the cart page does not advance on
// its own.
func (d *Driver) navigateCartWithFallback(ctx context.Context) {
	_ = d.browser.Navigate(ctx, d.cartURL())
	checkoutURL := d.checkoutURL()
	d.schedule(d.delays.FallbackNavDelay, func() {
		if loc, err := d.browser.Location(context.Background()); err == nil && strings.Contains(loc, d.site.CheckoutPath) {
			return
		}
		_ = d.browser.Navigate(context.Background(), checkoutURL)
	})
}

// target is an activatable control: a CSS selector plus, when the control
// is a link, its navigation destination.
type target struct {
	selector string
	text     string
	href     string
}

// triggerAll fires the three redundant activation triggers: a driver-level
// click, a synthesized pointer click inside the page, and direct
// navigation via the link target when one exists.
func (d *Driver) triggerAll(ctx context.Context, t target) {
	if t.selector != "" {
		if err := d.browser.Click(ctx, t.selector); err != nil {
			d.logger.Debugf("driver click ignored: %v", err)
		}
		_ = d.browser.Evaluate(ctx, pointerClickJS(t.selector))
	} else if t.text != "" {
		_ = d.browser.Evaluate(ctx, clickByTextJS("a, button, input[type=submit]", t.text))
	}
	if t.href != "" {
		_ = d.browser.Navigate(ctx, d.absolute(t.href))
	}
}

func (d *Driver) absolute(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		return strings.TrimSuffix(d.site.BaseURL, "/") + href
	}
	return strings.TrimSuffix(d.site.BaseURL, "/") + "/" + href
}

// findByText locates a link or button whose visible text matches one of
// the given labels.
func findByText(doc *goquery.Document, texts []string) (target, bool) {
	var result target
	var found bool
	doc.Find("a, button, input[type=submit]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := strings.TrimSpace(s.Text())
		if label == "" {
			label, _ = s.Attr("value")
		}
		for _, want := range texts {
			if strings.Contains(label, want) {
				result = target{text: want, href: hrefOf(s)}
				if id, ok := s.Attr("id"); ok && id != "" {
					result.selector = "#" + id
				}
				found = true
				return false
			}
		}
		return true
	})
	return result, found
}

func hrefOf(s *goquery.Selection) string {
	href, _ := s.Attr("href")
	return href
}

// firstMatch returns the first selector from the cascade that matches the
// document.
func firstMatch(doc *goquery.Document, selectors []string) (string, bool) {
	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			return sel, true
		}
	}
	return "", false
}

// scopedSelector prefixes every alternative of a comma-separated selector
// list with a container selector, so clicks stay inside the container.
func scopedSelector(container, selectorList string) string {
	parts := strings.Split(selectorList, ",")
	for i, p := range parts {
		parts[i] = container + " " + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func pointerClickJS(selector string) string {
	return fmt.Sprintf(`(function() {
  var el = document.querySelector(%s);
  if (!el) return;
  var ev = new MouseEvent('click', {bubbles: true, cancelable: true, view: window});
  el.dispatchEvent(ev);
})();`, strconv.Quote(selector))
}

func notifyInputJS(selector string) string {
	return fmt.Sprintf(`(function() {
  var el = document.querySelector(%s);
  if (!el) return;
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
})();`, strconv.Quote(selector))
}

func clickByTextJS(scopeSelector, text string) string {
	return fmt.Sprintf(`(function() {
  var els = document.querySelectorAll(%s);
  for (var i = 0; i < els.length; i++) {
    var label = (els[i].textContent || els[i].value || '').trim();
    if (label.indexOf(%s) !== -1) {
      els[i].click();
      var ev = new MouseEvent('click', {bubbles: true, cancelable: true, view: window});
      els[i].dispatchEvent(ev);
      if (els[i].href) { window.location.href = els[i].href; }
      return;
    }
  }
})();`, strconv.Quote(scopeSelector), strconv.Quote(text))
}
