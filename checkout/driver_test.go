package checkout

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restock-monitor/config"
	"restock-monitor/extractor"
	"restock-monitor/internal/types"
)

func mustParse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

// scriptedBrowser records every actuation and lets tests swap the page
// content in reaction to clicks.
type scriptedBrowser struct {
	location string
	html     string

	clicks    []string
	setValues map[string]string
	evals     []string
	visited   []string

	onClick func(selector string)
}

func newScriptedBrowser(location, html string) *scriptedBrowser {
	return &scriptedBrowser{location: location, html: html, setValues: map[string]string{}}
}

func (b *scriptedBrowser) Location(ctx context.Context) (string, error) { return b.location, nil }

func (b *scriptedBrowser) Navigate(ctx context.Context, url string) error {
	b.location = url
	b.visited = append(b.visited, url)
	return nil
}

func (b *scriptedBrowser) HTML(ctx context.Context) (string, error) { return b.html, nil }

func (b *scriptedBrowser) Click(ctx context.Context, selector string) error {
	b.clicks = append(b.clicks, selector)
	if b.onClick != nil {
		b.onClick(selector)
	}
	return nil
}

func (b *scriptedBrowser) SetValue(ctx context.Context, selector, value string) error {
	b.setValues[selector] = value
	return nil
}

func (b *scriptedBrowser) Evaluate(ctx context.Context, expression string) error {
	b.evals = append(b.evals, expression)
	return nil
}

func testSite() config.SiteConfig {
	return config.SiteConfig{
		BaseURL:          "https://example.com",
		ProductMarker:    "/products/",
		CollectionMarker: "/collections/",
		CartPath:         "/cart",
		CheckoutPath:     "/checkout",
	}
}

func newTestDriver(browser Browser) (*Driver, *[]string) {
	d := NewDriver(browser, extractor.NewClassifier("/products/", "/collections/"), testSite(),
		config.CheckoutConfig{}, logrus.New())
	d.sleep = func(time.Duration) {}
	d.schedule = func(_ time.Duration, fn func()) { fn() }

	var completions []string
	d.OnComplete(func(success bool, message string) {
		state := "failure"
		if success {
			state = "success"
		}
		completions = append(completions, state+": "+message)
	})
	return d, &completions
}

const productPageHTML = `<html><body>
	<h1 class="product-title">Linen Shirt</h1>
	<button name="add">Add to cart</button>
	<a href="/checkout" id="go-checkout">Checkout</a>
</body></html>`

func TestInitiateCheckout_NotOnProductPage(t *testing.T) {
	browser := newScriptedBrowser("https://example.com/collections/new", "<html><body></body></html>")
	d, completions := newTestDriver(browser)

	result := d.InitiateCheckout(context.Background(),
		types.Product{Name: "Linen Shirt", URL: "https://example.com/products/linen-shirt"})

	assert.False(t, result.Success)
	assert.Equal(t, "navigating to product page", result.Message)
	assert.Equal(t, []string{"https://example.com/products/linen-shirt"}, browser.visited)
	// Not a terminal outcome: the monitor retries on the next tick, so no
	// completion event fires.
	assert.Empty(t, *completions)
}

func TestInitiateCheckout_HappyPath(t *testing.T) {
	browser := newScriptedBrowser("https://example.com/products/linen-shirt", productPageHTML)
	d, completions := newTestDriver(browser)

	result := d.InitiateCheckout(context.Background(),
		types.Product{Name: "Linen Shirt", URL: "https://example.com/products/linen-shirt"})

	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "Linen Shirt")

	require.NotEmpty(t, browser.clicks)
	assert.Equal(t, extractor.AddToCartSelector, browser.clicks[0])
	// The checkout link found by text carries an id and an href, so both the
	// click and the direct navigation trigger fire.
	assert.Contains(t, browser.clicks, "#go-checkout")
	assert.Contains(t, browser.visited, "https://example.com/checkout")

	require.Len(t, *completions, 1)
	assert.Contains(t, (*completions)[0], "success")
}

func TestInitiateCheckout_AddToCartMissing(t *testing.T) {
	browser := newScriptedBrowser("https://example.com/products/linen-shirt",
		`<html><body><h1 class="product-title">Linen Shirt</h1><div class="product-single"></div></body></html>`)
	d, completions := newTestDriver(browser)

	result := d.InitiateCheckout(context.Background(), types.Product{Name: "Linen Shirt"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "not found")
	require.Len(t, *completions, 1)
	assert.Contains(t, (*completions)[0], "failure")
}

func TestInitiateCheckout_AddToCartDisabled(t *testing.T) {
	browser := newScriptedBrowser("https://example.com/products/linen-shirt",
		`<html><body><button name="add" disabled>Sold out</button></body></html>`)
	d, completions := newTestDriver(browser)

	result := d.InitiateCheckout(context.Background(), types.Product{Name: "Linen Shirt"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "disabled")
	assert.Empty(t, browser.clicks)
	require.Len(t, *completions, 1)
}

func TestInitiateCheckout_NoCheckoutControlFallsBackToCart(t *testing.T) {
	browser := newScriptedBrowser("https://example.com/products/linen-shirt",
		`<html><body><button name="add">Add to cart</button></body></html>`)
	d, _ := newTestDriver(browser)

	result := d.InitiateCheckout(context.Background(), types.Product{Name: "Linen Shirt"})

	assert.True(t, result.Success)
	// With no checkout control anywhere the driver goes to the cart, and the
	// scheduled fallback pushes on to the checkout path.
	assert.Contains(t, browser.visited, "https://example.com/cart")
	assert.Contains(t, browser.visited, "https://example.com/checkout")
}

func TestInitiateCheckout_Quantity(t *testing.T) {
	browser := newScriptedBrowser("https://example.com/products/linen-shirt",
		`<html><body>
			<input name="quantity" value="1">
			<button name="add">Add to cart</button>
			<a href="/checkout">Checkout</a>
		</body></html>`)
	d, _ := newTestDriver(browser)

	d.InitiateCheckout(context.Background(), types.Product{Name: "Linen Shirt", Quantity: 3})

	assert.Equal(t, "3", browser.setValues[`input[name="quantity"]`])
}

func TestInitiateCheckout_QuantityPlusClicks(t *testing.T) {
	browser := newScriptedBrowser("https://example.com/products/linen-shirt",
		`<html><body>
			<button class="quantity-plus">+</button>
			<button name="add">Add to cart</button>
			<a href="/checkout">Checkout</a>
		</body></html>`)
	d, _ := newTestDriver(browser)

	d.InitiateCheckout(context.Background(), types.Product{Name: "Linen Shirt", Quantity: 3})

	plusClicks := 0
	for _, c := range browser.clicks {
		if c == ".quantity-plus" {
			plusClicks++
		}
	}
	// Two increments take the default quantity of one up to three.
	assert.Equal(t, 2, plusClicks)
}

func TestInitiateCheckout_SizeDropdown(t *testing.T) {
	browser := newScriptedBrowser("https://example.com/products/linen-shirt",
		`<html><body>
			<select name="options[Size]">
				<option value="id-s">S</option>
				<option value="id-m">M</option>
			</select>
			<button name="add">Add to cart</button>
			<a href="/checkout">Checkout</a>
		</body></html>`)
	d, _ := newTestDriver(browser)

	d.InitiateCheckout(context.Background(), types.Product{Name: "Linen Shirt", Sizes: []string{"M"}})

	assert.Equal(t, "id-m", browser.setValues[`select[name="options[Size]"]`])
}

func TestInitiateCheckout_SizeSwatchClick(t *testing.T) {
	browser := newScriptedBrowser("https://example.com/products/linen-shirt",
		`<html><body>
			<div class="swatch-element" data-value="M">M</div>
			<button name="add">Add to cart</button>
			<a href="/checkout">Checkout</a>
		</body></html>`)
	d, _ := newTestDriver(browser)

	d.InitiateCheckout(context.Background(), types.Product{Name: "Linen Shirt", Sizes: []string{"M"}})

	assert.Contains(t, browser.clicks, `[data-value="M"]`)
}

func TestInitiateCheckout_ModalCheckoutPreferred(t *testing.T) {
	cartHTML := `<html><body>
		<div class="modal">
			<button class="btn-confirm">Keep shopping</button>
			<a href="/checkout" name="checkout">Checkout</a>
		</div>
	</body></html>`

	browser := newScriptedBrowser("https://example.com/products/linen-shirt",
		`<html><body><button name="add">Add to cart</button></body></html>`)
	browser.onClick = func(selector string) {
		if selector == extractor.AddToCartSelector {
			browser.html = cartHTML
		}
	}
	d, _ := newTestDriver(browser)

	d.InitiateCheckout(context.Background(), types.Product{Name: "Linen Shirt"})

	// The modal's own checkout affordance is activated, not the generic
	// confirm button.
	assert.Contains(t, browser.clicks, `.modal [name="checkout"], .modal .checkout-button, .modal a[href*="checkout"]`)
	for _, c := range browser.clicks {
		assert.NotContains(t, c, "btn-confirm")
	}
}

func TestScopedSelector(t *testing.T) {
	got := scopedSelector(".modal", "a, button.go")
	assert.Equal(t, ".modal a, .modal button.go", got)
}

func TestFindByText(t *testing.T) {
	doc := mustParse(t, `<html><body>
		<a href="/elsewhere">Continue shopping</a>
		<button id="co">Check out</button>
	</body></html>`)

	el, ok := findByText(doc, checkoutTexts)
	require.True(t, ok)
	assert.Equal(t, "#co", el.selector)
	assert.Equal(t, "Check out", el.text)
}

func TestFindByText_InputValue(t *testing.T) {
	doc := mustParse(t, `<html><body><input type="submit" value="Checkout"></body></html>`)

	el, ok := findByText(doc, checkoutTexts)
	require.True(t, ok)
	assert.Equal(t, "Checkout", el.text)
	assert.Empty(t, el.selector)
}
