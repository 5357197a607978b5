package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"restock-monitor/internal/types"
)

// AddToCartSelector locates the add-to-cart control across the theme
// variants seen on the target site. Its presence and enabled state is the
// canonical purchasability signal.
const AddToCartSelector = `[name="add"], [data-add-to-cart], .add-to-cart, #AddToCart, .product-form__cart-submit, [data-button-action="add-to-cart"]`

// soldOutSelector is the superseded stock signal, still used on listing
// cards where no add-to-cart control exists in the card markup.
const soldOutSelector = ".sold-out, .out-of-stock"

// Extractor pulls structured product snapshots out of storefront documents.
// It never lets a fault escape: an unexpected panic during extraction is
// recovered, logged, and mapped to a nil result.
type Extractor struct {
	logger types.Logger

	nameStrategies  []FieldStrategy
	priceStrategies []FieldStrategy
	imageStrategies []FieldStrategy
	colorStrategies []FieldStrategy
}

// New creates an extractor with the default per-field strategy cascades.
func New(logger types.Logger) *Extractor {
	return &Extractor{
		logger: logger,
		nameStrategies: []FieldStrategy{
			structuredDataStrategy("name"),
			textStrategy(".product-title, .product-name, h1, [data-product-title]"),
			textStrategy("title"),
		},
		priceStrategies: []FieldStrategy{
			structuredDataStrategy("offers.price", "offers.0.price"),
			textStrategy(".theme-money, .price, .product-price, [data-product-price]"),
		},
		imageStrategies: []FieldStrategy{
			structuredDataStrategy("image", "image.url"),
			attrStrategy(".product-featured-image, .product-image, [data-product-image]", "src"),
		},
		colorStrategies: []FieldStrategy{
			selectedColorOption,
			textStrategy(".selected-color-name"),
			attrStrategy(".color-swatch.active", "data-value"),
			activeColorOption,
		},
	}
}

// ExtractProduct builds a Product snapshot from a single-product page.
// Exhausted cascades resolve to sentinel or absent values, never to an
// error; only a wholesale fault yields nil.
func (e *Extractor) ExtractProduct(pageURL string, doc *goquery.Document) (product *types.Product) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("product extraction failed on %s: %v", pageURL, r)
			product = nil
		}
	}()

	if doc == nil {
		return nil
	}

	name := runCascade(doc, e.nameStrategies)
	if name == "" {
		name = types.UnknownName
	}

	price := runCascade(doc, e.priceStrategies)
	if price == "" {
		price = types.UnknownPrice
	}

	return &types.Product{
		Name:    name,
		Price:   price,
		URL:     pageURL,
		Image:   runCascade(doc, e.imageStrategies),
		InStock: e.addToCartEnabled(doc.Selection),
		Sizes:   e.extractSizes(doc),
		Color:   runCascade(doc, e.colorStrategies),
	}
}

// addToCartEnabled implements the canonical stock rule: an add-to-cart
// control that exists and is not disabled means the product is purchasable.
func (e *Extractor) addToCartEnabled(scope *goquery.Selection) bool {
	control := scope.Find(AddToCartSelector).First()
	if control.Length() == 0 {
		return false
	}
	if _, disabled := control.Attr("disabled"); disabled {
		return false
	}
	return true
}

// extractSizes collects the available size options, skipping disabled
// entries and the "Size" placeholder. An empty collection is normalized to
// nil so it does not erase persisted sizes on merge.
func (e *Extractor) extractSizes(doc *goquery.Document) []string {
	var sizes []string
	doc.Find(`select[name="options[Size]"] option, .swatch-element, [data-value*="size"], [data-variant-option="size"]`).Each(func(_ int, s *goquery.Selection) {
		if _, disabled := s.Attr("disabled"); disabled {
			return
		}
		if value, ok := s.Attr("value"); ok && value != "" && value != "Size" {
			sizes = append(sizes, value)
			return
		}
		if value, ok := s.Attr("data-value"); ok && value != "" {
			sizes = append(sizes, value)
			return
		}
		if text := strings.TrimSpace(s.Text()); text != "" && text != "Size" {
			sizes = append(sizes, text)
		}
	})
	return sizes
}

// selectedColorOption reads the selected entry of a color dropdown.
func selectedColorOption(doc *goquery.Document) string {
	sel := doc.Find(`select[data-option="color"], select[id="option-color"], select[name*="Color"], select[id*="color"]`).First()
	if sel.Length() == 0 {
		return ""
	}
	option := sel.Find("option[selected]").First()
	if option.Length() == 0 {
		option = sel.Find("option").First()
	}
	return strings.TrimSpace(option.Text())
}

// activeColorOption reads the active color tile, preferring its data-value
// over its text.
func activeColorOption(doc *goquery.Document) string {
	el := doc.Find(".clickyboxes a.active, .opt-color.active").First()
	if el.Length() == 0 {
		return ""
	}
	if v, ok := el.Attr("data-value"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(el.Text())
}
