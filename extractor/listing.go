package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"restock-monitor/internal/types"
)

// productCardSelector matches the product-card containers of common
// storefront listing layouts.
const productCardSelector = ".product-card, .product-item, .product, [data-product-card]"

// ExtractListing builds one Product per product card on a listing page.
// Cards without a product link are skipped; a faulty card is logged and
// skipped without aborting the scan.
func (e *Extractor) ExtractListing(baseURL string, doc *goquery.Document) []types.Product {
	var products []types.Product
	if doc == nil {
		return products
	}

	doc.Find(productCardSelector).Each(func(i int, card *goquery.Selection) {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Errorf("listing card %d extraction failed: %v", i, r)
			}
		}()

		link, ok := card.Find(`a[href*="/products/"]`).First().Attr("href")
		if !ok {
			return
		}
		productURL := absoluteURL(baseURL, link)
		if productURL == "" {
			return
		}

		name := strings.TrimSpace(card.Find(".product-title, .product-name, h2, h3").First().Text())
		if name == "" {
			name = types.UnknownName
		}
		price := strings.TrimSpace(card.Find(".price, .product-price, [data-product-price]").First().Text())
		if price == "" {
			price = types.UnknownPrice
		}
		image, _ := card.Find("img").First().Attr("src")

		products = append(products, types.Product{
			Name:    name,
			Price:   price,
			URL:     productURL,
			Image:   image,
			InStock: e.cardInStock(card),
		})
	})

	return products
}

// cardInStock decides purchasability for a listing card. Cards that carry
// their own add-to-cart control use the canonical enabled test; cards
// without one fall back to the sold-out marker.
func (e *Extractor) cardInStock(card *goquery.Selection) bool {
	if card.Find(AddToCartSelector).Length() > 0 {
		return e.addToCartEnabled(card)
	}
	return card.Find(soldOutSelector).Length() == 0
}

// ExtractCollectionLinks finds the collection links on a home page,
// excluding links that point at individual products, deduplicated in
// document order. The caller navigates to the first one to reach a
// scannable listing.
func (e *Extractor) ExtractCollectionLinks(baseURL string, doc *goquery.Document) []string {
	var links []string
	seen := make(map[string]bool)

	doc.Find(`a[href*="/collections/"]`).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.Contains(href, "/products/") {
			return
		}
		abs := absoluteURL(baseURL, href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, abs)
	})

	return links
}

// absoluteURL normalizes a possibly relative href against the site base and
// validates the result.
func absoluteURL(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "/") {
		href = strings.TrimSuffix(baseURL, "/") + href
	} else if !strings.HasPrefix(href, "http") {
		href = strings.TrimSuffix(baseURL, "/") + "/" + href
	}
	if _, err := url.Parse(href); err != nil {
		return ""
	}
	return href
}
