package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"restock-monitor/internal/types"
)

// DOM markers that identify a page type when the URL path is inconclusive.
const (
	productPageMarkers = ".product-single, .product-details, [data-product-form]"
	listingPageMarkers = ".product-grid, .collection-grid, .products-list"
)

// Classifier decides what kind of storefront page a document is. It checks
// URL shape first and falls back to structural DOM markers.
type Classifier struct {
	productMarker    string
	collectionMarker string
}

// NewClassifier creates a classifier for the given URL path markers,
// typically "/products/" and "/collections/".
func NewClassifier(productMarker, collectionMarker string) *Classifier {
	return &Classifier{
		productMarker:    productMarker,
		collectionMarker: collectionMarker,
	}
}

// IsProductPage reports whether the page is a single-product page.
func (c *Classifier) IsProductPage(pageURL string, doc *goquery.Document) bool {
	if strings.Contains(pagePath(pageURL), c.productMarker) {
		return true
	}
	return doc != nil && doc.Find(productPageMarkers).Length() > 0
}

// IsListingPage reports whether the page is a collection/listing page.
func (c *Classifier) IsListingPage(pageURL string, doc *goquery.Document) bool {
	if strings.Contains(pagePath(pageURL), c.collectionMarker) {
		return true
	}
	return doc != nil && doc.Find(listingPageMarkers).Length() > 0
}

// Classify returns the page type. The product check runs before the listing
// check, so a page matching both is classified as a product page.
func (c *Classifier) Classify(pageURL string, doc *goquery.Document) types.PageType {
	if c.IsProductPage(pageURL, doc) {
		return types.PageProduct
	}
	if c.IsListingPage(pageURL, doc) {
		return types.PageListing
	}
	return types.PageOther
}

// pagePath strips scheme and host so marker matching works on both full
// URLs and bare paths.
func pagePath(pageURL string) string {
	s := pageURL
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
		if j := strings.Index(s, "/"); j >= 0 {
			s = s[j:]
		} else {
			s = "/"
		}
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return s
}
