package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// FieldStrategy is one step of an extraction cascade: a pure function that
// either yields a value from the document or an empty string. Strategies are
// evaluated in order until one succeeds.
type FieldStrategy func(doc *goquery.Document) string

// runCascade evaluates strategies in order and returns the first non-empty
// result.
func runCascade(doc *goquery.Document, strategies []FieldStrategy) string {
	for _, strategy := range strategies {
		if v := strategy(doc); v != "" {
			return v
		}
	}
	return ""
}

// textStrategy yields the trimmed text of the first element matching the
// selector.
func textStrategy(selector string) FieldStrategy {
	return func(doc *goquery.Document) string {
		return strings.TrimSpace(doc.Find(selector).First().Text())
	}
}

// attrStrategy yields the named attribute of the first element matching the
// selector.
func attrStrategy(selector, attr string) FieldStrategy {
	return func(doc *goquery.Document) string {
		v, _ := doc.Find(selector).First().Attr(attr)
		return strings.TrimSpace(v)
	}
}

// structuredDataStrategy reads a field from the page's JSON-LD product
// blocks. Shopify themes embed these reliably even when the visible markup
// varies, so this runs ahead of the selector strategies.
func structuredDataStrategy(path ...string) FieldStrategy {
	return func(doc *goquery.Document) string {
		var value string
		doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			raw := s.Text()
			if !gjson.Valid(raw) {
				return true
			}
			node := gjson.Parse(raw)
			// Some themes wrap the product in a @graph array.
			if graph := node.Get("@graph"); graph.IsArray() {
				graph.ForEach(func(_, item gjson.Result) bool {
					if item.Get("@type").String() == "Product" {
						node = item
						return false
					}
					return true
				})
			}
			if node.Get("@type").String() != "Product" {
				return true
			}
			for _, p := range path {
				if r := node.Get(p); r.Exists() {
					if r.IsArray() {
						r = r.Get("0")
					}
					if v := strings.TrimSpace(r.String()); v != "" {
						value = v
						return false
					}
				}
			}
			return true
		})
		return value
	}
}
