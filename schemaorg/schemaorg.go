// Package schemaorg pulls embedded schema.org structured data out of a
// rendered document. Sites routinely embed malformed or irrelevant JSON-LD
// blocks, so individual parse failures are skipped, never surfaced.
package schemaorg

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Blocks returns every JSON-LD object found in the document, in document
// order. Top-level arrays are flattened into their elements. Blocks that are
// empty, malformed, or not objects are dropped.
func Blocks(rawHTML string) []map[string]any {
	var out []map[string]any

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return out
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(text), &data); err != nil {
			return
		}
		switch v := data.(type) {
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					out = append(out, m)
				}
			}
		case map[string]any:
			out = append(out, v)
		}
	})

	return out
}

// TypeStrings normalizes a block's @type tag, which may be a single string
// or a list, into the set of type strings it names.
func TypeStrings(block map[string]any) []string {
	switch t := block["@type"].(type) {
	case string:
		return []string{t}
	case []any:
		var types []string
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		return types
	default:
		return nil
	}
}

// FindProduct returns the first block whose type contains "Product"
// (case-sensitive substring, so MyProductPage-style subtypes match too),
// along with its first offer. Absence of a Product block is a normal
// outcome, not an error: both returns are nil.
func FindProduct(blocks []map[string]any) (product, offer map[string]any) {
	for _, block := range blocks {
		if !isProduct(block) {
			continue
		}
		return block, firstOffer(block)
	}
	return nil, nil
}

func isProduct(block map[string]any) bool {
	for _, t := range TypeStrings(block) {
		if strings.Contains(t, "Product") {
			return true
		}
	}
	return false
}

// firstOffer reads the offer under either casing of the key. A list-valued
// offer yields its first element.
func firstOffer(product map[string]any) map[string]any {
	var raw any
	for _, key := range []string{"offers", "Offers"} {
		v, ok := product[key]
		if !ok || v == nil {
			continue
		}
		// An empty list is as good as absent; let the other casing win.
		if list, isList := v.([]any); isList && len(list) == 0 {
			continue
		}
		raw = v
		break
	}

	switch v := raw.(type) {
	case []any:
		if len(v) == 0 {
			return nil
		}
		if m, ok := v[0].(map[string]any); ok {
			return m
		}
		return nil
	case map[string]any:
		return v
	default:
		return nil
	}
}

// MetaOffer builds a minimal offer from price/currency meta tags. Used as a
// fallback when no JSON-LD Product block yielded an offer at all (the gate
// is offer presence, not price presence). Returns nil when no price tag
// exists.
func MetaOffer(rawHTML string) map[string]any {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	price := firstMetaContent(doc,
		`meta[itemprop="price"]`, `meta[property="product:price:amount"]`)
	if price == "" {
		return nil
	}

	offer := map[string]any{"price": price}
	if curr := firstMetaContent(doc,
		`meta[itemprop="priceCurrency"]`, `meta[property="product:price:currency"]`); curr != "" {
		offer["priceCurrency"] = curr
	} else {
		offer["priceCurrency"] = nil
	}
	return offer
}

func firstMetaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if content, ok := doc.Find(sel).First().Attr("content"); ok && content != "" {
			return content
		}
	}
	return ""
}
