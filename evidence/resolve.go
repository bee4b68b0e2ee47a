// Package evidence merges the signals gathered from a rendered product page
// into one EvidenceRecord. Resolution is pure: it sees only the Signals
// snapshot, never the live browser, so the priority rules are testable
// without a page.
package evidence

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/feedguardian/evidencer/models"
	"github.com/feedguardian/evidencer/schemaorg"
)

// PriceRe matches a currency amount across $, £ and €, with optional
// thousands separators and two decimals when present.
var PriceRe = regexp.MustCompile(`(?:\$|£|€)\s?\d[\d,]*(?:\.\d{2})?`)

var outOfStockKeywords = []string{"out of stock", "sold out", "unavailable"}

// inStockKeywords is only consulted after the out-of-stock check, so the
// "available"/"unavailable" substring overlap resolves the right way.
var inStockKeywords = []string{
	"in stock", "available", "ships", "ready to ship",
	"add to cart", "add to bag", "add to basket",
}

// ReturnsHintRe matches footer wording that suggests a returns policy.
var ReturnsHintRe = regexp.MustCompile(`(?i)return|refund|exchange`)

// Signals is the snapshot of everything the orchestrator observed on the
// page. Zero values mean "not observed".
type Signals struct {
	BodyText      string // full visible page text
	DocTitle      string
	H1            string
	FinalURL      string // page URL after redirects
	CanonicalHref string // raw rel=canonical href, possibly relative
	PriceNodeText string // text of the first price-labelled element
	ButtonEnabled *bool  // add-to-cart state; nil when undeterminable
	RawHTML       string // rendered document, for structured data
}

// Resolve fills the derivable fields of the record from the signals. Each
// field is derived independently: a failure annotates Errors and leaves that
// field null, it never aborts the rest.
func Resolve(sig Signals, rec *models.EvidenceRecord) {
	deriveField(rec, models.ErrCodeExtraction, "title", func() {
		rec.Title = resolveTitle(sig)
	})
	deriveField(rec, models.ErrCodeExtraction, "canonical", func() {
		rec.Canonical = resolveCanonical(sig)
	})
	deriveField(rec, models.ErrCodeExtraction, "visible_price", func() {
		rec.VisiblePrice = resolvePrice(sig)
	})
	deriveField(rec, models.ErrCodeExtraction, "visible_availability", func() {
		rec.VisibleAvailability = resolveAvailability(sig)
	})
	deriveField(rec, models.ErrCodeStructuredData, "schema", func() {
		resolveSchema(sig, rec)
	})
}

// deriveField runs one field derivation, converting any panic into a coded
// entry in rec.Errors. Partial evidence always beats total failure.
func deriveField(rec *models.EvidenceRecord, code, field string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			rec.AddError(code, fmt.Sprintf("%s: %v", field, r))
		}
	}()
	fn()
}

// resolveTitle prefers the document title, falling back to the first-level
// heading.
func resolveTitle(sig Signals) *string {
	if t := strings.TrimSpace(sig.DocTitle); t != "" {
		return &t
	}
	if h := strings.TrimSpace(sig.H1); h != "" {
		return &h
	}
	return nil
}

// resolveCanonical resolves the rel=canonical href against the final page
// URL so relative hrefs come out absolute.
func resolveCanonical(sig Signals) *string {
	if sig.CanonicalHref == "" {
		return nil
	}
	base, err := url.Parse(sig.FinalURL)
	if err != nil {
		return nil
	}
	resolved, err := base.Parse(sig.CanonicalHref)
	if err != nil {
		return nil
	}
	s := resolved.String()
	return &s
}

// resolvePrice takes the first currency match inside the price-labelled
// element, else the first match anywhere in the visible page text.
func resolvePrice(sig Signals) *string {
	if sig.PriceNodeText != "" {
		if m := PriceRe.FindString(sig.PriceNodeText); m != "" {
			return &m
		}
		return nil
	}
	if m := PriceRe.FindString(sig.BodyText); m != "" {
		return &m
	}
	return nil
}

// resolveAvailability applies the fixed priority order: explicit
// out-of-stock wording, then in-stock wording, then the add-to-cart
// control's inferred state. Textual claims outweigh control state because
// stores sometimes leave stale-enabled buttons behind.
func resolveAvailability(sig Signals) *models.Availability {
	text := strings.ToLower(sig.BodyText)
	for _, kw := range outOfStockKeywords {
		if strings.Contains(text, kw) {
			return availability(models.OutOfStock)
		}
	}
	for _, kw := range inStockKeywords {
		if strings.Contains(text, kw) {
			return availability(models.InStock)
		}
	}
	if sig.ButtonEnabled != nil {
		if *sig.ButtonEnabled {
			return availability(models.InStock)
		}
		return availability(models.OutOfStock)
	}
	return nil
}

// resolveSchema picks the first Product-typed JSON-LD block and its offer.
// The meta-tag fallback fires only when no offer was selected at all; a
// selected offer missing its price sub-field does not re-open the gate.
func resolveSchema(sig Signals, rec *models.EvidenceRecord) {
	product, offer := schemaorg.FindProduct(schemaorg.Blocks(sig.RawHTML))
	rec.SchemaProduct = product
	rec.SchemaOffer = offer

	if rec.SchemaOffer == nil {
		rec.SchemaOffer = schemaorg.MetaOffer(sig.RawHTML)
	}
}

func availability(a models.Availability) *models.Availability {
	return &a
}
