package evidence

import (
	"testing"

	"github.com/feedguardian/evidencer/models"
)

func boolPtr(b bool) *bool { return &b }

func resolve(sig Signals) *models.EvidenceRecord {
	rec := models.NewEvidenceRecord("https://shop.example.com/p/widget", 1700000000)
	Resolve(sig, rec)
	return rec
}

func TestAvailability_TextBeatsEnabledButton(t *testing.T) {
	rec := resolve(Signals{
		BodyText:      "Blue Widget — Sold Out. Sign up for restock alerts.",
		ButtonEnabled: boolPtr(true),
	})
	if rec.VisibleAvailability == nil || *rec.VisibleAvailability != models.OutOfStock {
		t.Errorf("explicit sold-out text must outweigh an enabled control, got %v", rec.VisibleAvailability)
	}
}

func TestAvailability_OutOfStockBeforeInStock(t *testing.T) {
	// "unavailable" contains "available"; the out-of-stock pass runs first.
	rec := resolve(Signals{BodyText: "This item is currently unavailable."})
	if rec.VisibleAvailability == nil || *rec.VisibleAvailability != models.OutOfStock {
		t.Errorf("got %v, want OUT_OF_STOCK", rec.VisibleAvailability)
	}
}

func TestAvailability_ButtonFallback(t *testing.T) {
	tests := []struct {
		name    string
		enabled *bool
		want    *models.Availability
	}{
		{"enabled button", boolPtr(true), availability(models.InStock)},
		{"disabled button", boolPtr(false), availability(models.OutOfStock)},
		{"unknown button", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := resolve(Signals{
				BodyText:      "Lorem ipsum, no stock wording here.",
				ButtonEnabled: tt.enabled,
			})
			switch {
			case tt.want == nil && rec.VisibleAvailability != nil:
				t.Errorf("want null availability, got %v", *rec.VisibleAvailability)
			case tt.want != nil && (rec.VisibleAvailability == nil || *rec.VisibleAvailability != *tt.want):
				t.Errorf("got %v, want %v", rec.VisibleAvailability, *tt.want)
			}
		})
	}
}

func TestPrice_FirstMatchInPriceNode(t *testing.T) {
	rec := resolve(Signals{
		PriceNodeText: "Now $1,299.00 (was $1,499.00)",
		BodyText:      "everything is $9.99 here",
	})
	if rec.VisiblePrice == nil || *rec.VisiblePrice != "$1,299.00" {
		t.Errorf("got %v, want first match $1,299.00", rec.VisiblePrice)
	}
}

func TestPrice_BodyFallback(t *testing.T) {
	rec := resolve(Signals{BodyText: "Special offer: €49.00 while stocks last"})
	if rec.VisiblePrice == nil || *rec.VisiblePrice != "€49.00" {
		t.Errorf("got %v, want €49.00", rec.VisiblePrice)
	}
}

func TestPrice_NoMatch(t *testing.T) {
	rec := resolve(Signals{BodyText: "contact us for pricing"})
	if rec.VisiblePrice != nil {
		t.Errorf("want null price, got %q", *rec.VisiblePrice)
	}
}

func TestTitle_DocTitleThenH1(t *testing.T) {
	rec := resolve(Signals{DocTitle: "  Blue Widget | Shop  "})
	if rec.Title == nil || *rec.Title != "Blue Widget | Shop" {
		t.Errorf("got %v, want trimmed document title", rec.Title)
	}

	rec = resolve(Signals{DocTitle: "   ", H1: "Blue Widget"})
	if rec.Title == nil || *rec.Title != "Blue Widget" {
		t.Errorf("blank document title should fall back to h1, got %v", rec.Title)
	}
}

func TestCanonical_ResolvesRelative(t *testing.T) {
	rec := resolve(Signals{
		FinalURL:      "https://shop.example.com/products/widget?variant=1",
		CanonicalHref: "/products/widget",
	})
	if rec.Canonical == nil || *rec.Canonical != "https://shop.example.com/products/widget" {
		t.Errorf("got %v, want resolved absolute canonical", rec.Canonical)
	}
}

func TestCanonical_AbsentLink(t *testing.T) {
	rec := resolve(Signals{FinalURL: "https://shop.example.com/p"})
	if rec.Canonical != nil {
		t.Errorf("want null canonical, got %q", *rec.Canonical)
	}
}

func TestSchema_OfferFromJSONLD(t *testing.T) {
	rec := resolve(Signals{RawHTML: `<script type="application/ld+json">
	{"@type":"Product","name":"w","offers":[{"price":"10.00","priceCurrency":"USD"}]}
	</script>`})
	if rec.SchemaProduct == nil {
		t.Fatal("expected schema product")
	}
	if rec.SchemaOffer == nil || rec.SchemaOffer["price"] != "10.00" {
		t.Errorf("got offer %v, want first array element", rec.SchemaOffer)
	}
}

func TestSchema_MetaFallbackOnlyWithoutJSONLDOffer(t *testing.T) {
	// Product block with an offer lacking a price: the meta fallback must
	// NOT fire, the gate is offer presence.
	rec := resolve(Signals{RawHTML: `
	<script type="application/ld+json">{"@type":"Product","offers":{"availability":"InStock"}}</script>
	<meta itemprop="price" content="99.99">`})
	if _, ok := rec.SchemaOffer["price"]; ok {
		t.Errorf("meta fallback fired despite a JSON-LD offer: %v", rec.SchemaOffer)
	}

	// No JSON-LD offer at all: fallback applies.
	rec = resolve(Signals{RawHTML: `<meta itemprop="price" content="99.99">`})
	if rec.SchemaOffer == nil || rec.SchemaOffer["price"] != "99.99" {
		t.Errorf("meta fallback should fire without any JSON-LD offer, got %v", rec.SchemaOffer)
	}
}

func TestDeriveField_PanicIsCaughtAndAnnotated(t *testing.T) {
	rec := models.NewEvidenceRecord("https://shop.example.com/p/widget", 1700000000)

	deriveField(rec, models.ErrCodeExtraction, "title", func() {
		panic("selector blew up")
	})
	deriveField(rec, models.ErrCodeExtraction, "visible_price", func() {
		s := "$5.00"
		rec.VisiblePrice = &s
	})

	if len(rec.Errors) != 1 {
		t.Fatalf("got %d errors, want exactly the panicking field annotated: %v", len(rec.Errors), rec.Errors)
	}
	want := models.ErrCodeExtraction + ": title: selector blew up"
	if rec.Errors[0] != want {
		t.Errorf("got error %q, want %q", rec.Errors[0], want)
	}
	if rec.Title != nil {
		t.Errorf("panicking field should stay null, got %q", *rec.Title)
	}
	if rec.VisiblePrice == nil || *rec.VisiblePrice != "$5.00" {
		t.Error("a field failure must not block later fields from resolving")
	}
}

func TestResolve_Deterministic(t *testing.T) {
	sig := Signals{
		BodyText:      "In stock. Only $25.00 today.",
		DocTitle:      "Widget",
		FinalURL:      "https://shop.example.com/p/widget",
		CanonicalHref: "/p/widget",
		RawHTML:       `<script type="application/ld+json">{"@type":"Product","offers":{"price":"25.00"}}</script>`,
	}
	a := resolve(sig)
	b := resolve(sig)

	if *a.Title != *b.Title || *a.Canonical != *b.Canonical ||
		*a.VisiblePrice != *b.VisiblePrice || *a.VisibleAvailability != *b.VisibleAvailability {
		t.Error("resolution of identical signals diverged")
	}
	if len(a.Errors) != 0 || len(b.Errors) != 0 {
		t.Errorf("unexpected errors: %v / %v", a.Errors, b.Errors)
	}
}
