package capture

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/feedguardian/evidencer/evidence"
	"github.com/feedguardian/evidencer/models"
)

// Screenshot filenames are positional: a region is always addressable by
// its number no matter which fallback located it. A region that was not
// found simply has no file.
const (
	fileFull         = "00-full.png"
	filePrice        = "01-price.png"
	fileAvailability = "02-availability.png"
	fileVariant      = "03-variant.png"
	fileReturns      = "04-returns.png"
	fileFooter       = "05-footer.png"
)

// Common storefront (mostly Shopify-shaped) selectors.
const (
	priceSelectors   = ".price, .price-item, [data-price], [itemprop='price'], [data-product-price]"
	atcSelectors     = "button[name='add'], button[type='submit'], .product-form__submit, .btn--add-to-cart"
	variantSelectors = "select[name*='variant'], select, [role='listbox'], .product-form__variants"
)

// Text patterns in rod's js-regex form, matched against element text.
const (
	priceTextRe = `/(?:\$|£|€)\s?\d[\d,]*(?:\.\d{2})?/`
	availTextRe = `/in stock|out of stock|unavailable|ships|sold out|backorder|preorder/i`
	atcTextRe   = `/add to cart|buy now/i`
)

// textHaystack excludes script/style so text matches hit rendered content.
const textHaystack = "body *:not(script):not(style)"

// captureRegions runs the screenshot cascade for every target region and
// returns the add-to-cart control's inferred enabled state (nil when no
// control was found or its attributes could not be read). A region whose
// whole chain misses is skipped silently; only I/O and browser failures
// are recorded.
func (c *Capturer) captureRegions(ctx context.Context, p *rod.Page, outdir string, target models.CaptureTarget, rec *models.EvidenceRecord, log *slog.Logger) *bool {
	// Full page first: it is the anchor every region crop is judged against.
	if shot, err := p.Screenshot(true, nil); err == nil {
		writeShot(outdir, fileFull, shot, rec)
	} else {
		models.NewCaptureError(models.ErrCodeExtraction, "full page screenshot failed", err).Record(rec)
	}

	c.capturePriceRegion(p, outdir, rec)
	buttonEnabled := c.captureAvailabilityRegion(p, outdir, rec)
	c.captureVariantRegion(p, outdir, rec)
	c.captureReturnsRegion(ctx, p, outdir, target, rec, log)
	c.captureFooterRegion(p, outdir, rec)

	return buttonEnabled
}

// capturePriceRegion: visible currency text, else price-class selectors,
// else the buy control as a last resort.
func (c *Capturer) capturePriceRegion(p *rod.Page, outdir string, rec *models.EvidenceRecord) {
	if has, el, err := p.HasR(textHaystack, priceTextRe); err == nil && has {
		shotElement(el, outdir, filePrice, rec)
		return
	}
	if has, el, err := p.Has(priceSelectors); err == nil && has {
		shotElement(el, outdir, filePrice, rec)
		return
	}
	if has, el, err := p.HasR("button", atcTextRe); err == nil && has {
		shotElement(el, outdir, filePrice, rec)
	}
}

// captureAvailabilityRegion screenshots stock wording when present,
// otherwise the add-to-cart control. Either way it infers the control's
// enabled state for the resolver: enabled iff neither the disabled
// attribute nor aria-disabled marks it disabled.
func (c *Capturer) captureAvailabilityRegion(p *rod.Page, outdir string, rec *models.EvidenceRecord) *bool {
	gotShot := false
	if has, el, err := p.HasR(textHaystack, availTextRe); err == nil && has {
		gotShot = shotElement(el, outdir, fileAvailability, rec)
	}

	has, btn, err := p.Has(atcSelectors)
	if err != nil || !has {
		return nil
	}

	var enabled *bool
	disabledAttr, dErr := btn.Attribute("disabled")
	ariaDisabled, aErr := btn.Attribute("aria-disabled")
	if dErr == nil && aErr == nil {
		v := inferEnabled(disabledAttr, ariaDisabled)
		enabled = &v
	}

	if !gotShot {
		shotElement(btn, outdir, fileAvailability, rec)
	}
	return enabled
}

// inferEnabled reads a control's state from its attributes: enabled iff
// neither the disabled attribute (present with any value) nor aria-disabled
// ("true"/"1") marks it disabled.
func inferEnabled(disabledAttr, ariaDisabled *string) bool {
	return disabledAttr == nil &&
		(ariaDisabled == nil || (*ariaDisabled != "true" && *ariaDisabled != "1"))
}

// captureVariantRegion: first of a selection control, generic dropdown or
// listbox-role element.
func (c *Capturer) captureVariantRegion(p *rod.Page, outdir string, rec *models.EvidenceRecord) {
	if has, el, err := p.Has(variantSelectors); err == nil && has {
		shotElement(el, outdir, fileVariant, rec)
	}
}

// captureReturnsRegion: an explicit returns URL gets its own page (full
// capture, closed afterwards, the primary page untouched); otherwise the
// footer stands in when its text mentions a returns policy.
func (c *Capturer) captureReturnsRegion(ctx context.Context, p *rod.Page, outdir string, target models.CaptureTarget, rec *models.EvidenceRecord, log *slog.Logger) {
	if target.ReturnsURL != "" {
		rpage, err := c.browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			models.NewCaptureError(models.ErrCodeNavigation, "failed to open returns page", err).Record(rec)
			return
		}
		defer func() { _ = rpage.Close() }()

		rp := rpage.Context(ctx)
		if navErr := rp.Navigate(target.ReturnsURL); navErr != nil {
			categorizeError(navErr, "navigation to returns URL failed").Record(rec)
			return
		}
		if loadErr := rp.WaitLoad(); loadErr != nil {
			log.Debug("returns page load wait gave up", "error", loadErr)
		}
		if shot, shotErr := rp.Screenshot(true, nil); shotErr == nil {
			writeShot(outdir, fileReturns, shot, rec)
		} else {
			models.NewCaptureError(models.ErrCodeExtraction, "returns page screenshot failed", shotErr).Record(rec)
		}
		return
	}

	if has, footer, err := p.Has("footer"); err == nil && has {
		text, textErr := footer.Text()
		if textErr != nil {
			return
		}
		if len(text) > 500 {
			text = text[:500]
		}
		if evidence.ReturnsHintRe.MatchString(text) {
			shotElement(footer, outdir, fileReturns, rec)
		}
	}
}

// captureFooterRegion: unconditional when a footer exists, independent of
// the returns check.
func (c *Capturer) captureFooterRegion(p *rod.Page, outdir string, rec *models.EvidenceRecord) {
	if has, footer, err := p.Has("footer"); err == nil && has {
		shotElement(footer, outdir, fileFooter, rec)
	}
}

// shotElement screenshots one element into outdir/name. Reports whether a
// file was written.
func shotElement(el *rod.Element, outdir, name string, rec *models.EvidenceRecord) bool {
	shot, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		models.NewCaptureError(models.ErrCodeExtraction, name+" screenshot failed", err).Record(rec)
		return false
	}
	return writeShot(outdir, name, shot, rec)
}

func writeShot(outdir, name string, data []byte, rec *models.EvidenceRecord) bool {
	if err := os.WriteFile(filepath.Join(outdir, name), data, 0o644); err != nil {
		models.NewCaptureError(models.ErrCodeExtraction, "failed to write "+name, err).Record(rec)
		return false
	}
	return true
}
