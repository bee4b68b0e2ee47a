package capture

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/feedguardian/evidencer/evidence"
	"github.com/feedguardian/evidencer/models"
	"github.com/feedguardian/evidencer/slug"
)

// OutDirFor returns the evidence directory a target's artifacts land in.
func (c *Capturer) OutDirFor(targetURL string) string {
	return filepath.Join(c.outBaseDir, slug.For(targetURL))
}

// Capture runs one target through the full pipeline and always returns a
// record: every failure is caught and recorded into the record's errors,
// never surfaced to the caller. The page used for the job is released on
// every exit path.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Record + output dir    – the record exists before anything can fail
//  2. Timeout guard          – hard deadline on the entire job
//  3. Acquire page           – borrow a tab from the pool (or create one)
//  4. DEFER: cleanup         – about:blank + return to pool (leak prevention)
//  5. Identity               – per-job UA pick, stealth JS, Referer header
//  6. Navigate               – content-loaded semantics
//  7. Stabilize              – bounded network/DOM quiet wait, may time out
//     silently (SPAs never go fully idle), then a fixed settle delay for
//     late-rendering price/stock widgets
//  8. Capture regions        – the screenshot cascade
//  9. Extract evidence       – signal gathering + resolution
//  10. Persist               – evidence.json, exactly once
//
// Steps 5 MUST precede step 6: stealth JS and headers only apply to
// navigations that happen after they are installed. Step 4 uses the
// ORIGINAL page reference (without the job context), so cleanup succeeds
// even when the job deadline has expired.
func (c *Capturer) Capture(ctx context.Context, target models.CaptureTarget) *models.EvidenceRecord {
	// ── 1. Record + output dir ───────────────────────────────────────
	rec := models.NewEvidenceRecord(target.URL, time.Now().Unix())
	outdir := c.OutDirFor(target.URL)
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		models.NewCaptureError(models.ErrCodeBatchItem, "failed to create output dir", err).Record(rec)
		return rec
	}

	log := slog.With("url", target.URL, "outdir", outdir)

	// ── 2. Timeout guard ─────────────────────────────────────────────
	timeout := time.Duration(target.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(c.captureCfg.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// ── 3. Acquire page from pool ────────────────────────────────────
	c.activePages.Add(1)
	defer c.activePages.Add(-1)

	page, acquireErr := c.pagePool.Get(func() (*rod.Page, error) {
		return c.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		models.NewCaptureError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", acquireErr).Record(rec)
		c.persist(outdir, rec, log)
		return rec
	}

	// ── 4. CRITICAL DEFER: prevent DOM memory leak + guarantee pool return
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			log.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		c.pagePool.Put(page)
	}()

	// ── 5. Per-job identity ──────────────────────────────────────────
	// The UA is picked once here from the injected config list; there is
	// no shared rotation state between jobs.
	if uas := c.captureCfg.UserAgents; len(uas) > 0 {
		ua := uas[rand.IntN(len(uas))]
		_ = (proto.NetworkSetUserAgentOverride{UserAgent: ua}).Call(page)
	}

	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		log.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
	}

	if u, parseErr := url.Parse(target.URL); parseErr == nil {
		_ = (proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{
				"Referer": "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname()),
			}),
		}).Call(page)
	}

	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1366,
		Height:            900,
		DeviceScaleFactor: 1,
	})

	// ── 6. Bind job context + navigate ───────────────────────────────
	p := page.Context(ctx)

	if navErr := p.Navigate(target.URL); navErr != nil {
		categorizeError(navErr, "navigation to target URL failed").Record(rec)
		// Best-effort from here: whatever did render still gets captured.
		log.Warn("navigation failed, continuing best-effort", "error", navErr)
	}

	// ── 7. Stabilize ─────────────────────────────────────────────────
	c.stabilize(ctx, page, timeout)

	if c.captureCfg.RemoveOverlays {
		removeOverlays(p)
	}

	// ── 8. Capture regions ───────────────────────────────────────────
	buttonEnabled := c.captureRegions(ctx, p, outdir, target, rec, log)

	// ── 9. Extract evidence ──────────────────────────────────────────
	sig := gatherSignals(p, target, rec)
	sig.ButtonEnabled = buttonEnabled
	evidence.Resolve(sig, rec)

	// ── 10. Persist ──────────────────────────────────────────────────
	c.persist(outdir, rec, log)

	log.Info("capture finished",
		"price", deref(rec.VisiblePrice),
		"availability", availString(rec.VisibleAvailability),
		"errors", len(rec.Errors),
		"activePages", c.activePages.Load(),
	)
	return rec
}

// stabilize waits for the page to quiet down: a bounded DOM-stable wait
// (allowed to time out silently, SPA pages may never converge) followed by
// a fixed settle delay so late-rendering widgets finish painting.
//
// NOTE: WaitRequestIdle uses the Fetch domain, which is unreliable on
// Chromium 145+; WaitDOMStable is the dependable signal here.
func (c *Capturer) stabilize(ctx context.Context, page *rod.Page, timeout time.Duration) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout/2)
	defer cancel()

	pw := page.Context(waitCtx)
	if loadErr := pw.WaitLoad(); loadErr != nil {
		slog.Debug("load event wait gave up, proceeding", "error", loadErr)
	}
	if stableErr := pw.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", stableErr)
	}

	select {
	case <-time.After(c.captureCfg.SettleDelay):
	case <-ctx.Done():
	}
}

// gatherSignals reads everything the resolver needs in one pass over the
// rendered page. Every read is best-effort: a failed read leaves the zero
// value and, where it would hide evidence, an error annotation.
func gatherSignals(p *rod.Page, target models.CaptureTarget, rec *models.EvidenceRecord) evidence.Signals {
	sig := evidence.Signals{}

	if has, body, err := p.Has("body"); err == nil && has {
		if text, textErr := body.Text(); textErr == nil {
			sig.BodyText = text
		} else {
			models.NewCaptureError(models.ErrCodeExtraction, "failed to read visible page text", textErr).Record(rec)
		}
	}

	sig.DocTitle = evalStringOrEmpty(p, `() => document.title`)

	if has, h1, err := p.Has("h1"); err == nil && has {
		if text, textErr := h1.Text(); textErr == nil {
			sig.H1 = text
		}
	}

	sig.FinalURL = evalStringOrEmpty(p, `() => window.location.href`)
	if sig.FinalURL == "" || sig.FinalURL == "about:blank" {
		sig.FinalURL = target.URL
	}

	if has, link, err := p.Has(`link[rel="canonical"]`); err == nil && has {
		if href, attrErr := link.Attribute("href"); attrErr == nil && href != nil {
			sig.CanonicalHref = *href
		}
	}

	if has, priceNode, err := p.Has(priceSelectors); err == nil && has {
		if text, textErr := priceNode.Text(); textErr == nil {
			sig.PriceNodeText = text
		}
	}

	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		models.NewCaptureError(models.ErrCodeExtraction, "failed to extract page HTML", htmlErr).Record(rec)
	}
	sig.RawHTML = rawHTML

	return sig
}

// persist writes evidence.json. A write failure is the one error that can
// only be logged, since the record is its own error channel.
func (c *Capturer) persist(outdir string, rec *models.EvidenceRecord, log *slog.Logger) {
	if err := writeRecord(outdir, rec); err != nil {
		log.Error("failed to write evidence record", "error", err)
	}
}

// removeOverlays injects JS to remove fixed/sticky positioned elements with
// high z-index, typically cookie consent banners and popups that would
// obscure the price and availability regions in screenshots.
func removeOverlays(p *rod.Page) {
	const js = `() => {
		const els = document.querySelectorAll('*');
		for (const el of els) {
			const style = window.getComputedStyle(el);
			const pos = style.position;
			if (pos === 'fixed' || pos === 'sticky') {
				const z = parseInt(style.zIndex, 10);
				if (z >= 900) {
					el.remove();
				}
			}
		}
		const selectors = [
			'[class*="cookie"]', '[class*="consent"]',
			'[id*="cookie"]', '[id*="consent"]',
			'[class*="gdpr"]', '[id*="gdpr"]',
		];
		for (const sel of selectors) {
			document.querySelectorAll(sel).forEach(el => {
				const style = window.getComputedStyle(el);
				if (style.position === 'fixed' || style.position === 'sticky') {
					el.remove();
				}
			});
		}
		document.documentElement.style.overflow = '';
		document.body.style.overflow = '';
	}`
	_, _ = p.Eval(js)
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into coded CaptureErrors so records carry
// a legible failure class.
func categorizeError(err error, msg string) *models.CaptureError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewCaptureError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewCaptureError(models.ErrCodeTimeout, "capture canceled", err)
	default:
		return models.NewCaptureError(models.ErrCodeNavigation, msg, err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func availString(a *models.Availability) string {
	if a == nil {
		return "UNKNOWN"
	}
	return string(*a)
}
