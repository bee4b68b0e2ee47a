// Package capture drives a headless browser through the per-page evidence
// pipeline: navigate, stabilize, screenshot regions, extract signals,
// resolve, persist.
package capture

import (
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/feedguardian/evidencer/config"
	"github.com/feedguardian/evidencer/models"
)

// Capturer manages the global browser lifecycle and the page pool.
// It is safe for concurrent use.
type Capturer struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	browserCfg  config.BrowserConfig
	captureCfg  config.CaptureConfig
	outBaseDir  string
	activePages atomic.Int32
}

// NewCapturer launches a headless browser and initialises the reusable page pool.
func NewCapturer(cfg *config.Config) (*Capturer, error) {
	l := launcher.New().
		Headless(cfg.Browser.Headless).
		NoSandbox(cfg.Browser.NoSandbox)

	if cfg.Browser.BrowserBin != "" {
		l = l.Bin(cfg.Browser.BrowserBin)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewCaptureError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewCaptureError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewPagePool(cfg.Browser.MaxPages)
	slog.Info("page pool created", "maxPages", cfg.Browser.MaxPages)

	return &Capturer{
		browser:    browser,
		pagePool:   pool,
		browserCfg: cfg.Browser,
		captureCfg: cfg.Capture,
		outBaseDir: cfg.Output.BaseDir,
	}, nil
}

// Close drains the page pool and kills the browser process.
// Call this on shutdown to prevent zombie Chrome processes.
func (c *Capturer) Close() {
	slog.Info("capturer shutting down: draining page pool")
	c.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	slog.Info("capturer shutting down: closing browser")
	c.browser.MustClose()
	slog.Info("capturer shutdown complete")
}
