// Command evidencer captures visual and structured evidence from e-commerce
// product pages: numbered region screenshots plus an evidence.json record
// per target.
//
// Usage:
//
//	evidencer single <url> [flags]
//	evidencer batch <targets.csv> [flags]
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/feedguardian/evidencer/batch"
	"github.com/feedguardian/evidencer/capture"
	"github.com/feedguardian/evidencer/config"
	"github.com/feedguardian/evidencer/models"
	"github.com/feedguardian/evidencer/slug"
	"github.com/feedguardian/evidencer/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// .env is a convenience for local runs; absence is fine.
	_ = godotenv.Load()

	var err error
	switch os.Args[1] {
	case "single":
		err = runSingle(os.Args[2:])
	case "batch":
		err = runBatch(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	// Per-target failures live inside evidence records; reaching here with
	// an error means the run itself could not start (bad input, no browser).
	if err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: evidencer single <url> [flags] | evidencer batch <targets.csv> [flags]")
}

// cliFlags are the per-invocation overrides layered on top of config.
type cliFlags struct {
	fs         *flag.FlagSet
	configPath string
	outDir     string
	returnsURL string
	headless   bool
	timeoutMs  int
	conc       int
}

func newFlags(name string) *cliFlags {
	f := &cliFlags{fs: flag.NewFlagSet(name, flag.ExitOnError)}
	f.fs.StringVar(&f.configPath, "config", "", "YAML config file")
	f.fs.StringVar(&f.outDir, "out", "", "base evidence directory")
	f.fs.StringVar(&f.returnsURL, "returns-url", "", "returns/refunds page URL (single only)")
	f.fs.BoolVar(&f.headless, "headless", true, "run browser headlessly")
	f.fs.IntVar(&f.timeoutMs, "timeout-ms", 0, "per-page timeout in milliseconds")
	f.fs.IntVar(&f.conc, "concurrency", 0, "parallel capture jobs (batch only)")
	return f
}

// loadConfig parses flags, loads the layered config and applies only the
// flags the user actually set.
func (f *cliFlags) loadConfig(args []string) (*config.Config, []string, error) {
	if err := f.fs.Parse(args); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, nil, err
	}
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "out":
			cfg.Output.BaseDir = f.outDir
		case "headless":
			cfg.Browser.Headless = f.headless
		case "timeout-ms":
			cfg.Capture.TimeoutMs = f.timeoutMs
		case "concurrency":
			cfg.Batch.Concurrency = f.conc
		}
	})
	return cfg, f.fs.Args(), nil
}

func runSingle(args []string) error {
	// Accept "single <url> [flags]" and "single [flags] <url>".
	flags := newFlags("single")
	var positional []string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		positional = args[:1]
		args = args[1:]
	}
	cfg, rest, err := flags.loadConfig(args)
	if err != nil {
		return err
	}
	positional = append(positional, rest...)
	if len(positional) != 1 {
		return models.NewCaptureError(models.ErrCodeInvalidInput, "single needs exactly one URL argument", nil)
	}
	targetURL := positional[0]

	initLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cp, idx, err := setup(cfg)
	if err != nil {
		return err
	}
	defer cp.Close()
	defer idx.close()

	target := models.CaptureTarget{
		URL:        targetURL,
		ReturnsURL: flags.returnsURL,
		TimeoutMs:  cfg.Capture.TimeoutMs,
		Headless:   cfg.Browser.Headless,
	}

	slog.Info("capture", "url", targetURL, "outdir", cp.OutDirFor(targetURL))
	rec := cp.Capture(ctx, target)
	idx.insert(ctx, rec)

	fmt.Printf("%s\n", cp.OutDirFor(targetURL))
	return nil
}

func runBatch(args []string) error {
	flags := newFlags("batch")
	var positional []string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		positional = args[:1]
		args = args[1:]
	}
	cfg, rest, err := flags.loadConfig(args)
	if err != nil {
		return err
	}
	positional = append(positional, rest...)
	if len(positional) != 1 {
		return models.NewCaptureError(models.ErrCodeInvalidInput, "batch needs exactly one CSV argument", nil)
	}

	initLogger(cfg.Log)

	// Malformed input aborts before any job starts; it is the one error
	// class that is not a per-target condition.
	targets, err := readTargets(positional[0], cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cp, idx, err := setup(cfg)
	if err != nil {
		return err
	}
	defer cp.Close()
	defer idx.close()

	runner := batch.NewRunner(cp.Capture, cfg.Batch.Concurrency, cfg.Batch.StartsPerSecond)
	result := runner.Run(ctx, targets)

	for _, rec := range result.Records {
		idx.insert(ctx, rec)
	}

	fmt.Printf("%s: %d targets captured under %s\n", result.RunID, len(result.Records), cfg.Output.BaseDir)
	return nil
}

// readTargets parses the batch CSV. Columns: url (required), returns_url
// (optional). A missing url column aborts the whole run.
func readTargets(path string, cfg *config.Config) ([]models.CaptureTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeInvalidInput, "failed to open targets CSV", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeInvalidInput, "failed to read CSV header", err)
	}

	urlCol, returnsCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "url":
			urlCol = i
		case "returns_url":
			returnsCol = i
		}
	}
	if urlCol < 0 {
		return nil, models.NewCaptureError(models.ErrCodeInvalidInput, "targets CSV is missing the required url column", nil)
	}

	var targets []models.CaptureTarget
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, models.NewCaptureError(models.ErrCodeInvalidInput, "malformed targets CSV row", err)
		}
		u := strings.TrimSpace(row[urlCol])
		if u == "" {
			continue
		}
		target := models.CaptureTarget{
			URL:       u,
			TimeoutMs: cfg.Capture.TimeoutMs,
			Headless:  cfg.Browser.Headless,
		}
		if returnsCol >= 0 && returnsCol < len(row) {
			target.ReturnsURL = strings.TrimSpace(row[returnsCol])
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// setup launches the browser and opens the optional evidence index.
func setup(cfg *config.Config) (*capture.Capturer, *indexer, error) {
	cp, err := capture.NewCapturer(cfg)
	if err != nil {
		return nil, nil, err
	}

	idx := &indexer{}
	if cfg.Index.Path != "" {
		db, dbErr := store.Open(cfg.Index.Path)
		if dbErr != nil {
			cp.Close()
			return nil, nil, dbErr
		}
		idx.db = db
		slog.Info("evidence index enabled", "path", cfg.Index.Path)
	}
	return cp, idx, nil
}

// indexer is a nil-safe wrapper around the optional store.
type indexer struct {
	db *store.DB
}

func (x *indexer) insert(ctx context.Context, rec *models.EvidenceRecord) {
	if x.db == nil || rec == nil {
		return
	}
	if err := x.db.Insert(ctx, slug.For(rec.URL), rec); err != nil {
		slog.Warn("failed to index evidence record", "url", rec.URL, "error", err)
	}
}

func (x *indexer) close() {
	if x.db != nil {
		_ = x.db.Close()
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
