// Package batch fans capture jobs out over a bounded worker set while
// keeping every job isolated: one target's failure never touches its
// siblings or the result ordering.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/feedguardian/evidencer/models"
)

// CaptureFunc runs one target end to end and always returns a record;
// failures are carried inside the record, never as an error.
type CaptureFunc func(ctx context.Context, target models.CaptureTarget) *models.EvidenceRecord

// Runner executes batches of capture targets.
type Runner struct {
	capture     CaptureFunc
	concurrency int
	limiter     *rate.Limiter // paces job starts; nil disables pacing
}

// NewRunner builds a runner with the given concurrency bound and an
// optional start rate (jobs per second, 0 = unpaced).
func NewRunner(capture CaptureFunc, concurrency int, startsPerSecond float64) *Runner {
	if concurrency <= 0 {
		concurrency = 3
	}
	var limiter *rate.Limiter
	if startsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(startsPerSecond), 1)
	}
	return &Runner{
		capture:     capture,
		concurrency: concurrency,
		limiter:     limiter,
	}
}

// Run captures every target and returns one record per target, indexed by
// submission order regardless of completion order. It returns only after
// every job has finished.
func (r *Runner) Run(ctx context.Context, targets []models.CaptureTarget) *models.BatchResult {
	runID := "batch-" + uuid.NewString()
	start := time.Now()
	slog.Info("batch started", "id", runID, "targets", len(targets), "concurrency", r.concurrency)

	result := &models.BatchResult{
		RunID:   runID,
		Records: make([]*models.EvidenceRecord, len(targets)),
	}

	sem := make(chan struct{}, r.concurrency)
	var g errgroup.Group

	for i, target := range targets {
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if r.limiter != nil {
				if err := r.limiter.Wait(ctx); err != nil {
					rec := models.NewEvidenceRecord(target.URL, time.Now().Unix())
					models.NewCaptureError(models.ErrCodeBatchItem, "batch canceled before job start", err).Record(rec)
					result.Records[i] = rec
					return nil
				}
			}

			result.Records[i] = r.runOne(ctx, target)
			return nil // best-effort: a failed item must not cancel siblings
		})
	}

	_ = g.Wait()

	failed := 0
	for _, rec := range result.Records {
		if len(rec.Errors) > 0 {
			failed++
		}
	}
	slog.Info("batch finished",
		"id", runID,
		"total", len(targets),
		"withErrors", failed,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return result
}

// runOne shields the batch from a job that fails beyond what the capture
// pipeline can absorb: a panic still yields a record for its slot.
func (r *Runner) runOne(ctx context.Context, target models.CaptureTarget) (rec *models.EvidenceRecord) {
	defer func() {
		if p := recover(); p != nil {
			if rec == nil {
				rec = models.NewEvidenceRecord(target.URL, time.Now().Unix())
			}
			rec.AddError(models.ErrCodeBatchItem, fmt.Sprintf("capture job panicked: %v", p))
			slog.Error("capture job panicked", "url", target.URL, "panic", p)
		}
	}()
	return r.capture(ctx, target)
}
