package batch

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/feedguardian/evidencer/models"
)

func targetList(n int) []models.CaptureTarget {
	targets := make([]models.CaptureTarget, n)
	for i := range targets {
		targets[i] = models.CaptureTarget{URL: "https://shop.example.com/p/" + strconv.Itoa(i)}
	}
	return targets
}

func TestRun_PreservesSubmissionOrder(t *testing.T) {
	capture := func(_ context.Context, target models.CaptureTarget) *models.EvidenceRecord {
		// Reverse the completion order relative to submission.
		var i int
		fmt.Sscanf(target.URL, "https://shop.example.com/p/%d", &i)
		time.Sleep(time.Duration(10-i) * time.Millisecond)
		return models.NewEvidenceRecord(target.URL, 0)
	}

	targets := targetList(5)
	result := NewRunner(capture, 5, 0).Run(context.Background(), targets)

	if len(result.Records) != len(targets) {
		t.Fatalf("got %d records, want %d", len(result.Records), len(targets))
	}
	for i, rec := range result.Records {
		if rec == nil {
			t.Fatalf("record %d is nil", i)
		}
		if rec.URL != targets[i].URL {
			t.Errorf("record %d has URL %q, want %q", i, rec.URL, targets[i].URL)
		}
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	capture := func(_ context.Context, target models.CaptureTarget) *models.EvidenceRecord {
		rec := models.NewEvidenceRecord(target.URL, 0)
		if target.URL == "https://shop.example.com/p/2" {
			rec.AddError(models.ErrCodeNavigation, "navigation to target URL failed: timeout")
		}
		return rec
	}

	result := NewRunner(capture, 2, 0).Run(context.Background(), targetList(5))

	if len(result.Records) != 5 {
		t.Fatalf("got %d records, want 5", len(result.Records))
	}
	for i, rec := range result.Records {
		wantErrors := i == 2
		if (len(rec.Errors) > 0) != wantErrors {
			t.Errorf("record %d errors = %v, want errors only on item 2", i, rec.Errors)
		}
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	const limit = 3
	var active, peak atomic.Int32

	capture := func(_ context.Context, target models.CaptureTarget) *models.EvidenceRecord {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return models.NewEvidenceRecord(target.URL, 0)
	}

	NewRunner(capture, limit, 0).Run(context.Background(), targetList(12))

	if got := peak.Load(); got > limit {
		t.Errorf("observed %d concurrent jobs, limit is %d", got, limit)
	}
}

func TestRun_PanicYieldsRecord(t *testing.T) {
	capture := func(_ context.Context, target models.CaptureTarget) *models.EvidenceRecord {
		if target.URL == "https://shop.example.com/p/1" {
			panic("browser exploded")
		}
		return models.NewEvidenceRecord(target.URL, 0)
	}

	result := NewRunner(capture, 2, 0).Run(context.Background(), targetList(3))

	rec := result.Records[1]
	if rec == nil {
		t.Fatal("panicking job left a nil slot")
	}
	if len(rec.Errors) == 0 {
		t.Fatal("panicking job should record a batch item error")
	}
	if len(result.Records[0].Errors) != 0 || len(result.Records[2].Errors) != 0 {
		t.Error("sibling jobs were affected by a panic")
	}
}

func TestRun_RunID(t *testing.T) {
	capture := func(_ context.Context, target models.CaptureTarget) *models.EvidenceRecord {
		return models.NewEvidenceRecord(target.URL, 0)
	}
	a := NewRunner(capture, 1, 0).Run(context.Background(), targetList(1))
	b := NewRunner(capture, 1, 0).Run(context.Background(), targetList(1))
	if a.RunID == "" || a.RunID == b.RunID {
		t.Errorf("run IDs should be unique and non-empty: %q vs %q", a.RunID, b.RunID)
	}
}
