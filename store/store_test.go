package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/feedguardian/evidencer/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertAndCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	price := "$19.99"
	avail := models.InStock
	rec := models.NewEvidenceRecord("https://shop.example.com/p/widget", 1700000000)
	rec.VisiblePrice = &price
	rec.VisibleAvailability = &avail

	if err := db.Insert(ctx, "widget-abc123", rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.Insert(ctx, "widget-abc123", rec); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	n, err := db.CountForURL(ctx, rec.URL)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("got %d rows, want 2", n)
	}

	n, err = db.CountForURL(ctx, "https://other.example.com")
	if err != nil {
		t.Fatalf("count other: %v", err)
	}
	if n != 0 {
		t.Errorf("got %d rows for unseen URL, want 0", n)
	}
}

func TestInsert_NullFields(t *testing.T) {
	db := openTestDB(t)

	rec := models.NewEvidenceRecord("https://shop.example.com/p/ghost", 1700000001)
	rec.AddError(models.ErrCodeNavigation, "navigation to target URL failed")

	if err := db.Insert(context.Background(), "ghost-def456", rec); err != nil {
		t.Fatalf("insert with null fields: %v", err)
	}
}
