package history_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"kiln/internal/history"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func TestRecordAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	first := history.Record{
		RunID:      "run-aaa",
		Kind:       "burn",
		Device:     "/dev/sr0",
		Source:     "/home/user/album",
		Status:     history.StatusCompleted,
		WrittenMiB: 650,
		StartedAt:  started,
		FinishedAt: started.Add(8 * time.Minute),
	}
	if _, err := store.Record(ctx, first); err != nil {
		t.Fatalf("Record: %v", err)
	}
	second := history.Record{
		RunID:     "run-bbb",
		Kind:      "erase",
		Device:    "/dev/sr0",
		Status:    history.StatusFailed,
		Message:   "write error - media error",
		StartedAt: started.Add(time.Hour),
	}
	if _, err := store.Record(ctx, second); err != nil {
		t.Fatalf("Record second: %v", err)
	}

	records, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].RunID != "run-bbb" {
		t.Fatalf("expected newest first, got %s", records[0].RunID)
	}
	if records[1].WrittenMiB != 650 {
		t.Fatalf("expected written_mib 650, got %d", records[1].WrittenMiB)
	}
	if !records[1].FinishedAt.Equal(started.Add(8 * time.Minute)) {
		t.Fatalf("unexpected finished_at %v", records[1].FinishedAt)
	}
	if !records[0].FinishedAt.IsZero() {
		t.Fatalf("expected zero finished_at for unfinished run, got %v", records[0].FinishedAt)
	}
}

func TestListHonorsLimit(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := history.Record{
			RunID:     "run-" + string(rune('a'+i)),
			Kind:      "burn",
			Device:    "/dev/sr0",
			Status:    history.StatusCompleted,
			StartedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}
		if _, err := store.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	records, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestRecordRequiresRunID(t *testing.T) {
	store := openStore(t)
	if _, err := store.Record(context.Background(), history.Record{Kind: "burn"}); err == nil {
		t.Fatal("expected error for missing run id")
	}
}

func TestClear(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	rec := history.Record{
		RunID:     "run-clear",
		Kind:      "image",
		Device:    "/dev/sr0",
		Status:    history.StatusCompleted,
		StartedAt: time.Now(),
	}
	if _, err := store.Record(ctx, rec); err != nil {
		t.Fatalf("Record: %v", err)
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	records, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty history, got %d records", len(records))
	}
}
