// ABOUTME: Tests for the size monitor and eviction engine
// ABOUTME: Covers oldest-first batches, watermark convergence and eviction triggers

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFootprint_MissingFile(t *testing.T) {
	s := &SQLiteStore{path: filepath.Join(t.TempDir(), "never-created.db")}
	if got := s.Footprint(); got != 0 {
		t.Errorf("Footprint = %d for missing file, want 0", got)
	}
}

func TestEvictBatch_OldestFirst(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		if _, err := s.Save(ctx, &Message{User: "alice", Body: fmt.Sprintf("msg %d", i), SentAt: float64(i)}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	deleted, err := s.evictBatch(ctx, 2)
	if err != nil {
		t.Fatalf("evictBatch failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}

	remaining, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(remaining) != 3 {
		t.Fatalf("expected 3 remaining messages, got %d", len(remaining))
	}
	for i, want := range []float64{3, 4, 5} {
		if remaining[i].SentAt != want {
			t.Errorf("remaining[%d].SentAt = %f, want %f", i, remaining[i].SentAt, want)
		}
	}
}

func TestEvictBatch_TiesBrokenByID(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	// Same send time: eviction must take the oldest physical arrival first
	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.Save(ctx, &Message{User: "alice", Body: "same second", SentAt: 42})
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		ids = append(ids, id)
	}

	if _, err := s.evictBatch(ctx, 1); err != nil {
		t.Fatalf("evictBatch failed: %v", err)
	}

	if _, err := s.ByID(ctx, ids[0]); err != ErrNotFound {
		t.Errorf("expected lowest id %d evicted, got %v", ids[0], err)
	}
	for _, id := range ids[1:] {
		if _, err := s.ByID(ctx, id); err != nil {
			t.Errorf("id %d unexpectedly gone: %v", id, err)
		}
	}
}

func TestEvictBatch_EmptyStore(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	deleted, err := s.evictBatch(context.Background(), 100)
	if err != nil {
		t.Fatalf("evictBatch failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d on empty store, want 0", deleted)
	}
}

func TestEvict_ConvergesUnderWatermark(t *testing.T) {
	opts := Options{
		MaxBytes:  64 * 1024,
		LowWater:  0.75,
		BatchSize: 20,
	}
	s := newTestStoreOpts(t, opts)
	defer s.Close()

	ctx := context.Background()
	body := strings.Repeat("x", 1024)
	for i := 0; i < 200; i++ {
		if _, err := s.Save(ctx, &Message{User: "alice", Body: body, SentAt: float64(i)}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	before, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if before.SizeBytes <= opts.MaxBytes {
		t.Fatalf("test setup: footprint %d not over ceiling %d", before.SizeBytes, opts.MaxBytes)
	}

	s.Evict(ctx)

	after, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	watermark := int64(0.9 * float64(opts.MaxBytes))
	if after.SizeBytes > watermark {
		t.Errorf("footprint %d still above watermark %d", after.SizeBytes, watermark)
	}
	if after.Count >= before.Count {
		t.Errorf("count did not decrease: %d -> %d", before.Count, after.Count)
	}
	if after.Count == 0 {
		t.Error("eviction emptied the store instead of stopping at the watermark")
	}

	// Survivors are the newest rows
	messages, err := s.Recent(ctx, 1000)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if int64(len(messages)) != after.Count {
		t.Fatalf("Recent returned %d rows, stats say %d", len(messages), after.Count)
	}
	if messages[len(messages)-1].SentAt != 199 {
		t.Errorf("newest row evicted: last SentAt = %f", messages[len(messages)-1].SentAt)
	}
}

func TestEvict_NoopWhenUnderWatermark(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := s.Save(ctx, &Message{User: "alice", Body: "small"}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	s.Evict(ctx)

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Count != 5 {
		t.Errorf("Count = %d after no-op eviction, want 5", stats.Count)
	}
}

func TestSave_TriggersBackgroundEviction(t *testing.T) {
	opts := Options{
		MaxBytes:  64 * 1024,
		LowWater:  0.75,
		BatchSize: 20,
	}
	s := newTestStoreOpts(t, opts)
	defer s.Close()

	ctx := context.Background()
	body := strings.Repeat("x", 1024)
	for i := 0; i < 200; i++ {
		if _, err := s.Save(ctx, &Message{User: "alice", Body: body, SentAt: float64(i)}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	// The over-ceiling writes scheduled cleanup on the worker; the footprint
	// must eventually fall back under the ceiling without any explicit call.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if s.Footprint() <= opts.MaxBytes {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("footprint %d still over ceiling %d after background eviction window", s.Footprint(), opts.MaxBytes)
}

func TestNew_EvictsOversizedFileAtStartup(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	// Fill a store with a generous ceiling, then reopen it with a small one.
	big, err := New(dbPath, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	body := strings.Repeat("x", 1024)
	for i := 0; i < 200; i++ {
		if _, err := big.Save(ctx, &Message{User: "alice", Body: body, SentAt: float64(i)}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if err := big.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	opts := Options{MaxBytes: 64 * 1024, LowWater: 0.5, BatchSize: 20}
	s, err := New(dbPath, opts)
	if err != nil {
		t.Fatalf("New with small ceiling failed: %v", err)
	}
	defer s.Close()

	// Startup eviction is synchronous, so the file is already under the
	// watermark by the time New returns.
	watermark := int64(0.9 * float64(opts.MaxBytes))
	if got := s.Footprint(); got > watermark {
		t.Errorf("footprint %d after startup eviction, want <= %d", got, watermark)
	}
}

func TestScheduleEvict_Coalesces(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	// Burst of triggers must not block the caller even though the channel
	// holds a single pending request.
	for i := 0; i < 100; i++ {
		s.scheduleEvict()
	}
}
