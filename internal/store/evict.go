// ABOUTME: Size monitor and eviction engine for the bounded message store
// ABOUTME: Deletes oldest rows in committed batches, then vacuums to reclaim space

package store

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Footprint returns the current on-disk size of the store in bytes: the
// backing file plus its WAL sidecar, or 0 if the file does not exist yet.
func (s *SQLiteStore) Footprint() int64 {
	return fileSize(s.path) + fileSize(s.path+"-wal")
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// scheduleEvict hands an eviction request to the background worker without
// blocking. Requests that land while one is already pending coalesce: the
// next cycle re-measures and will find whatever is left to do.
func (s *SQLiteStore) scheduleEvict() {
	select {
	case s.evictCh <- struct{}{}:
		s.logger.Debug("eviction scheduled", "size_bytes", s.Footprint())
	default:
	}
}

// evictWorker is the single dedicated goroutine that runs eviction cycles
// triggered by over-ceiling writes.
func (s *SQLiteStore) evictWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.evictCh:
			s.Evict(context.Background())
		}
	}
}

// Evict runs one eviction cycle: delete the oldest rows in committed batches
// until the footprint is at or below the low-water mark, then compact.
//
// Any failure is logged and the cycle exits cleanly; each batch commits
// before the next starts, so a mid-cycle failure degrades to "less was
// evicted", never to a half-applied delete. Callers therefore get no error.
func (s *SQLiteStore) Evict(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lowWater := int64(s.opts.LowWater * float64(s.opts.MaxBytes))

	for {
		size, err := s.logicalFootprint(ctx)
		if err != nil {
			s.logger.Error("eviction aborted: measuring footprint", "error", err)
			return
		}
		if size <= lowWater {
			break
		}

		deleted, err := s.evictBatch(ctx, s.opts.BatchSize)
		if err != nil {
			s.logger.Error("eviction aborted: deleting batch", "error", err)
			return
		}
		if deleted == 0 {
			// Store is empty; nothing left to evict.
			break
		}
		s.logger.Info("evicted oldest messages", "count", deleted)
	}

	// Deletes alone do not shrink the file; reclaim the freed space now that
	// no transaction is open.
	if err := s.compact(ctx); err != nil {
		s.logger.Error("eviction compaction failed", "error", err)
		return
	}

	s.logger.Info("eviction cycle complete", "size_bytes", s.Footprint())
}

// evictBatch deletes up to n of the oldest-by-sent_at rows (ties broken by
// id, so same-second sends go in arrival order) in a single committed
// transaction. Returns how many rows were deleted.
func (s *SQLiteStore) evictBatch(ctx context.Context, n int) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM messages
		ORDER BY timestamp ASC, id ASC
		LIMIT ?
	`, n)
	if err != nil {
		return 0, fmt.Errorf("selecting eviction candidates: %w", err)
	}

	var ids []any
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning candidate id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterating candidate ids: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning delete batch: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id IN (`+placeholders+`)`, ids...); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("deleting batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete batch: %w", err)
	}

	return len(ids), nil
}

// logicalFootprint measures the bytes the file would occupy after
// compaction: pages in use times the page size. Unlike the physical file
// size it shrinks as batches delete, which is what the eviction loop's stop
// condition needs before VACUUM has run.
func (s *SQLiteStore) logicalFootprint(ctx context.Context) (int64, error) {
	var pageCount, freeCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("reading page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA freelist_count`).Scan(&freeCount); err != nil {
		return 0, fmt.Errorf("reading freelist_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("reading page_size: %w", err)
	}
	return (pageCount - freeCount) * pageSize, nil
}

// compact reclaims freed space. VACUUM cannot run inside a transaction, so
// callers must only invoke this between committed batches. The checkpoint
// truncates the WAL sidecar so the measured footprint reflects the vacuumed
// file.
func (s *SQLiteStore) compact(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	var busy, logFrames, checkpointed int
	if err := s.db.QueryRowContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`).Scan(&busy, &logFrames, &checkpointed); err != nil {
		return fmt.Errorf("truncating wal: %w", err)
	}
	return nil
}
