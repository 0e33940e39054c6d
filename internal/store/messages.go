// ABOUTME: Query and write operations for the bounded message store
// ABOUTME: Save, recency/offset/cursor reads, point lookup, wipe and stats

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Save persists a message and returns its store-assigned id.
//
// Kind defaults to "text" and SentAt to the current time; RecordedAt is
// always store-assigned. If the write pushes the footprint over the ceiling
// an eviction cycle is scheduled on the background worker, so the caller is
// never blocked by cleanup.
func (s *SQLiteStore) Save(ctx context.Context, msg *Message) (int64, error) {
	if msg.User == "" {
		return 0, errors.New("user is required")
	}
	if msg.Body == "" {
		return 0, errors.New("body is required")
	}
	if msg.Kind == "" {
		msg.Kind = KindText
	}
	if msg.SentAt == 0 {
		msg.SentAt = float64(time.Now().UnixNano()) / 1e9
	}
	msg.RecordedAt = time.Now().UTC().Format(time.RFC3339)

	s.mu.Lock()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (user, message, message_type, timestamp, created_at, reply_to)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.User, msg.Body, msg.Kind, msg.SentAt, msg.RecordedAt, msg.ReplyTo)
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("inserting message: %w", err)
	}
	id, err := res.LastInsertId()
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("reading message id: %w", err)
	}
	msg.ID = id

	s.logger.Debug("saved message", "id", id, "user", msg.User, "kind", msg.Kind)

	if s.Footprint() > s.opts.MaxBytes {
		s.scheduleEvict()
	}

	return id, nil
}

// Recent returns up to limit of the most recent messages in chronological
// order (oldest first). If limit is 0 or negative the default page size is
// used.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*Message, error) {
	limit = s.clampLimit(limit)

	return s.listDesc(ctx, `
		SELECT id, user, message, message_type, timestamp, created_at, reply_to
		FROM messages
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
}

// Paginated returns up to limit messages, skipping the offset newest rows.
// The offset counts over the descending order, so offset 0 is the newest
// page; each page is returned oldest first.
func (s *SQLiteStore) Paginated(ctx context.Context, limit, offset int) ([]*Message, error) {
	limit = s.clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	return s.listDesc(ctx, `
		SELECT id, user, message, message_type, timestamp, created_at, reply_to
		FROM messages
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
}

// Before returns up to limit messages strictly older than the cutoff
// timestamp, oldest first. Used for backward (infinite-scroll) pagination.
func (s *SQLiteStore) Before(ctx context.Context, cutoff float64, limit int) ([]*Message, error) {
	limit = s.clampLimit(limit)

	return s.listDesc(ctx, `
		SELECT id, user, message, message_type, timestamp, created_at, reply_to
		FROM messages
		WHERE timestamp < ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, cutoff, limit)
}

// ByID retrieves a single message. Returns ErrNotFound if it does not exist
// (or was evicted); a stale reply_to on the result is not an error.
func (s *SQLiteStore) ByID(ctx context.Context, id int64) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user, message, message_type, timestamp, created_at, reply_to
		FROM messages
		WHERE id = ?
	`, id)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return msg, nil
}

// ClearAll deletes every message and compacts the backing file.
//
// The delete and the compaction are separate steps: if compaction fails the
// relation is still logically empty, the error is surfaced, and the footprint
// shrinks whenever a later compaction succeeds.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}

	if err := s.compact(ctx); err != nil {
		return fmt.Errorf("compacting after clear: %w", err)
	}

	s.logger.Info("all messages cleared")
	return nil
}

// GetStats returns a read-only snapshot of the store: row count, footprint,
// configured ceiling and the oldest/newest sent_at present.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Stats{MaxSizeBytes: s.opts.MaxBytes}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&stats.Count); err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	var oldest, newest sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT MIN(timestamp), MAX(timestamp) FROM messages`).Scan(&oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("querying timestamp range: %w", err)
	}
	if oldest.Valid {
		stats.OldestSentAt = &oldest.Float64
	}
	if newest.Valid {
		stats.NewestSentAt = &newest.Float64
	}

	stats.SizeBytes = s.Footprint()
	stats.SizeMB = float64(stats.SizeBytes) / 1024 / 1024

	return stats, nil
}

// clampLimit applies the default page size and an upper bound.
func (s *SQLiteStore) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.opts.PageSize
	}
	if limit > 1000 {
		limit = 1000
	}
	return limit
}

// listDesc runs a most-recent-first query and reverses the result, so every
// listing hands the caller an oldest-first sequence regardless of which
// pagination method was used.
func (s *SQLiteStore) listDesc(ctx context.Context, query string, args ...any) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	// Fetched newest-first; return chronological.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*Message, error) {
	var msg Message
	var replyTo sql.NullInt64

	if err := row.Scan(&msg.ID, &msg.User, &msg.Body, &msg.Kind, &msg.SentAt, &msg.RecordedAt, &replyTo); err != nil {
		return nil, err
	}
	if replyTo.Valid {
		msg.ReplyTo = &replyTo.Int64
	}
	return &msg, nil
}
