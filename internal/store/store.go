// ABOUTME: Data types, tunables and sentinel errors for the bounded message store
// ABOUTME: Defines Message, Stats and the Options struct with capacity defaults

package store

import "errors"

// ErrNotFound is returned when a requested message does not exist
var ErrNotFound = errors.New("not found")

// KindText is the default content-type tag for plain text messages
const KindText = "text"

// Default tunables. All of them can be overridden through Options.
const (
	// DefaultMaxBytes is the hard ceiling on the on-disk footprint (500 MiB).
	DefaultMaxBytes = 500 * 1024 * 1024

	// DefaultLowWater is the fraction of the ceiling eviction drives the
	// footprint down to.
	DefaultLowWater = 0.9

	// DefaultBatchSize is how many of the oldest rows one eviction batch
	// deletes before the footprint is re-measured.
	DefaultBatchSize = 100

	// DefaultPageSize is the fallback limit for recency and pagination reads.
	DefaultPageSize = 50
)

// Message is the sole persisted entity: one chat message.
//
// ID is assigned by the store and never reused, even across eviction.
// SentAt is the sort key for all ordering and eviction decisions; RecordedAt
// is informational only. ReplyTo is best-effort context: the referenced
// message may have been evicted, and nothing cascades.
type Message struct {
	ID         int64
	User       string
	Body       string
	Kind       string // defaults to "text"
	SentAt     float64
	RecordedAt string // ISO-8601, store-assigned
	ReplyTo    *int64
}

// Stats describes the current state of the store.
type Stats struct {
	Count        int64
	SizeBytes    int64
	SizeMB       float64
	MaxSizeBytes int64

	// Oldest/newest sent_at present in the store, nil when empty.
	OldestSentAt *float64
	NewestSentAt *float64
}

// Options holds the store tunables. Zero values fall back to the defaults
// above, so Options{} configures a production store.
type Options struct {
	MaxBytes  int64   // hard ceiling on the on-disk footprint
	LowWater  float64 // eviction target as a fraction of MaxBytes
	BatchSize int     // rows deleted per eviction batch
	PageSize  int     // default limit for reads
}

func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.LowWater <= 0 || o.LowWater > 1 {
		o.LowWater = DefaultLowWater
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	return o
}
