// Package store provides a durable, size-capped log of chat messages backed
// by a single SQLite file.
//
// # Model
//
// One table, messages, holding (id, user, message, message_type, timestamp,
// created_at, reply_to) with a secondary index on timestamp. Ids are
// store-assigned, strictly increasing and never reused. The timestamp column
// (sent_at in the API) is the sort key for every read and for eviction;
// reply_to is a best-effort reference with no enforced integrity.
//
// # Capacity
//
// The on-disk footprint is checked at construction and after every save.
// Once it exceeds the configured ceiling (500 MiB by default) the oldest
// rows are deleted in committed batches until the footprint falls to the
// low-water mark, then the file is vacuumed. Construction-time eviction is
// synchronous; write-triggered eviction runs on one dedicated background
// worker, with pending triggers coalesced, so writers are never blocked by
// their own cleanup.
//
// # Concurrency
//
// A single mutex serializes every operation against the backing file.
// Writes are linearized, reads see a consistent snapshot, and no read ever
// observes a partially applied eviction batch. Operations run to
// completion; callers wanting timeouts impose them via the context.
//
// # Errors
//
// Lookups for missing ids return ErrNotFound. Eviction failures are logged
// and recovered locally: the store stays usable, at worst still over the
// ceiling until the next trigger. Schema errors at open are fatal.
package store
