// Package repositories implements SQLite persistence for the track catalog.
//
// The catalog records metadata for every track whose audio currently lives in the content cache, so
// listings can show titles and artists without touching the network. The cache directory remains the
// source of truth for what is stored; [CachedTrackRepository.Prune] drops rows whose file was evicted.
//
// Sequence numbers provide stable, human-readable ordering (e.g. track #42) independent of UUIDs and
// creation timestamps. The [NextSequence] function atomically increments per-table sequence counters
// in dedicated sequence tables.
package repositories
