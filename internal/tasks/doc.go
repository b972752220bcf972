// Package tasks turns a track request into a cached audio file with real-time progress reporting.
//
// # Core Operations
//
//  1. [FetchEngine.Fetch] : one request
//     - Looks up the track by id, or searches and picks the first streamable match
//     - Serves the cached file when the track is already present
//     - Otherwise resolves a stream URL, downloads it (rate limited) and inserts it into the cache
//     - Records the track in the catalog when one is configured
//
//  2. [FetchEngine.FetchAll] : many requests through a bounded worker pool
//     - Partial failures are reported per request and never abort the batch
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Implementation
//
// [FetchEngine] depends on:
//   - [Resolver] : services.TidalService
//   - [Store] : storage.Cache
//   - [Catalog] : optional persistence layer (repositories.CachedTrackRepository)
package tasks
