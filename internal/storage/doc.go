// Package storage is a bounded on-disk object cache keyed by track id.
//
// Each object lives in one file named <key><ext> inside the cache directory. The cache keeps an
// in-memory recency index rebuilt from a directory scan on [Open] (file mtime seeds recency) and
// after every insert, so files added or removed behind its back are picked up on the next scan.
//
// [Cache.Insert] writes the object, then evicts whole entries, least recently used first, until the
// directory fits the byte budget. Ties in recency are broken by key order. An entry whose file cannot
// be deleted is logged, counted in [Stats.FailedEvictions] and skipped.
//
// All directory mutations hold the cache's write lock. [Cache.Exists] only takes the read lock.
package storage
