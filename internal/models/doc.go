// Package models defines the domain entities for tdx.
//
// The package contains two categories of types:
//
// 1. Values decoded from or resolved against the music API
//   - [TrackDescriptor] : one raw search match, as returned in the tracks category
//   - [Track] : an immutable, playable track with its short-lived stream URL
//
// 2. Persistent entities implementing [Model]
//   - [CachedTrack] : catalog row describing a track whose audio lives in the content cache
//
// The [Repository] interface defines the CRUD operations for database access.
package models
