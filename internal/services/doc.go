// Package services resolves search queries into playable tracks against the music API.
//
// # TidalService
//
// [TidalService] issues every request through a [Session], so each call inherits the session's
// refresh-once-and-retry contract. It never sees or stores credentials.
//
//   - [TidalService.Search] queries the search endpoint and keeps only the requested categories,
//     in the order they were requested.
//   - [TidalService.Resolve] exchanges a track match for a short-lived stream URL.
//   - [TidalService.Raw] is an authenticated GET used for debugging.
//
// Requests are paced client-side with a token bucket from golang.org/x/time/rate.
//
// # Error Handling
//
// Services return sentinels from the shared package:
//   - [shared.ErrNotAvailable] : track is not streamable in the session's region, a normal outcome
//   - [shared.ErrAuth] : no identity yet, or the session could not recover
//   - [shared.ErrUpstreamRejected] : non-auth non-2xx response or undecodable body
//   - [shared.ErrMissingArgument] : empty query
package services
