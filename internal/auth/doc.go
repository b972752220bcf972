// Package auth maintains one authenticated session against the music API.
//
// # Lifecycle
//
// A [SessionManager] moves through Unauthenticated → Authorizing → Authenticated ⇄ Refreshing.
// [SessionManager.Start] restores a persisted [Credential] or runs the OAuth2 device-code flow; the
// flow is bounded by the server-declared expires_in and fails with [shared.ErrTimedOut].
//
// # Authenticated calls
//
// [SessionManager.Do] attaches the bearer credential. On an authorization failure it refreshes once
// and replays the request once. Concurrent callers that fail on the same token share one refresh.
//
// # Persistence
//
// The credential file is replaced atomically after every successful login or refresh. A rejected
// refresh token never touches it; the operator must run the device flow again.
//
// Errors unwrap to the sentinels in package shared:
//   - [shared.ErrAuth] : no usable credential, or refresh rejected
//   - [shared.ErrTransientNetwork] : transport failure that survived the retry
//   - [shared.ErrUpstreamRejected] : non-auth non-2xx response
//   - [shared.ErrTimedOut] : device code expired
package auth
