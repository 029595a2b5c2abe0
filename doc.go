// Package auth provides bearer token authentication for a JSON web API:
// account registration, password login, logout and token resolution,
// backed by Bun repositories and served through fiber handlers.
//
// Tokens:
//   - Every successful register or login mints a new personal access token.
//     The database keeps only a sha256 digest of the token secret, never the
//     secret itself. A token stays valid until it is revoked by logout.
//   - TokenCodec decides the wire shape. The default opaque codec produces
//     "<id>|<secret>" strings, the jwt codec wraps the same pair in a signed
//     HS256 JWT so tampered tokens are rejected before any lookup.
//   - TokenCache is an optional resolve cache. Revocations write a tombstone
//     so a revoked token can never resolve from cache.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther to describe
//     register, login and logout outcomes. Sink errors are logged and never
//     fail the flow.
//
// The client and guard sub packages hold the consumer side: a Session that
// tracks Anonymous/Authenticated state against this API, and a route guard
// that gates views on that state.
package auth
