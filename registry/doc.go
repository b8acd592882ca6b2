// Package registry tracks issued refresh tokens in Redis.
//
// The session-registry model keeps one compact binary entry per refresh
// token, keyed by the token's ID claim, plus a per-account index set for
// bulk revocation. Rotation consumes an entry with a Lua compare-and-swap
// so concurrent uses of the same refresh token have exactly one winner.
// Consumed and revoked entries are kept on their original TTL rather than
// deleted, which lets replay attempts be classified as revoked instead of
// unknown.
package registry
