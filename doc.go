// Package authkit provides an account and session lifecycle engine:
// email registration with one-time code verification, argon2id password
// login, signed access/refresh token pairs with atomic rotation, and
// OTP-driven password reset.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (LoginResult, User, MetricsSnapshot).
// Durable accounts live behind the account.Store interface; refresh
// token tracking lives in the registry package; signing is the token
// package's concern. The one-time code store, rate limiters, and audit
// dispatch are unexported engine internals.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or record encodings in its
//     public API.
//   - Store or log plaintext passwords or one-time codes. Only salted
//     digests reach storage.
//   - Consult storage on access-token verification. VerifyAccess is
//     signature and expiry only; revocation bites at the refresh
//     boundary.
package authkit
