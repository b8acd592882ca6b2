// Package token issues and verifies signed access/refresh token pairs.
//
// Both token kinds are JWTs signed with the same key and carry a kind
// claim so one can never be accepted in the other's place. Access tokens
// are verified purely by signature and expiry. Refresh tokens carry a
// random ID claim that the session registry tracks for rotation and
// revocation; this package only signs and parses, it holds no state.
//
// Supported algorithms are Ed25519 (recommended) and HS256. Multi-key
// verification via a kid header is supported for key rollover.
package token
