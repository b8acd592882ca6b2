// Package password implements password hashing and verification with
// argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=65536,t=2,p=2$<salt-b64>$<hash-b64>
//
// The embedded parameters are authoritative for verification, so old hashes
// keep verifying after a cost increase; NeedsUpgrade lets callers rehash on
// the next successful login.
//
// # What this package must NOT do
//
//   - Store or log plaintext passwords.
//   - Make account or policy decisions (minimum length aside); those belong
//     to the engine.
package password
