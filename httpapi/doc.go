// Package httpapi exposes an [authkit.Engine] over a JSON HTTP surface.
//
// The router is thin plumbing: it decodes size-bounded request bodies into
// strict typed structs, attaches client IP and a correlation id to the
// request context, invokes the engine, and maps the engine's error taxonomy
// to stable error codes. All session state lives in the engine; the only
// thing this package adds is HTTP-only cookie placement of the refresh
// token and the password-reset grant, so browser clients never handle
// either in script-visible storage.
//
// # What this package must NOT do
//
//   - Implement auth logic. Every decision belongs to the engine.
//   - Leak store, redis, or crypto errors to clients.
package httpapi
