// Package audit records security-relevant events: logins, logouts,
// magic-link issuance and redemption, service-credential bypass grants,
// and authorization denials.
//
// The Logger interface has three implementations: FileLogger writes
// JSON lines with size-based rotation, DBLogger inserts rows into
// Postgres, and MultiLogger fans out to several sinks. A no-op logger
// backs audit.FromContext when nothing is configured, so call sites
// never need nil checks.
//
// Audit writes on hot paths are fire-and-forget; a failed write is
// logged and dropped, never surfaced to the request.
package audit
