// Package storage holds backend configuration shared by the PostgreSQL and
// Redis clients in the subpackages.
//
// PostgreSQL is the system of record for users, magic-link tokens, catalog
// items, and audit events. Redis backs only the distributed rate limiter,
// so the service stays up (with per-instance limiting) when Redis is not
// configured or unreachable.
package storage
