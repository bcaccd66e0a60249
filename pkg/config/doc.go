// Package config loads service configuration from SHELFD_* environment
// variables, applies defaults, and validates the result before anything
// else starts.
//
// Secrets (session signing key, shared service secret, magic-link signing
// key) are only ever read from the environment; they are never logged and
// never echoed back in validation errors.
package config
