// Package api wires the HTTP surface: the authentication endpoints, the
// catalog CRUD handlers, and the middleware chain around them.
//
// Credential-issuance endpoints (magic-link request and verify, password
// login) sit in front of authentication and are rate limited instead.
// Everything else runs through the Authenticator; mutating catalog routes
// additionally require the admin decision.
package api
