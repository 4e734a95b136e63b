// Package auth authenticates callers of the chat API.
//
// Two methods are supported: static API keys sent in X-API-Key (stored
// only as SHA-256 hashes) and HMAC-signed JWT bearer tokens. Middleware
// rejects unauthenticated requests with 401 and stores the Identity in the
// request context.
package auth
