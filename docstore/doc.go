// Package docstore is a client for a collection-oriented document store
// reachable over HTTP with JSON bodies.
//
// The store exposes, per collection:
//
//	POST   /collections/{collection}/documents        create
//	GET    /collections/{collection}/documents/{id}   read (404 means absent)
//	PATCH  /collections/{collection}/documents/{id}   partial update
//	PUT    /collections/{collection}/documents/{id}   full upsert
//	POST   /collections/{collection}/query            filtered query
//
// Client retries 502, 503, 504 and connection failures up to MaxRetries
// additional attempts with identical request bytes, then reports
// KindUnavailable carrying the last cause. Every failure is a *Error whose
// Kind callers switch on; raw transport errors never escape.
//
// The wire transport is pluggable through Transporter. HTTPTransport talks
// to a real store; MemoryTransport serves the same surface from memory.
package docstore
