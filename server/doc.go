// Package server exposes the chat-facing HTTP API.
//
// Routes:
//
//	POST /api/chat/context      get or compute the chat context of a scenario
//	POST /api/chat/explanation  store a generated explanation
//	GET  /healthz, /readyz, /health, /health/{check}
//	GET  /metrics               when a metrics handler is configured
//
// Caller mistakes answer 400, document store failures 503 and anything
// else 500. Error bodies are {"error": "..."}.
package server
