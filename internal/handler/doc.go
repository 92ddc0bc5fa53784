// Package handler is the HTTP front door of the gateway.
//
// POST /v1/generate decodes a JSON request, builds a fingerprinted
// request and hands it to the orchestrator. Validation failures map to 400
// and exhaustion of every source to 503. Health and Stats serve the
// operational views behind /health and /stats.
package handler
