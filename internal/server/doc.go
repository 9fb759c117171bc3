// Package server hosts the HTTP surfaces of venuedesk.
//
// ServerContext bundles the application services (email cache, pending
// action ledger, approval interpreter, suggestion step) behind small
// interfaces so the JSON API and the MCP tools share one wiring.
//
// APIServer exposes:
//   - POST /api/refresh: sync the inbox and return the cache
//   - GET /api/emails: the cache without contacting Gmail
//   - POST /api/suggest: run one suggestion pass
//   - GET /api/pending: drafts awaiting approval
//   - POST /webhooks/sms: inbound operator commands
//   - GET /healthz and GET /readyz
//
// MetricsServer serves Prometheus metrics on a dedicated port.
package server
