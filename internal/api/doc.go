// Package api hosts the HTTP server, middleware, and handlers for the
// gateway. Notable routes:
//   - GET /{signature}/{audioURI} processes audio and serves the bytes.
//   - GET /params/... previews the parsed parameter record as JSON.
//   - GET /meta/... probes the source's stream and format metadata.
//   - GET /health and /healthz for liveness, /readyz for readiness.
//   - GET /metrics for Prometheus scraping.
//   - GET /openapi.json for the machine-readable API description.
package api
