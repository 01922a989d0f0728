// Package api hosts the admin HTTP server for a running pipeline. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes. Readiness
//     fails once shutdown has been requested.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for listener, queue and writer counters.
//   - POST /v1/shutdown to request a graceful shutdown.
package api
