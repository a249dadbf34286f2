// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/products:lookup for ad-hoc product resolution.
//   - GET /v1/runs and /v1/runs/{id}/categories for harvest outcome
//     reporting via the OutcomeRepository interface.
package api
