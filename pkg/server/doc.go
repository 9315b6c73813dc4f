// Package server exposes the gateway over HTTP.
//
// Two deployment operations are served, chat completions and embeddings,
// under the /openai/deployments/{deployment}/ prefix. Each request is
// authenticated by its Api-Key header, resolved to a relay plan, executed
// against the plan's upstream candidates, and streamed back verbatim.
// Denials map to 401, 403, and 404; exhausted upstreams map to 502 or 504.
//
// The middleware chain, outermost first: panic recovery, request ID
// assignment, request logging, CORS. Liveness, readiness, and Prometheus
// scrape endpoints ride on the same listener.
package server
