// Package relay executes resolved plans against upstream Cores.
//
// The engine walks a plan's upstream candidates in configuration order.
// Failover is strictly pre-commit: once response headers arrive with a
// relayable status the exchange is committed, and from then on bytes flow
// to the caller verbatim with no retries. Transport failures, connect and
// first-byte timeouts, HTTP 429 and 5xx advance to the next candidate;
// an upstream 401 or 403 aborts the sequence, because it signals a
// misconfigured gateway credential rather than a transient fault.
//
// Relay copies the committed body with alternating reads and writes and a
// per-chunk flush, so client backpressure propagates to the upstream and
// chunk boundaries survive end to end.
package relay
