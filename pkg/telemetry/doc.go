// Package telemetry groups observability support for Ganymede: structured
// logging (telemetry/logging), prometheus metrics (telemetry/metrics), and
// liveness/readiness probes (telemetry/health).
package telemetry
