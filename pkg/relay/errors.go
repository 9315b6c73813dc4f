package relay

import (
	"fmt"
	"time"
)

// UnavailableError means every upstream candidate failed before a response
// began. It carries the last candidate failure as its cause.
type UnavailableError struct {
	// Deployment is the deployment whose candidates were exhausted.
	Deployment string

	// Attempts is the number of candidates tried.
	Attempts int

	// Cause is the failure of the last candidate tried.
	Cause error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("deployment %q unavailable after %d upstream attempt(s): %v",
		e.Deployment, e.Attempts, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// AttemptError is a single candidate's pre-commit failure: a transport
// error, a connect or first-byte timeout, or a retriable upstream status.
type AttemptError struct {
	// Endpoint is the candidate endpoint that failed.
	Endpoint string

	// Status is the upstream HTTP status, or 0 for transport failures.
	Status int

	// TimedOut marks connect/first-byte deadline expiry.
	TimedOut bool

	// Cause is the underlying transport error, if any.
	Cause error
}

// Error implements the error interface.
func (e *AttemptError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("upstream %q timed out before responding", e.Endpoint)
	case e.Status > 0:
		return fmt.Sprintf("upstream %q returned status %d", e.Endpoint, e.Status)
	default:
		return fmt.Sprintf("upstream %q unreachable: %v", e.Endpoint, e.Cause)
	}
}

// Unwrap returns the underlying error for error chain support.
func (e *AttemptError) Unwrap() error {
	return e.Cause
}

// ConfigProblemError means an upstream rejected the gateway's own
// credential (HTTP 401 or 403). This indicates a local configuration
// problem, not a transient upstream failure, so it stops the failover
// sequence instead of advancing to the next candidate.
type ConfigProblemError struct {
	// Endpoint is the rejecting upstream endpoint.
	Endpoint string

	// Status is the upstream HTTP status (401 or 403).
	Status int
}

// Error implements the error interface.
func (e *ConfigProblemError) Error() string {
	return fmt.Sprintf("upstream %q rejected the configured credential (status %d)", e.Endpoint, e.Status)
}

// CredentialError means an upstream credential reference could not be
// resolved. Like ConfigProblemError it is fatal to the failover sequence.
type CredentialError struct {
	// Endpoint is the candidate whose credential failed to resolve.
	Endpoint string

	// Cause is the resolution failure.
	Cause error
}

// Error implements the error interface.
func (e *CredentialError) Error() string {
	return fmt.Sprintf("cannot resolve credential for upstream %q: %v", e.Endpoint, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *CredentialError) Unwrap() error {
	return e.Cause
}

// StreamError means a committed upstream stream terminated abnormally
// while being relayed. It is never retried; the client-facing stream is
// terminated with an explicit marker instead.
type StreamError struct {
	// Deployment is the deployment being relayed.
	Deployment string

	// Endpoint is the committed upstream endpoint.
	Endpoint string

	// TimedOut marks idle-chunk deadline expiry.
	TimedOut bool

	// IdleTimeout is the configured idle-chunk deadline, for messages.
	IdleTimeout time.Duration

	// ClientGone marks a failure writing to the caller rather than
	// reading from the upstream.
	ClientGone bool

	// Cause is the underlying read or write error.
	Cause error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("stream from upstream %q stalled for more than %s", e.Endpoint, e.IdleTimeout)
	case e.ClientGone:
		return fmt.Sprintf("client stopped accepting the stream for deployment %q: %v", e.Deployment, e.Cause)
	default:
		return fmt.Sprintf("stream from upstream %q failed mid-delivery: %v", e.Endpoint, e.Cause)
	}
}

// Unwrap returns the underlying error for error chain support.
func (e *StreamError) Unwrap() error {
	return e.Cause
}
