package audit

import "time"

// Record is one proxied request's audit trail entry.
type Record struct {
	// ID is the unique record identifier.
	ID string

	// RequestID is the gateway request ID, shared with logs.
	RequestID string

	// Time is when the request arrived.
	Time time.Time

	// Deployment is the requested deployment name.
	Deployment string

	// Operation is the invoked operation ("chat/completions",
	// "embeddings").
	Operation string

	// Project is the project label of the inbound key, empty when the
	// request was denied before authentication.
	Project string

	// Outcome tells how the request ended: a denial reason, "relayed", or
	// a relay failure class.
	Outcome string

	// Status is the HTTP status returned to the caller.
	Status int

	// UpstreamIndex is the zero-based index of the committed candidate,
	// -1 when no candidate committed.
	UpstreamIndex int

	// Attempts is the number of upstream candidates contacted.
	Attempts int

	// Streamed reports whether the response was a streaming one.
	Streamed bool

	// FirstByteMillis is the latency to committed upstream headers, zero
	// when no candidate committed.
	FirstByteMillis int64

	// DurationMillis is the end-to-end request duration.
	DurationMillis int64

	// BytesRelayed is the number of response body bytes delivered.
	BytesRelayed int64
}
