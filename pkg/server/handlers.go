package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"mercator-hq/ganymede/pkg/audit"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/relay"
	"mercator-hq/ganymede/pkg/telemetry/logging"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

// Operations served against deployments.
const (
	OperationChat       = "chat/completions"
	OperationEmbeddings = "embeddings"
)

// hopByHopHeaders are not forwarded from upstream responses.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// invokeHandler serves one deployment operation end to end: resolve,
// execute, relay.
func (s *Server) invokeHandler(operation string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		finish := s.metrics.RequestStarted()
		defer finish()

		deployment := r.PathValue("deployment")
		record := &audit.Record{
			RequestID:     RequestID(r.Context()),
			Time:          start,
			Deployment:    deployment,
			Operation:     operation,
			UpstreamIndex: -1,
		}

		plan, denial := s.resolver.Resolve(deployment, r.Header.Get("Api-Key"))
		if denial != nil {
			status, code, message := denialStatus(denial)
			s.logger.Info("request denied",
				"deployment", deployment,
				"reason", string(denial.Reason),
				"api_key", logging.RedactKey(r.Header.Get("Api-Key")),
				"request_id", record.RequestID)
			writeError(w, status, code, message)
			s.finishRequest(record, string(denial.Reason), status, start)
			return
		}
		record.Project = plan.Key.Project

		if !operationMatches(operation, plan.Deployment) {
			writeError(w, http.StatusNotFound, codeOperationMismatch,
				"deployment does not support "+operation)
			s.finishRequest(record, codeOperationMismatch, http.StatusNotFound, start)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge, codeRequestTooLarge,
					"request body exceeds the configured limit")
				s.finishRequest(record, codeRequestTooLarge, http.StatusRequestEntityTooLarge, start)
				return
			}
			writeError(w, http.StatusBadRequest, codeInternal, "failed to read request body")
			s.finishRequest(record, "read_error", http.StatusBadRequest, start)
			return
		}

		result, err := s.engine.Execute(r.Context(), plan, &relay.Request{
			Body:          body,
			ContentType:   r.Header.Get("Content-Type"),
			Authorization: r.Header.Get("Authorization"),
			Query:         r.URL.RawQuery,
		})
		if err != nil {
			record.Attempts = len(plan.Upstreams)
			status, code, message := relayErrorStatus(err)
			outcome := metrics.OutcomeUnavailable
			var fatal *relay.ConfigProblemError
			var credErr *relay.CredentialError
			if errors.As(err, &fatal) || errors.As(err, &credErr) {
				// The upstream rejected the gateway's own credential;
				// label it apart from plain unavailability.
				outcome = metrics.OutcomeMisconfigured
			}
			writeError(w, status, code, message)
			s.finishRequest(record, outcome, status, start)
			return
		}

		firstByte := time.Since(start)
		s.metrics.RecordFirstByte(deployment, firstByte)
		if result.Attempt > 0 {
			s.metrics.RecordFailover(deployment)
		}
		record.Attempts = result.Attempt + 1
		record.UpstreamIndex = result.Attempt
		record.FirstByteMillis = firstByte.Milliseconds()
		record.Streamed = strings.HasPrefix(result.Header.Get("Content-Type"), "text/event-stream")

		copyResponseHeaders(w.Header(), result.Header)
		w.WriteHeader(result.Status)

		counting := &countingWriter{w: w}
		relayErr := s.engine.Relay(r.Context(), counting, result, deployment)

		s.metrics.RecordRelayed(deployment, counting.bytes, counting.chunks)
		record.BytesRelayed = counting.bytes
		record.Status = result.Status

		outcome := metrics.OutcomeRelayed
		if relayErr != nil {
			outcome = metrics.OutcomeStreamError
			s.logger.Warn("stream terminated abnormally",
				"deployment", deployment,
				"request_id", record.RequestID,
				"error", relayErr)
		}
		s.finishRequest(record, outcome, result.Status, start)

		if relayErr != nil {
			s.terminateStream(w, relayErr, record.Streamed)
		}
	}
}

// terminateStream marks an abnormal relay end for the caller. A partial
// body delivered up to this point must not read as a complete response:
// an event stream gets a terminal error event; anything else has its
// connection cut short so the client sees an unexpected EOF instead of a
// clean end.
func (s *Server) terminateStream(w http.ResponseWriter, relayErr error, streamed bool) {
	var streamErr *relay.StreamError
	if errors.As(relayErr, &streamErr) && streamErr.ClientGone {
		// The client is already gone; there is no one to tell.
		return
	}

	if streamed {
		code, message := codeStreamInterrupted, "the upstream stream ended unexpectedly"
		if streamErr != nil && streamErr.TimedOut {
			code, message = codeUpstreamTimeout, "the upstream stream stalled past the idle deadline"
		}
		writeSSEError(w, code, message)
		return
	}

	panic(http.ErrAbortHandler)
}

// finishRequest stamps the record and hands it to metrics and audit.
func (s *Server) finishRequest(record *audit.Record, outcome string, status int, start time.Time) {
	duration := time.Since(start)
	record.Outcome = outcome
	record.Status = status
	record.DurationMillis = duration.Milliseconds()

	s.metrics.RecordRequest(record.Deployment, outcome, duration)
	if s.audit != nil {
		s.audit.Record(record)
	}
}

// operationMatches reports whether the deployment serves the operation:
// chat for chat models and applications, embeddings for embedding models.
func operationMatches(operation string, d *config.Deployment) bool {
	switch operation {
	case OperationEmbeddings:
		return d.Kind == config.KindModel && d.Model.Type == "embedding"
	case OperationChat:
		if d.Kind == config.KindApplication {
			return true
		}
		return d.Model.Type == "chat" || d.Model.Type == ""
	default:
		return false
	}
}

// relayErrorStatus maps an engine failure to the caller-facing status.
func relayErrorStatus(err error) (int, string, string) {
	var unavailable *relay.UnavailableError
	if errors.As(err, &unavailable) {
		var attempt *relay.AttemptError
		if errors.As(unavailable.Cause, &attempt) && attempt.TimedOut {
			return http.StatusGatewayTimeout, codeUpstreamTimeout,
				"no upstream responded within the deadline"
		}
		return http.StatusBadGateway, codeUpstreamUnavailable,
			"all upstreams for the deployment are unavailable"
	}

	var fatal *relay.ConfigProblemError
	var credErr *relay.CredentialError
	if errors.As(err, &fatal) || errors.As(err, &credErr) {
		return http.StatusBadGateway, codeUpstreamUnavailable,
			"the gateway is misconfigured for this deployment"
	}

	return http.StatusBadGateway, codeUpstreamUnavailable, "relay failed"
}

// copyResponseHeaders copies upstream headers minus hop-by-hop ones.
func copyResponseHeaders(dst, src http.Header) {
	for name, values := range src {
		if _, skip := hopByHopHeaders[http.CanonicalHeaderKey(name)]; skip {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

// countingWriter counts relayed bytes and chunks and forwards Flush so the
// engine's per-chunk flushing reaches the client.
type countingWriter struct {
	w      io.Writer
	bytes  int64
	chunks int64
}

func (cw *countingWriter) Write(b []byte) (int, error) {
	n, err := cw.w.Write(b)
	cw.bytes += int64(n)
	if n > 0 {
		cw.chunks++
	}
	return n, err
}

func (cw *countingWriter) Flush() {
	if f, ok := cw.w.(http.Flusher); ok {
		f.Flush()
	}
}
