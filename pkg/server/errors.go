package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"mercator-hq/ganymede/pkg/resolve"
)

// Error codes sent to callers in the OpenAI-style error envelope.
const (
	codeUnauthorized        = "unauthorized"
	codeForbidden           = "forbidden"
	codeDeploymentNotFound  = "deployment_not_found"
	codeNotProxied          = "deployment_not_proxied"
	codeOperationMismatch   = "operation_not_supported"
	codeRequestTooLarge     = "request_too_large"
	codeUpstreamUnavailable = "upstream_unavailable"
	codeUpstreamTimeout     = "upstream_timeout"
	codeStreamInterrupted   = "stream_interrupted"
	codeInternal            = "internal_error"
)

// errorResponse is the OpenAI-compatible error envelope.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// writeError emits the error envelope with the given status.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorDetail{
			Code:    code,
			Message: message,
			Type:    "invalid_request_error",
		},
	})
}

// writeSSEError appends a terminal error event to a committed event
// stream. The status line is long gone by then; the event is the only way
// to tell the caller the stream did not run to completion.
func writeSSEError(w http.ResponseWriter, code, message string) {
	data, err := json.Marshal(errorResponse{
		Error: errorDetail{
			Code:    code,
			Message: message,
			Type:    "runtime_error",
		},
	})
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// denialStatus maps a resolution denial to its HTTP status and error code.
// An unknown deployment and an unproxied one share 404 so callers cannot
// tell configured-but-local apart from nonexistent; the body code differs
// for operators reading their own traffic.
func denialStatus(d *resolve.Denial) (int, string, string) {
	switch d.Reason {
	case resolve.ReasonUnauthorized:
		return http.StatusUnauthorized, codeUnauthorized, "missing or unknown api key"
	case resolve.ReasonForbidden:
		return http.StatusForbidden, codeForbidden, "the api key does not grant access to this deployment"
	case resolve.ReasonUnknownDeployment:
		return http.StatusNotFound, codeDeploymentNotFound, "deployment not found: " + d.Deployment
	case resolve.ReasonNotProxied:
		return http.StatusNotFound, codeNotProxied, "deployment is not served by this gateway: " + d.Deployment
	default:
		return http.StatusInternalServerError, codeInternal, "unexpected denial"
	}
}
