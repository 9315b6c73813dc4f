package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/resolve"
)

// headerCredential is the credential header expected by upstream Cores and
// presented by inbound callers alike.
const headerCredential = "Api-Key"

// CredentialResolver turns a configured upstream credential, which may be
// a literal value or a secret reference, into the value to send.
type CredentialResolver interface {
	ResolveCredential(ctx context.Context, ref string) (string, error)
}

// LiteralCredentials resolves every credential as a literal value. It is
// the zero-dependency fallback when no secret backend is configured.
type LiteralCredentials struct{}

// ResolveCredential returns ref unchanged.
func (LiteralCredentials) ResolveCredential(_ context.Context, ref string) (string, error) {
	return ref, nil
}

// Request carries the parts of an inbound call the engine forwards.
type Request struct {
	// Body is the inbound request body. It is held in memory so the same
	// payload can be replayed against successive candidates.
	Body []byte

	// ContentType is the inbound Content-Type header value.
	ContentType string

	// Authorization is the caller's original Authorization header value,
	// forwarded only when the plan allows it.
	Authorization string

	// Query is the raw inbound query string, forwarded verbatim.
	Query string
}

// Result is a committed upstream response. Once a Result exists the engine
// will not contact any further candidate; the response must be relayed or
// closed by the caller.
type Result struct {
	// Status is the upstream HTTP status.
	Status int

	// Header is the upstream response header set.
	Header http.Header

	// Body is the upstream response body. Close releases the upstream
	// connection.
	Body io.ReadCloser

	// Endpoint is the endpoint of the committed candidate.
	Endpoint string

	// Attempt is the zero-based index of the committed candidate in the
	// plan's upstream list.
	Attempt int

	cancel context.CancelFunc
}

// Close aborts the upstream exchange and releases its connection.
func (r *Result) Close() error {
	err := r.Body.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

// Engine executes relay plans: it walks a plan's upstream candidates in
// order, commits to the first one that answers, and copies the committed
// response to the caller chunk by chunk.
type Engine struct {
	client           *http.Client
	connectTimeout   time.Duration
	idleChunkTimeout time.Duration
	credentials      CredentialResolver
	logger           *slog.Logger
	observeAttempt   AttemptObserver
}

// AttemptObserver receives the outcome of every upstream candidate attempt,
// committed and failed alike.
type AttemptObserver func(deployment, outcome string)

// Attempt outcomes reported to the observer.
const (
	AttemptCommitted       = "committed"
	AttemptTimeout         = "timeout"
	AttemptTransportError  = "transport_error"
	AttemptRetriableStatus = "retriable_status"
	AttemptFatalStatus     = "fatal_status"
	AttemptCredentialError = "credential_error"
)

// NewEngine creates an engine from the relay configuration. If creds is
// nil, credentials are treated as literal values. If logger is nil, a
// plain text logger on stderr is used.
func NewEngine(cfg config.RelayConfig, creds CredentialResolver, logger *slog.Logger) *Engine {
	if creds == nil {
		creds = LiteralCredentials{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		// The header timeout doubles as the first-byte deadline: a
		// candidate that accepts the connection but never starts a
		// response is skipped the same as one that refuses outright.
		ResponseHeaderTimeout: cfg.ConnectTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ForceAttemptHTTP2:     true,
	}

	return &Engine{
		// No client-level timeout: it would cut off long streams. The
		// idle-chunk deadline in Relay bounds stalls instead.
		client:           &http.Client{Transport: transport},
		connectTimeout:   cfg.ConnectTimeout,
		idleChunkTimeout: cfg.IdleChunkTimeout,
		credentials:      creds,
		logger:           logger,
	}
}

// SetAttemptObserver registers fn to be called with the outcome of each
// candidate attempt. Pass nil to disable.
func (e *Engine) SetAttemptObserver(fn AttemptObserver) {
	e.observeAttempt = fn
}

func (e *Engine) observe(deployment, outcome string) {
	if e.observeAttempt != nil {
		e.observeAttempt(deployment, outcome)
	}
}

// attemptOutcome classifies a failed attempt for the observer.
func attemptOutcome(err error) string {
	var credErr *CredentialError
	if errors.As(err, &credErr) {
		return AttemptCredentialError
	}
	var fatal *ConfigProblemError
	if errors.As(err, &fatal) {
		return AttemptFatalStatus
	}
	var attempt *AttemptError
	if errors.As(err, &attempt) {
		switch {
		case attempt.TimedOut:
			return AttemptTimeout
		case attempt.Status != 0:
			return AttemptRetriableStatus
		}
	}
	return AttemptTransportError
}

// Execute tries the plan's upstream candidates in order and returns the
// first committed response. Failover happens only before a response has
// begun: transport failures, connect and first-byte timeouts, HTTP 429 and
// HTTP 5xx advance to the next candidate. An upstream 401 or 403 means the
// gateway's own credential is misconfigured and aborts the sequence. Any
// other upstream status commits, whatever it is; from that point the
// exchange is relayed verbatim and never retried.
func (e *Engine) Execute(ctx context.Context, plan *resolve.Plan, req *Request) (*Result, error) {
	if len(plan.Upstreams) == 0 {
		return nil, fmt.Errorf("deployment %q has no upstreams", plan.Deployment.Name)
	}

	var lastErr error
	for i, upstream := range plan.Upstreams {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := e.attempt(ctx, plan, upstream, i, req)
		if err == nil {
			e.observe(plan.Deployment.Name, AttemptCommitted)
			if i > 0 {
				e.logger.Info("upstream failover succeeded",
					"deployment", plan.Deployment.Name,
					"attempt", i+1,
					"endpoint", upstream.Endpoint)
			}
			return result, nil
		}
		e.observe(plan.Deployment.Name, attemptOutcome(err))

		var fatal *ConfigProblemError
		var credErr *CredentialError
		if errors.As(err, &fatal) || errors.As(err, &credErr) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		e.logger.Warn("upstream attempt failed",
			"deployment", plan.Deployment.Name,
			"attempt", i+1,
			"endpoint", upstream.Endpoint,
			"error", err)
		lastErr = err
	}

	return nil, &UnavailableError{
		Deployment: plan.Deployment.Name,
		Attempts:   len(plan.Upstreams),
		Cause:      lastErr,
	}
}

// attempt runs a single candidate exchange up to the commit decision.
func (e *Engine) attempt(ctx context.Context, plan *resolve.Plan, upstream config.Upstream, index int, req *Request) (*Result, error) {
	credential, err := e.credentials.ResolveCredential(ctx, upstream.Key)
	if err != nil {
		return nil, &CredentialError{Endpoint: upstream.Endpoint, Cause: err}
	}

	attemptCtx, cancel := context.WithCancel(ctx)

	url := upstream.Endpoint
	if req.Query != "" {
		url += "?" + req.Query
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(req.Body))
	if err != nil {
		cancel()
		return nil, &AttemptError{Endpoint: upstream.Endpoint, Cause: err}
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	httpReq.Header.Set("Content-Type", contentType)
	if credential != "" {
		httpReq.Header.Set(headerCredential, credential)
	}
	if plan.ForwardAuthToken && req.Authorization != "" {
		httpReq.Header.Set("Authorization", req.Authorization)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, &AttemptError{
			Endpoint: upstream.Endpoint,
			TimedOut: isTimeout(err),
			Cause:    err,
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		drainAndClose(resp.Body)
		cancel()
		return nil, &ConfigProblemError{Endpoint: upstream.Endpoint, Status: resp.StatusCode}

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		drainAndClose(resp.Body)
		cancel()
		return nil, &AttemptError{Endpoint: upstream.Endpoint, Status: resp.StatusCode}
	}

	return &Result{
		Status:   resp.StatusCode,
		Header:   resp.Header,
		Body:     resp.Body,
		Endpoint: upstream.Endpoint,
		Attempt:  index,
		cancel:   cancel,
	}, nil
}

// isTimeout reports whether err is a deadline-style failure.
func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// drainAndClose reads a little of a rejected response body before closing
// so the connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.CopyN(io.Discard, body, 4096)
	_ = body.Close()
}
