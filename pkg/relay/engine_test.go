package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/resolve"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(config.RelayConfig{
		ConnectTimeout:   2 * time.Second,
		IdleChunkTimeout: 2 * time.Second,
	}, nil, nil)
}

func testPlan(forwardAuth bool, upstreams ...config.Upstream) *resolve.Plan {
	return &resolve.Plan{
		Deployment: &config.Deployment{
			Name:      "gpt-4",
			Kind:      config.KindModel,
			Upstreams: upstreams,
		},
		Key:              &config.KeyRecord{Secret: "dial_api_key", Role: "default"},
		Upstreams:        upstreams,
		ForwardAuthToken: forwardAuth,
	}
}

func TestExecuteSingleUpstream(t *testing.T) {
	var gotKey, gotAuth, gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Api-Key")
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"chatcmpl-1"}`)
	}))
	defer upstream.Close()

	engine := testEngine(t)
	plan := testPlan(false, config.Upstream{Endpoint: upstream.URL, Key: "remote-key"})

	result, err := engine.Execute(context.Background(), plan, &Request{
		Body:          []byte(`{"messages":[]}`),
		Authorization: "Bearer user-token",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	defer result.Close()

	if result.Status != http.StatusOK {
		t.Errorf("status = %d, want %d", result.Status, http.StatusOK)
	}
	if result.Attempt != 0 {
		t.Errorf("attempt = %d, want 0", result.Attempt)
	}
	if gotKey != "remote-key" {
		t.Errorf("upstream Api-Key = %q, want %q", gotKey, "remote-key")
	}
	if gotAuth != "" {
		t.Errorf("Authorization forwarded as %q despite forward_auth_token disabled", gotAuth)
	}
	if gotBody != `{"messages":[]}` {
		t.Errorf("upstream body = %q, want the inbound body verbatim", gotBody)
	}

	payload, _ := io.ReadAll(result.Body)
	if string(payload) != `{"id":"chatcmpl-1"}` {
		t.Errorf("response body = %q", payload)
	}
}

func TestExecuteForwardsAuthorizationWhenEnabled(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	engine := testEngine(t)
	plan := testPlan(true, config.Upstream{Endpoint: upstream.URL, Key: "k"})

	result, err := engine.Execute(context.Background(), plan, &Request{
		Authorization: "Bearer user-token",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	result.Close()

	if gotAuth != "Bearer user-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer user-token")
	}
}

func TestExecuteAllCandidatesFail(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	engine := testEngine(t)
	plan := testPlan(false, config.Upstream{Endpoint: upstream.URL, Key: "k"})

	_, err := engine.Execute(context.Background(), plan, &Request{})
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Execute() error = %v, want *UnavailableError", err)
	}
	if unavailable.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", unavailable.Attempts)
	}
	var attempt *AttemptError
	if !errors.As(err, &attempt) || attempt.Status != http.StatusServiceUnavailable {
		t.Errorf("cause = %v, want attempt error with status 503", unavailable.Cause)
	}
}

func TestExecuteFailsOverToSecondCandidate(t *testing.T) {
	var firstHits, secondHits atomic.Int32
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		firstHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer first.Close()

	var secondKey string
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondHits.Add(1)
		secondKey = r.Header.Get("Api-Key")
		fmt.Fprint(w, `{"id":"chatcmpl-2"}`)
	}))
	defer second.Close()

	engine := testEngine(t)
	plan := testPlan(false,
		config.Upstream{Endpoint: first.URL, Key: "key-1"},
		config.Upstream{Endpoint: second.URL, Key: "key-2"},
	)

	result, err := engine.Execute(context.Background(), plan, &Request{Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	defer result.Close()

	if result.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", result.Attempt)
	}
	if result.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", result.Status)
	}
	if firstHits.Load() != 1 || secondHits.Load() != 1 {
		t.Errorf("hits = %d/%d, want one each", firstHits.Load(), secondHits.Load())
	}
	if secondKey != "key-2" {
		t.Errorf("second candidate Api-Key = %q, want its own credential", secondKey)
	}
}

func TestExecuteRetriableStatuses(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer first.Close()
			second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer second.Close()

			engine := testEngine(t)
			plan := testPlan(false,
				config.Upstream{Endpoint: first.URL, Key: "k"},
				config.Upstream{Endpoint: second.URL, Key: "k"},
			)

			result, err := engine.Execute(context.Background(), plan, &Request{})
			if err != nil {
				t.Fatalf("Execute() error = %v, want failover past status %d", err, status)
			}
			result.Close()
			if result.Attempt != 1 {
				t.Errorf("attempt = %d, want 1", result.Attempt)
			}
		})
	}
}

func TestExecuteUpstreamCredentialRejectionIsFatal(t *testing.T) {
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer first.Close()

	var secondHits atomic.Int32
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer second.Close()

	engine := testEngine(t)
	plan := testPlan(false,
		config.Upstream{Endpoint: first.URL, Key: "stale-key"},
		config.Upstream{Endpoint: second.URL, Key: "k"},
	)

	_, err := engine.Execute(context.Background(), plan, &Request{})
	var fatal *ConfigProblemError
	if !errors.As(err, &fatal) {
		t.Fatalf("Execute() error = %v, want *ConfigProblemError", err)
	}
	if fatal.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", fatal.Status)
	}
	if secondHits.Load() != 0 {
		t.Error("second candidate was contacted after a fatal credential rejection")
	}
}

func TestExecuteNonRetriableErrorStatusCommits(t *testing.T) {
	// A 400 is the upstream's verdict on this request, not a candidate
	// failure. It must be relayed, not retried elsewhere.
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request"}}`)
	}))
	defer first.Close()

	var secondHits atomic.Int32
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondHits.Add(1)
	}))
	defer second.Close()

	engine := testEngine(t)
	plan := testPlan(false,
		config.Upstream{Endpoint: first.URL, Key: "k"},
		config.Upstream{Endpoint: second.URL, Key: "k"},
	)

	result, err := engine.Execute(context.Background(), plan, &Request{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	defer result.Close()
	if result.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 relayed", result.Status)
	}
	if secondHits.Load() != 0 {
		t.Error("second candidate was contacted after a committed 400")
	}
}

func TestExecuteFirstByteTimeoutAdvances(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer fast.Close()

	engine := NewEngine(config.RelayConfig{
		ConnectTimeout:   100 * time.Millisecond,
		IdleChunkTimeout: time.Second,
	}, nil, nil)
	plan := testPlan(false,
		config.Upstream{Endpoint: slow.URL, Key: "k"},
		config.Upstream{Endpoint: fast.URL, Key: "k"},
	)

	result, err := engine.Execute(context.Background(), plan, &Request{})
	if err != nil {
		t.Fatalf("Execute() error = %v, want failover past slow candidate", err)
	}
	result.Close()
	if result.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", result.Attempt)
	}
}

func TestExecuteUnreachableUpstream(t *testing.T) {
	engine := testEngine(t)
	plan := testPlan(false, config.Upstream{Endpoint: "http://127.0.0.1:1", Key: "k"})

	_, err := engine.Execute(context.Background(), plan, &Request{})
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Execute() error = %v, want *UnavailableError", err)
	}
}

func TestExecuteCancelledBeforeDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := testEngine(t)
	plan := testPlan(false, config.Upstream{Endpoint: "http://127.0.0.1:1", Key: "k"})

	_, err := engine.Execute(ctx, plan, &Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
}

type mapCredentials map[string]string

func (m mapCredentials) ResolveCredential(_ context.Context, ref string) (string, error) {
	v, ok := m[ref]
	if !ok {
		return "", fmt.Errorf("unknown secret %q", ref)
	}
	return v, nil
}

func TestExecuteResolvesCredentialReferences(t *testing.T) {
	var gotKey string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Api-Key")
	}))
	defer upstream.Close()

	engine := NewEngine(config.RelayConfig{ConnectTimeout: time.Second},
		mapCredentials{"env:REMOTE_KEY": "resolved-value"}, nil)
	plan := testPlan(false, config.Upstream{Endpoint: upstream.URL, Key: "env:REMOTE_KEY"})

	result, err := engine.Execute(context.Background(), plan, &Request{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	result.Close()
	if gotKey != "resolved-value" {
		t.Errorf("Api-Key = %q, want resolved secret", gotKey)
	}
}

func TestExecuteCredentialResolutionFailureIsFatal(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer upstream.Close()

	engine := NewEngine(config.RelayConfig{ConnectTimeout: time.Second}, mapCredentials{}, nil)
	plan := testPlan(false, config.Upstream{Endpoint: upstream.URL, Key: "env:MISSING"})

	_, err := engine.Execute(context.Background(), plan, &Request{})
	var credErr *CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("Execute() error = %v, want *CredentialError", err)
	}
	if hits.Load() != 0 {
		t.Error("upstream was contacted despite unresolvable credential")
	}
}

func TestExecuteForwardsQueryString(t *testing.T) {
	var gotQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
	}))
	defer upstream.Close()

	engine := testEngine(t)
	plan := testPlan(false, config.Upstream{Endpoint: upstream.URL, Key: "k"})

	result, err := engine.Execute(context.Background(), plan, &Request{Query: "api-version=2024-02-01"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	result.Close()
	if gotQuery != "api-version=2024-02-01" {
		t.Errorf("upstream query = %q, want it forwarded verbatim", gotQuery)
	}
}

func TestRelayCopiesStreamVerbatim(t *testing.T) {
	chunks := []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n",
		"data: [DONE]\n\n",
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			fmt.Fprint(w, chunk)
			flusher.Flush()
		}
	}))
	defer upstream.Close()

	engine := testEngine(t)
	plan := testPlan(false, config.Upstream{Endpoint: upstream.URL, Key: "k"})

	result, err := engine.Execute(context.Background(), plan, &Request{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	recorder := httptest.NewRecorder()
	if err := engine.Relay(context.Background(), recorder, result, "gpt-4"); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}

	want := strings.Join(chunks, "")
	if recorder.Body.String() != want {
		t.Errorf("relayed body = %q, want %q", recorder.Body.String(), want)
	}
	if !recorder.Flushed {
		t.Error("relay never flushed the response writer")
	}
}

func TestRelayIdleChunkTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: first\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()

	engine := NewEngine(config.RelayConfig{
		ConnectTimeout:   time.Second,
		IdleChunkTimeout: 100 * time.Millisecond,
	}, nil, nil)
	plan := testPlan(false, config.Upstream{Endpoint: upstream.URL, Key: "k"})

	result, err := engine.Execute(context.Background(), plan, &Request{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	recorder := httptest.NewRecorder()
	err = engine.Relay(context.Background(), recorder, result, "gpt-4")
	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("Relay() error = %v, want *StreamError", err)
	}
	if !streamErr.TimedOut {
		t.Errorf("stream error = %v, want idle timeout", streamErr)
	}
	if got := recorder.Body.String(); got != "data: first\n\n" {
		t.Errorf("partial body = %q, want the delivered prefix intact", got)
	}
}

func TestRelayUpstreamFailureMidStreamDoesNotFailOver(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		fmt.Fprint(w, "data: partial\n\n")
		w.(http.Flusher).Flush()
		// Abort the connection mid-body.
		conn, _, _ := w.(http.Hijacker).Hijack()
		conn.Close()
	}))
	defer upstream.Close()

	engine := testEngine(t)
	plan := testPlan(false, config.Upstream{Endpoint: upstream.URL, Key: "k"})

	result, err := engine.Execute(context.Background(), plan, &Request{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	recorder := httptest.NewRecorder()
	err = engine.Relay(context.Background(), recorder, result, "gpt-4")
	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("Relay() error = %v, want *StreamError after commit", err)
	}
	if streamErr.TimedOut || streamErr.ClientGone {
		t.Errorf("stream error misclassified: %+v", streamErr)
	}
}

func TestExecuteReportsAttemptOutcomes(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	engine := testEngine(t)
	var outcomes []string
	engine.SetAttemptObserver(func(deployment, outcome string) {
		if deployment != "gpt-4" {
			t.Errorf("observed deployment = %q, want gpt-4", deployment)
		}
		outcomes = append(outcomes, outcome)
	})
	plan := testPlan(false,
		config.Upstream{Endpoint: failing.URL, Key: "k"},
		config.Upstream{Endpoint: healthy.URL, Key: "k"},
	)

	result, err := engine.Execute(context.Background(), plan, &Request{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	result.Close()

	want := []string{AttemptRetriableStatus, AttemptCommitted}
	if len(outcomes) != len(want) {
		t.Fatalf("observed outcomes = %v, want %v", outcomes, want)
	}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Errorf("outcome[%d] = %q, want %q", i, outcomes[i], want[i])
		}
	}
}

func TestExecuteReportsFatalAttemptOutcomes(t *testing.T) {
	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer rejecting.Close()

	engine := testEngine(t)
	var outcomes []string
	engine.SetAttemptObserver(func(_, outcome string) {
		outcomes = append(outcomes, outcome)
	})
	plan := testPlan(false, config.Upstream{Endpoint: rejecting.URL, Key: "stale-key"})

	if _, err := engine.Execute(context.Background(), plan, &Request{}); err == nil {
		t.Fatal("Execute() error = nil, want credential rejection")
	}
	if len(outcomes) != 1 || outcomes[0] != AttemptFatalStatus {
		t.Errorf("observed outcomes = %v, want [%s]", outcomes, AttemptFatalStatus)
	}
}

func TestExecuteReportsCredentialResolutionOutcome(t *testing.T) {
	engine := NewEngine(config.RelayConfig{ConnectTimeout: time.Second}, mapCredentials{}, nil)
	var outcomes []string
	engine.SetAttemptObserver(func(_, outcome string) {
		outcomes = append(outcomes, outcome)
	})
	plan := testPlan(false, config.Upstream{Endpoint: "http://127.0.0.1:1", Key: "env:MISSING"})

	if _, err := engine.Execute(context.Background(), plan, &Request{}); err == nil {
		t.Fatal("Execute() error = nil, want credential error")
	}
	if len(outcomes) != 1 || outcomes[0] != AttemptCredentialError {
		t.Errorf("observed outcomes = %v, want [%s]", outcomes, AttemptCredentialError)
	}
}

func TestRelayClientCancellationStopsUpstream(t *testing.T) {
	upstreamGone := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: first\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(upstreamGone)
	}))
	defer upstream.Close()

	engine := testEngine(t)
	plan := testPlan(false, config.Upstream{Endpoint: upstream.URL, Key: "k"})

	ctx, cancel := context.WithCancel(context.Background())
	result, err := engine.Execute(ctx, plan, &Request{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	recorder := httptest.NewRecorder()
	err = engine.Relay(ctx, recorder, result, "gpt-4")
	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("Relay() error = %v, want *StreamError", err)
	}
	if !streamErr.ClientGone {
		t.Errorf("stream error = %+v, want client-gone classification", streamErr)
	}

	select {
	case <-upstreamGone:
	case <-time.After(2 * time.Second):
		t.Error("upstream request was not cancelled after the client went away")
	}
}
