package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecordsRequests(t *testing.T) {
	c := NewCollector(nil)

	c.RecordRequest("gpt-4", OutcomeRelayed, 120*time.Millisecond)
	c.RecordRequest("gpt-4", OutcomeRelayed, 80*time.Millisecond)
	c.RecordRequest("gpt-4", OutcomeForbidden, time.Millisecond)

	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("gpt-4", OutcomeRelayed)); got != 2 {
		t.Errorf("relayed count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("gpt-4", OutcomeForbidden)); got != 1 {
		t.Errorf("forbidden count = %v, want 1", got)
	}
}

func TestCollectorInFlight(t *testing.T) {
	c := NewCollector(nil)

	done := c.RequestStarted()
	if got := testutil.ToFloat64(c.inFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
	done()
	if got := testutil.ToFloat64(c.inFlight); got != 0 {
		t.Errorf("in flight after done = %v, want 0", got)
	}
}

func TestCollectorFailoverAndAttempts(t *testing.T) {
	c := NewCollector(nil)

	c.RecordAttempt("gpt-4", "error")
	c.RecordAttempt("gpt-4", "committed")
	c.RecordFailover("gpt-4")

	if got := testutil.ToFloat64(c.failoversTotal.WithLabelValues("gpt-4")); got != 1 {
		t.Errorf("failovers = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.attemptsTotal.WithLabelValues("gpt-4", "error")); got != 1 {
		t.Errorf("error attempts = %v, want 1", got)
	}
}

func TestCollectorHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(nil)
	c.RecordRequest("gpt-4", OutcomeRelayed, time.Second)
	c.RecordRelayed("gpt-4", 2048, 3)

	recorder := httptest.NewRecorder()
	c.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	body := recorder.Body.String()
	for _, name := range []string{"ganymede_requests_total", "ganymede_relayed_bytes_total", "ganymede_relayed_chunks_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("scrape output missing %s", name)
		}
	}
}
