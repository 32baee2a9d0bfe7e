package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsRecordedAndExposed(t *testing.T) {
	InitMetrics()
	// Re-initialization must not re-register collectors.
	InitMetrics()

	RecordEnvRequest("textcraft", "step", "ok", 120*time.Millisecond)
	RecordEnvRetry("webarena", "step")
	RecordGeneration("babyai", "fallback", 5*time.Millisecond)
	SetActiveSessions(2)
	RecordSessionEnd("textcraft", 12, 1.5)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status code = %d", rec.Code)
	}

	body := rec.Body.String()
	for _, metric := range []string{
		"agentgym_env_requests_total",
		"agentgym_env_retries_total",
		"agentgym_generations_total",
		"agentgym_sessions_active",
		"agentgym_session_rounds",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
}
