package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestObserveEvaluation_CountsByDecision(t *testing.T) {
	blocked := EvaluationsTotal.WithLabelValues("block", "critical")
	allowed := EvaluationsTotal.WithLabelValues("allow", "safe")

	blockedBefore := counterValue(t, blocked)
	allowedBefore := counterValue(t, allowed)

	ObserveEvaluation("critical", false, 5*time.Millisecond)
	ObserveEvaluation("safe", true, time.Millisecond)
	ObserveEvaluation("safe", true, time.Millisecond)

	if got := counterValue(t, blocked) - blockedBefore; got != 1 {
		t.Errorf("block/critical delta = %v, want 1", got)
	}
	if got := counterValue(t, allowed) - allowedBefore; got != 2 {
		t.Errorf("allow/safe delta = %v, want 2", got)
	}
}

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		if got := statusBucket(tt.code); got != tt.want {
			t.Errorf("statusBucket(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	body := w.Body.String()
	if len(body) == 0 {
		t.Error("Expected non-empty metrics response")
	}

	// Gauges always appear; counters/histograms only after first observation.
	for _, name := range []string{
		"walletguard_tracked_wallet_profiles",
		"walletguard_active_websocket_clients",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}

	// Trigger observations so the counters appear
	ObserveEvaluation("critical", false, 12*time.Millisecond)
	ThreatDetected("simulator", "critical")
	CollaboratorError("intel")

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/metrics", nil)
	r.ServeHTTP(w, req)
	body = w.Body.String()

	for _, name := range []string{
		"walletguard_evaluations_total",
		"walletguard_evaluation_duration_seconds",
		"walletguard_threats_detected_total",
		"walletguard_collaborator_errors_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected metrics output to contain %s after observation", name)
		}
	}
}

func TestMiddleware_RecordsMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/test", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}
