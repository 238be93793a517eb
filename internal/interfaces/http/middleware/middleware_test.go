package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/prometheus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw gin.HandlerFunc, status int) *gin.Engine {
	r := gin.New()
	r.Use(mw)
	h := func(c *gin.Context) { c.String(status, "ok") }
	r.GET("/healthz", h)
	r.GET("/api/v1/runs/:id", h)
	r.OPTIONS("/api/v1/runs/:id", h)
	return r
}

func do(r http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func observedLogger() (logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logging.NewLoggerFromCore(core), logs
}

func TestRequestLogging_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{http.StatusOK, zap.InfoLevel},
		{http.StatusNotFound, zap.WarnLevel},
		{http.StatusServiceUnavailable, zap.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			log, logs := observedLogger()
			r := newEngine(RequestLogging(log, DefaultLoggingConfig()), tt.status)
			do(r, http.MethodGet, "/api/v1/runs/r1?x=1", nil)

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.level, entry.Level)
			assert.Equal(t, "/api/v1/runs/r1?x=1", entry.ContextMap()["path"])
		})
	}
}

func TestRequestLogging_SkipsHealthChecks(t *testing.T) {
	log, logs := observedLogger()
	r := newEngine(RequestLogging(log, DefaultLoggingConfig()), http.StatusOK)
	do(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, 0, logs.Len())
}

func TestRequestLogging_Slow(t *testing.T) {
	log, logs := observedLogger()
	r := gin.New()
	r.Use(RequestLogging(log, LoggingConfig{SlowThreshold: time.Nanosecond}))
	r.GET("/slow", func(c *gin.Context) {
		time.Sleep(time.Millisecond)
		c.Status(http.StatusOK)
	})
	do(r, http.MethodGet, "/slow", nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.WarnLevel, logs.All()[0].Level)
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://lab.example.org"}
	r := newEngine(CORS(cfg), http.StatusOK)

	w := do(r, http.MethodGet, "/api/v1/runs/r1", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_AllowedOrigin(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://lab.example.org"}
	r := newEngine(CORS(cfg), http.StatusOK)

	w := do(r, http.MethodGet, "/api/v1/runs/r1", map[string]string{"Origin": "https://LAB.example.org"})
	assert.Equal(t, "https://LAB.example.org", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "X-Request-ID", w.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORS_Preflight(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"*"}
	r := newEngine(CORS(cfg), http.StatusOK)

	w := do(r, http.MethodOptions, "/api/v1/runs/r1", map[string]string{
		"Origin":                        "https://any.example.org",
		"Access-Control-Request-Method": "GET",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_SubdomainWildcard(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"*.example.org"}
	cfg.AllowWildcard = true
	r := newEngine(CORS(cfg), http.StatusOK)

	w := do(r, http.MethodGet, "/api/v1/runs/r1", map[string]string{"Origin": "https://dock.example.org"})
	assert.Equal(t, "https://dock.example.org", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetrics_RecordsRouteTemplate(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test"}, nil)
	require.NoError(t, err)
	m := prometheus.NewAppMetrics(collector)

	r := newEngine(Metrics(m), http.StatusOK)
	do(r, http.MethodGet, "/api/v1/runs/r1", nil)
	do(r, http.MethodGet, "/api/v1/runs/r2", nil)
	do(r, http.MethodGet, "/nowhere", nil)

	w := do(collector.Handler(), http.MethodGet, "/metrics", nil)
	body := w.Body.String()
	assert.Contains(t, body, `path="/api/v1/runs/:id"`)
	assert.Contains(t, body, `path="unmatched"`)
	assert.NotContains(t, body, `path="/api/v1/runs/r1"`)
}
