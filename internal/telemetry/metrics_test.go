package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStamp("Role", "create")
	m.ObserveCommit(time.Millisecond, nil)
	m.ObserveDecision("roles.read", true)
	m.SubscriberDelta(1)
}

func TestCounters(t *testing.T) {
	m := NewMetrics()
	m.ObserveStamp("Role", "create")
	m.ObserveStamp("Role", "create")
	m.ObserveCommit(time.Millisecond, errors.New("boom"))
	m.ObserveDecision("roles.read", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stamps.WithLabelValues("Role", "create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commits.WithLabelValues("rolled_back")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authzDecisions.WithLabelValues("roles.read", "false")))
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/roles/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/roles/42", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/roles/:id", "204")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "http_requests_total"))
}
