package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Recorded.WithLabelValues("student", "late", "qr_code").Inc()
	m.Recorded.WithLabelValues("student", "late", "qr_code").Inc()
	m.Duplicates.WithLabelValues("tutor").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Recorded.WithLabelValues("student", "late", "qr_code")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Duplicates.WithLabelValues("tutor")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Failures.WithLabelValues("student", "ACTIVITY_NOT_STARTED")))
}

func TestDoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestGinMiddlewareObservesRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := New(reg)

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/v1/activities/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/activities/abc", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPDuration))
}
