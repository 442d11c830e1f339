package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("emit_status", "paid"),
		attribute.String("invoice_id", "5b0f"),
		attribute.String("status", "paid"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("emit_status"), attrs[0].Key)
	assert.Equal(t, attribute.Key("status"), attrs[1].Key)
}

func TestBusinessMetricsNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	ctx := t.Context()
	m.RecordInvoiceCreated(ctx, "paid")
	m.RecordIdempotentReplay(ctx)
	m.RecordInvoiceTransition(ctx, "paid")

	var nilMetrics *Metrics
	nilMetrics.RecordInvoiceCreated(ctx, "paid")
}

func TestDispatchMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewDispatchMetrics(reg)
	require.NoError(t, err)

	m.TaskScheduled()
	m.TaskScheduled()
	m.TaskFired()
	m.ObserveDelivery("delivered", 20*time.Millisecond)
	m.ObserveDelivery("failed", 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.pending))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.outcomes.WithLabelValues("delivered")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.outcomes.WithLabelValues("failed")))

	_, err = NewDispatchMetrics(reg)
	assert.Error(t, err, "duplicate registration must fail")
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m, err := NewHTTPMetrics(reg)
	require.NoError(t, err)

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/invoices/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/invoices/abc", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/invoices/:id", "404")))
}
