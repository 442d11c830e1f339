package tracing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestSafeAttributesDropsCredentials(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/invoices"),
		attribute.String("webhook.secret", "dev_secret"),
		attribute.String("X-Signature", "abc"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeError(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(errors.New("dial tcp: refused")), "dial tcp: refused")
	assert.EqualError(t, SafeError(errors.New("bad signature")), "internal_error")
}

func TestDisabledProviderStillPropagates(t *testing.T) {
	provider, err := NewProvider(nil, Config{}, zap.NewNop())
	require.NoError(t, err)

	ctx, span := provider.Tracer("test").Start(t.Context(), "dispatch")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
	assert.False(t, span.SpanContext().IsSampled())

	header := http.Header{}
	InjectHeaders(ctx, header)
	assert.NotEmpty(t, header.Get("traceparent"))
}

func TestGinMiddlewareExtractsParent(t *testing.T) {
	_, err := NewProvider(nil, Config{}, zap.NewNop())
	require.NoError(t, err)
	gin.SetMode(gin.TestMode)

	var got trace.SpanContext
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/health", func(c *gin.Context) {
		got = trace.SpanContextFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, got.IsValid())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", got.TraceID().String())
}
