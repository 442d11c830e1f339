package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/fakeacquirer/internal/clock"
	"github.com/smallbiznis/fakeacquirer/internal/config"
	"github.com/smallbiznis/fakeacquirer/internal/invoice/service"
	"github.com/smallbiznis/fakeacquirer/internal/invoice/store"
	"github.com/smallbiznis/fakeacquirer/internal/observability"
	obsmetrics "github.com/smallbiznis/fakeacquirer/internal/observability/metrics"
	"github.com/smallbiznis/fakeacquirer/internal/ratelimit"
	"github.com/smallbiznis/fakeacquirer/internal/webhook"
	webhookdomain "github.com/smallbiznis/fakeacquirer/internal/webhook/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "dev_secret"

type hookCall struct {
	header http.Header
	body   []byte
}

type hookReceiver struct {
	mu    sync.Mutex
	calls []hookCall
	srv   *httptest.Server
}

func newHookReceiver(t *testing.T) *hookReceiver {
	t.Helper()
	h := &hookReceiver{}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		h.mu.Lock()
		h.calls = append(h.calls, hookCall{header: r.Header.Clone(), body: body})
		h.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *hookReceiver) Calls() []hookCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]hookCall(nil), h.calls...)
}

type testEnv struct {
	engine     *gin.Engine
	deliveries *webhook.DeliveryStore
	invoices   *store.InvoiceStore
}

func newTestEnv(t *testing.T, clk clock.Clock, limiter *ratelimit.InvoiceCreateLimiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Port:             0,
		WebhookSecret:    testSecret,
		DefaultCurrency:  config.DefaultCurrency,
		DefaultEmitAfter: config.DefaultEmitAfterMillis * time.Millisecond,
		CheckoutBaseURL:  config.DefaultCheckoutBaseURL,
	}
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	httpMetrics, err := obsmetrics.NewHTTPMetrics(reg)
	require.NoError(t, err)

	invoices := store.NewInvoiceStore()
	deliveries := webhook.NewDeliveryStore()
	dispatcher := webhook.NewDispatcher(webhook.Params{
		Invoices:   invoices,
		Deliveries: deliveries,
		Signer:     webhook.NewSigner(testSecret),
		Settings:   config.NewStaticDispatchConfigHolder(config.DefaultDispatchConfig()),
		Clock:      clk,
		Node:       node,
		Log:        zap.NewNop(),
	})
	t.Cleanup(func() { _ = dispatcher.Stop(context.Background()) })

	svc := service.New(service.Params{
		Config:      cfg,
		Log:         zap.NewNop(),
		Clock:       clk,
		Repo:        invoices,
		Idempotency: store.NewIdempotencyIndex(),
		Dispatcher:  dispatcher,
	})

	engine := NewEngine(EngineParams{
		ObsConfig:   observability.Config{Environment: "test"},
		HTTPMetrics: httpMetrics,
		Gatherer:    reg,
	})
	NewServer(ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		InvoiceSvc: svc,
		Deliveries: deliveries,
		Limiter:    limiter,
	})

	return &testEnv{engine: engine, deliveries: deliveries, invoices: invoices}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestCreateInvoiceThenSettleAndDeliver(t *testing.T) {
	hook := newHookReceiver(t)
	env := newTestEnv(t, clock.SystemClock{}, nil)

	w, body := env.do(t, http.MethodPost, "/invoices", map[string]any{
		"amount":        1000,
		"currency":      "BRL",
		"webhook_url":   hook.srv.URL + "/hook",
		"emit_after_ms": 50,
		"emit_status":   "paid",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, float64(1000), body["amount"])
	assert.Equal(t, "BRL", body["currency"])
	assert.Nil(t, body["metadata"])

	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "https://checkout.local/invoice/"+id, body["checkout_url"])

	require.Eventually(t, func() bool {
		_, ok := env.deliveries.Get(mustUUID(t, id))
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	w, body = env.do(t, http.MethodGet, "/invoices/"+id, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paid", body["status"])

	calls := hook.Calls()
	require.Len(t, calls, 1)
	call := calls[0]
	assert.Equal(t, webhook.Sign([]byte(testSecret), call.body), call.header.Get(webhookdomain.HeaderSignature))
	assert.Equal(t, "invoice.updated", call.header.Get(webhookdomain.HeaderEvent))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(call.body, &payload))
	assert.Equal(t, "paid", payload["status"])
	assert.Equal(t, id, payload["id"])
	assert.Equal(t, "invoice.updated", payload["event"])

	w, body = env.do(t, http.MethodGet, "/invoices/"+id+"/delivery", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "delivered", body["outcome"])
	assert.Equal(t, float64(http.StatusNoContent), body["response_status"])
}

func TestCreateInvoiceResponseIsAlwaysCreated(t *testing.T) {
	hook := newHookReceiver(t)
	env := newTestEnv(t, clock.SystemClock{}, nil)

	for i := 0; i < 20; i++ {
		w, body := env.do(t, http.MethodPost, "/invoices", map[string]any{
			"amount":        1,
			"webhook_url":   hook.srv.URL,
			"emit_after_ms": 0,
			"emit_status":   "failed",
		}, nil)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "created", body["status"])
	}
}

func TestCreateInvoiceIdempotencyKey(t *testing.T) {
	hook := newHookReceiver(t)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	env := newTestEnv(t, clk, nil)
	headers := map[string]string{HeaderIdempotencyKey: "abc"}

	w1, first := env.do(t, http.MethodPost, "/invoices", map[string]any{
		"amount": 1000, "webhook_url": hook.srv.URL, "emit_status": "paid",
	}, headers)
	require.Equal(t, http.StatusCreated, w1.Code)

	w2, second := env.do(t, http.MethodPost, "/invoices", map[string]any{
		"amount": 2000, "webhook_url": hook.srv.URL, "emit_status": "failed",
	}, headers)
	require.Equal(t, http.StatusOK, w2.Code)

	assert.Equal(t, first["id"], second["id"])
	assert.Equal(t, float64(1000), second["amount"])
	assert.Equal(t, first["checkout_url"], second["checkout_url"])
	assert.Equal(t, 1, env.invoices.Len())

	clk.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return len(hook.Calls()) == 1 }, 5*time.Second, 10*time.Millisecond)

	_, replay := env.do(t, http.MethodPost, "/invoices", map[string]any{
		"amount": 3000, "webhook_url": hook.srv.URL, "emit_status": "expired",
	}, headers)
	assert.Equal(t, "paid", replay["status"], "replay returns the current status")

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, hook.Calls(), 1)
}

func TestCreateInvoiceValidation(t *testing.T) {
	env := newTestEnv(t, clock.NewFakeClock(time.Now()), nil)

	tests := []struct {
		name  string
		body  any
		field string
		code  string
	}{
		{
			name:  "missing amount",
			body:  map[string]any{"webhook_url": "http://x.test/hook", "emit_status": "paid"},
			field: "amount",
			code:  "required",
		},
		{
			name:  "missing webhook url",
			body:  map[string]any{"amount": 1, "emit_status": "paid"},
			field: "webhook_url",
			code:  "required",
		},
		{
			name:  "relative webhook url",
			body:  map[string]any{"amount": 1, "webhook_url": "/hook", "emit_status": "paid"},
			field: "webhook_url",
			code:  "url",
		},
		{
			name:  "missing emit status",
			body:  map[string]any{"amount": 1, "webhook_url": "http://x.test/hook"},
			field: "emit_status",
			code:  "required",
		},
		{
			name:  "created is not a terminal status",
			body:  map[string]any{"amount": 1, "webhook_url": "http://x.test/hook", "emit_status": "created"},
			field: "emit_status",
			code:  "oneof",
		},
		{
			name:  "negative amount",
			body:  map[string]any{"amount": -5, "webhook_url": "http://x.test/hook", "emit_status": "paid"},
			field: "amount",
			code:  "invalid_type",
		},
		{
			name:  "malformed json",
			body:  `{"amount":`,
			field: "request",
			code:  "invalid_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := env.do(t, http.MethodPost, "/invoices", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, "validation_error", body["error"])

			errs, ok := body["errors"].([]any)
			require.True(t, ok)
			require.NotEmpty(t, errs)
			first := errs[0].(map[string]any)
			assert.Equal(t, tt.field, first["field"])
			assert.Equal(t, tt.code, first["code"])
		})
	}
	assert.Zero(t, env.invoices.Len())
}

func TestGetInvoiceNotFound(t *testing.T) {
	env := newTestEnv(t, clock.NewFakeClock(time.Now()), nil)

	for _, id := range []string{"3f1c8a52-8f0e-4d7b-9a43-2f5a0c6f9b11", "nope"} {
		w, body := env.do(t, http.MethodGet, "/invoices/"+id, nil, nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "invoice_not_found", body["error"])
		assert.Equal(t, "Invoice "+id+" not found", body["message"])
	}
}

func TestGetDeliveryBeforeAttempt(t *testing.T) {
	hook := newHookReceiver(t)
	env := newTestEnv(t, clock.NewFakeClock(time.Now()), nil)

	_, created := env.do(t, http.MethodPost, "/invoices", map[string]any{
		"amount": 1, "webhook_url": hook.srv.URL, "emit_status": "canceled",
	}, nil)
	id := created["id"].(string)

	w, body := env.do(t, http.MethodGet, "/invoices/"+id+"/delivery", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "delivery_not_found", body["error"])

	w, body = env.do(t, http.MethodGet, "/invoices/unknown/delivery", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "invoice_not_found", body["error"])
}

type stubBucket struct {
	result *ratelimit.RateLimitResult
	err    error
}

func (b stubBucket) Allow(context.Context, string, float64, int) (*ratelimit.RateLimitResult, error) {
	return b.result, b.err
}

func TestInvoiceCreateRateLimit(t *testing.T) {
	body := map[string]any{"amount": 1, "webhook_url": "http://x.test/hook", "emit_status": "paid"}

	denied := ratelimit.NewInvoiceCreateLimiterWithBucket(stubBucket{result: &ratelimit.RateLimitResult{
		Allowed: false, Limit: 10, RetryAfter: 1500 * time.Millisecond,
	}}, 5, 10)
	env := newTestEnv(t, clock.NewFakeClock(time.Now()), denied)
	w, resp := env.do(t, http.MethodPost, "/invoices", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", resp["error"])
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Zero(t, env.invoices.Len())

	broken := ratelimit.NewInvoiceCreateLimiterWithBucket(stubBucket{err: errors.New("redis down")}, 5, 10)
	env = newTestEnv(t, clock.NewFakeClock(time.Now()), broken)
	w, resp = env.do(t, http.MethodPost, "/invoices", body, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "service_unavailable", resp["error"])

	allowed := ratelimit.NewInvoiceCreateLimiterWithBucket(stubBucket{result: &ratelimit.RateLimitResult{
		Allowed: true, Limit: 10, Remaining: 9,
	}}, 5, 10)
	env = newTestEnv(t, clock.NewFakeClock(time.Now()), allowed)
	w, _ = env.do(t, http.MethodPost, "/invoices", body, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, clock.NewFakeClock(time.Now()), nil)

	w, body := env.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "acquirer_http_requests_total")
}
