package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/smallbiznis/fakeacquirer/internal/clock"
	"github.com/smallbiznis/fakeacquirer/internal/config"
	invoicedomain "github.com/smallbiznis/fakeacquirer/internal/invoice/domain"
	"github.com/smallbiznis/fakeacquirer/internal/observability/logger"
	"github.com/smallbiznis/fakeacquirer/internal/observability/metrics"
	"github.com/smallbiznis/fakeacquirer/internal/observability/tracing"
	webhookdomain "github.com/smallbiznis/fakeacquirer/internal/webhook/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const outcomeInvoiceMissing = "invoice_missing"

// maxResponseDrain bounds how much of a receiver's response body is read.
const maxResponseDrain = 64 << 10

type Params struct {
	fx.In

	Invoices   invoicedomain.Repository
	Deliveries *DeliveryStore
	Signer     *Signer
	Settings   *config.DispatchConfigHolder
	Clock      clock.Clock
	Node       *snowflake.Node
	Log        *zap.Logger

	Metrics    *metrics.DispatchMetrics `optional:"true"`
	Business   *metrics.Metrics         `optional:"true"`
	HTTPClient *http.Client             `optional:"true"`
}

// Dispatcher settles invoices after their delay and sends one signed
// invoice.updated webhook per invoice.
type Dispatcher struct {
	invoices   invoicedomain.Repository
	deliveries *DeliveryStore
	signer     *Signer
	settings   *config.DispatchConfigHolder
	clock      clock.Clock
	node       *snowflake.Node
	log        *zap.Logger
	metrics    *metrics.DispatchMetrics
	business   *metrics.Metrics
	client     *http.Client
	tracer     trace.Tracer

	timers *xsync.MapOf[uuid.UUID, clock.Timer]
}

func NewDispatcher(p Params) *Dispatcher {
	client := p.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		invoices:   p.Invoices,
		deliveries: p.Deliveries,
		signer:     p.Signer,
		settings:   p.Settings,
		clock:      p.Clock,
		node:       p.Node,
		log:        log.Named("webhook.dispatcher"),
		metrics:    p.Metrics,
		business:   p.Business,
		client:     client,
		tracer:     otel.Tracer("fakeacquirer/webhook"),
		timers:     xsync.NewMapOf[uuid.UUID, clock.Timer](),
	}
}

// Schedule registers the task with the clock and returns immediately.
func (d *Dispatcher) Schedule(task invoicedomain.DispatchTask) {
	d.metrics.TaskScheduled()
	var fired atomic.Bool
	timer := d.clock.AfterFunc(task.Delay, func() {
		fired.Store(true)
		d.timers.Delete(task.InvoiceID)
		d.metrics.TaskFired()
		d.run(task)
	})
	d.timers.Store(task.InvoiceID, timer)
	// A zero delay may fire before the timer is tracked.
	if fired.Load() {
		d.timers.Delete(task.InvoiceID)
	}
}

// Stop cancels tasks whose delay has not elapsed. Tasks already running finish.
func (d *Dispatcher) Stop(context.Context) error {
	stopped := 0
	d.timers.Range(func(id uuid.UUID, timer clock.Timer) bool {
		if timer.Stop() {
			stopped++
			d.metrics.TaskFired()
		}
		d.timers.Delete(id)
		return true
	})
	if stopped > 0 {
		d.log.Warn("dropped pending webhook tasks on shutdown", zap.Int("count", stopped))
	}
	return nil
}

func (d *Dispatcher) run(task invoicedomain.DispatchTask) {
	ctx, span := d.tracer.Start(context.Background(), "webhook.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("invoice.id", task.InvoiceID.String()),
			attribute.String("invoice.status", string(task.Status)),
		),
	)
	defer span.End()

	log := logger.WithInvoice(logger.WithContext(ctx, d.log), task.InvoiceID.String())

	invoice, err := d.invoices.Update(task.InvoiceID, func(inv *invoicedomain.Invoice) error {
		return inv.Transition(task.Status)
	})
	if err != nil {
		if errors.Is(err, invoicedomain.ErrNotFound) {
			log.Error("invoice not found when emitting webhook")
			d.metrics.ObserveDelivery(outcomeInvoiceMissing, 0)
		} else {
			log.Error("invoice transition failed", zap.Error(err))
		}
		span.SetStatus(codes.Error, "transition failed")
		return
	}
	d.business.RecordInvoiceTransition(ctx, string(invoice.Status))

	body, err := json.Marshal(webhookdomain.NewPayload(invoice, d.clock.Now()))
	if err != nil {
		log.Error("failed to encode webhook payload", zap.Error(err))
		span.SetStatus(codes.Error, "encode failed")
		return
	}

	delivery := d.deliver(ctx, task.WebhookURL, body)
	delivery.InvoiceID = invoice.ID
	delivery.Status = invoice.Status
	d.deliveries.Record(delivery)
	d.metrics.ObserveDelivery(string(delivery.Outcome), time.Duration(delivery.DurationMS)*time.Millisecond)

	span.SetAttributes(attribute.String("webhook.outcome", string(delivery.Outcome)))
	fields := []zap.Field{
		zap.String("url", delivery.URL),
		zap.String("status", string(delivery.Status)),
		zap.String("delivery_id", delivery.ID.String()),
		zap.Int64("duration_ms", delivery.DurationMS),
	}
	switch delivery.Outcome {
	case webhookdomain.DeliveryOutcomeDelivered:
		log.Info("webhook delivered", append(fields, zap.Int("response_status", delivery.ResponseStatus))...)
	case webhookdomain.DeliveryOutcomeRejected:
		span.SetStatus(codes.Error, "receiver rejected webhook")
		log.Warn("webhook delivery failed", append(fields, zap.Int("response_status", delivery.ResponseStatus))...)
	default:
		span.SetStatus(codes.Error, "webhook transport error")
		log.Warn("webhook delivery failed", append(fields, zap.String("error", delivery.Error))...)
	}
}

// deliver makes the single POST attempt. Errors are captured in the returned
// Delivery, never retried.
func (d *Dispatcher) deliver(ctx context.Context, url string, body []byte) webhookdomain.Delivery {
	signature := d.signer.Sign(body)
	delivery := webhookdomain.Delivery{
		ID:          d.node.Generate(),
		URL:         url,
		Event:       webhookdomain.EventInvoiceUpdated,
		Signature:   signature,
		AttemptedAt: d.clock.Now(),
	}

	settings := d.settings.Get()
	if settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		delivery.Outcome = webhookdomain.DeliveryOutcomeFailed
		delivery.Error = err.Error()
		return delivery
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhookdomain.HeaderEvent, webhookdomain.EventInvoiceUpdated)
	req.Header.Set(webhookdomain.HeaderSignature, signature)
	if settings.UserAgent != "" {
		req.Header.Set("User-Agent", settings.UserAgent)
	}
	tracing.InjectHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := d.client.Do(req)
	delivery.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		delivery.Outcome = webhookdomain.DeliveryOutcomeFailed
		delivery.Error = tracing.SafeError(err).Error()
		return delivery
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseDrain))

	delivery.ResponseStatus = resp.StatusCode
	delivery.Outcome = webhookdomain.OutcomeForStatus(resp.StatusCode)
	return delivery
}
