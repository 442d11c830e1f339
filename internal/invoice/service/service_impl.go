package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/fakeacquirer/internal/clock"
	"github.com/smallbiznis/fakeacquirer/internal/config"
	"github.com/smallbiznis/fakeacquirer/internal/invoice/domain"
	"github.com/smallbiznis/fakeacquirer/internal/observability/logger"
	"github.com/smallbiznis/fakeacquirer/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config      config.Config
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        domain.Repository
	Idempotency domain.IdempotencyIndex
	Dispatcher  domain.Dispatcher
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	cfg         config.Config
	log         *zap.Logger
	clock       clock.Clock
	repo        domain.Repository
	idempotency domain.IdempotencyIndex
	dispatcher  domain.Dispatcher
	metrics     *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		cfg:         p.Config,
		log:         p.Log.Named("invoice.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		idempotency: p.Idempotency,
		dispatcher:  p.Dispatcher,
		metrics:     p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (domain.CreateInvoiceResult, error) {
	if req.Amount == nil {
		return domain.CreateInvoiceResult{}, domain.ErrInvalidAmount
	}
	webhookURL, err := normalizeWebhookURL(req.WebhookURL)
	if err != nil {
		return domain.CreateInvoiceResult{}, err
	}
	status, err := domain.ParseTerminalStatus(req.EmitStatus)
	if err != nil {
		return domain.CreateInvoiceResult{}, err
	}

	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	delay := s.cfg.DefaultEmitAfter
	if req.EmitAfter != nil {
		delay = *req.EmitAfter
	}

	invoice := domain.Invoice{
		ID:         uuid.New(),
		Amount:     *req.Amount,
		Currency:   currency,
		Status:     domain.InvoiceStatusCreated,
		WebhookURL: webhookURL,
		CreatedAt:  s.clock.Now(),
		Metadata:   domain.NormalizeMetadata(req.Metadata),
	}

	log := logger.WithContext(ctx, s.log)

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		s.repo.Put(invoice)
	} else {
		existingID, claimed := s.idempotency.GetOrClaim(key, invoice.ID, func() {
			s.repo.Put(invoice)
		})
		if !claimed {
			existing, ok := s.repo.Get(existingID)
			if !ok {
				log.Error("idempotency key bound to missing invoice", zap.String("invoice_id", existingID.String()))
				return domain.CreateInvoiceResult{}, fmt.Errorf("%w: %s", domain.ErrIdempotencyConflict, existingID)
			}
			s.metrics.RecordIdempotentReplay(ctx)
			log.Info("idempotent replay", zap.String("invoice_id", existing.ID.String()))
			return domain.CreateInvoiceResult{
				Invoice:     existing,
				CheckoutURL: s.CheckoutURL(existing.ID),
				Created:     false,
			}, nil
		}
	}

	s.dispatcher.Schedule(domain.DispatchTask{
		InvoiceID:  invoice.ID,
		Delay:      delay,
		Status:     status,
		WebhookURL: webhookURL,
	})
	s.metrics.RecordInvoiceCreated(ctx, string(status))

	log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.Uint64("amount", invoice.Amount),
		zap.String("currency", invoice.Currency),
		zap.String("emit_status", string(status)),
		zap.Duration("emit_after", delay),
	)

	return domain.CreateInvoiceResult{
		Invoice:     invoice.Clone(),
		CheckoutURL: s.CheckoutURL(invoice.ID),
		Created:     true,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Invoice, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return domain.Invoice{}, &domain.NotFoundError{ID: id}
	}
	invoice, ok := s.repo.Get(parsed)
	if !ok {
		return domain.Invoice{}, &domain.NotFoundError{ID: id}
	}
	return invoice, nil
}

func (s *Service) CheckoutURL(id uuid.UUID) string {
	return s.cfg.CheckoutBaseURL + "/" + id.String()
}

func normalizeWebhookURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.ErrInvalidWebhookURL
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", domain.ErrInvalidWebhookURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", domain.ErrInvalidWebhookURL
	}
	return raw, nil
}
