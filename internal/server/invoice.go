package server

import (
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	invoicedomain "github.com/smallbiznis/fakeacquirer/internal/invoice/domain"
	webhookdomain "github.com/smallbiznis/fakeacquirer/internal/webhook/domain"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type createInvoiceRequest struct {
	Amount      *uint64         `json:"amount" binding:"required"`
	Currency    string          `json:"currency"`
	WebhookURL  string          `json:"webhook_url" binding:"required,url"`
	EmitAfterMS *uint64         `json:"emit_after_ms"`
	EmitStatus  string          `json:"emit_status" binding:"required,oneof=paid failed canceled expired chargeback"`
	Metadata    json.RawMessage `json:"metadata"`
}

type invoiceResponse struct {
	ID          uuid.UUID                   `json:"id"`
	Status      invoicedomain.InvoiceStatus `json:"status"`
	Amount      uint64                      `json:"amount"`
	Currency    string                      `json:"currency"`
	CreatedAt   time.Time                   `json:"created_at"`
	WebhookURL  string                      `json:"webhook_url"`
	CheckoutURL string                      `json:"checkout_url"`
	Metadata    json.RawMessage             `json:"metadata"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if key != "" {
		c.Set("idempotency_key", key)
	}

	var emitAfter *time.Duration
	if req.EmitAfterMS != nil {
		d := millisToDuration(*req.EmitAfterMS)
		emitAfter = &d
	}

	res, err := s.invoiceSvc.Create(c.Request.Context(), invoicedomain.CreateInvoiceRequest{
		Amount:         req.Amount,
		Currency:       strings.TrimSpace(req.Currency),
		WebhookURL:     strings.TrimSpace(req.WebhookURL),
		EmitAfter:      emitAfter,
		EmitStatus:     req.EmitStatus,
		Metadata:       req.Metadata,
		IdempotencyKey: key,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if !res.Created {
		status = http.StatusOK
	}
	c.JSON(status, invoiceResponse{
		ID:          res.Invoice.ID,
		Status:      res.Invoice.Status,
		Amount:      res.Invoice.Amount,
		Currency:    res.Invoice.Currency,
		CreatedAt:   res.Invoice.CreatedAt,
		WebhookURL:  res.Invoice.WebhookURL,
		CheckoutURL: res.CheckoutURL,
		Metadata:    invoicedomain.NormalizeMetadata(res.Invoice.Metadata),
	})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	invoice, err := s.invoiceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invoice.Metadata = invoicedomain.NormalizeMetadata(invoice.Metadata)
	c.JSON(http.StatusOK, invoice)
}

func (s *Server) GetInvoiceDelivery(c *gin.Context) {
	id := c.Param("id")
	invoiceID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		AbortWithError(c, &invoicedomain.NotFoundError{ID: id})
		return
	}
	if _, err := s.invoiceSvc.GetByID(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	delivery, ok := s.deliveries.Get(invoiceID)
	if !ok {
		AbortWithError(c, &webhookdomain.DeliveryNotFoundError{InvoiceID: id})
		return
	}
	c.JSON(http.StatusOK, delivery)
}

func millisToDuration(ms uint64) time.Duration {
	if ms > uint64(math.MaxInt64/int64(time.Millisecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms) * time.Millisecond
}
