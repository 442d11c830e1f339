package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type CreateInvoiceRequest struct {
	Amount         *uint64
	Currency       string
	WebhookURL     string
	EmitAfter      *time.Duration
	EmitStatus     string
	Metadata       json.RawMessage
	IdempotencyKey string
}

type CreateInvoiceResult struct {
	Invoice     Invoice
	CheckoutURL string
	// Created is false when an idempotency key replayed an earlier invoice.
	Created bool
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (CreateInvoiceResult, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	CheckoutURL(id uuid.UUID) string
}

// Repository is the in-memory invoice store shared by handlers and dispatchers.
type Repository interface {
	Put(invoice Invoice)
	Get(id uuid.UUID) (Invoice, bool)
	// Update applies fn to the stored invoice atomically. A non-nil error from fn
	// leaves the record unchanged.
	Update(id uuid.UUID, fn func(*Invoice) error) (Invoice, error)
}

// IdempotencyIndex maps caller keys to the invoice created under them.
type IdempotencyIndex interface {
	// GetOrClaim returns the id already bound to key, or binds id to key and
	// reports claimed=true. commit runs before the binding becomes visible.
	GetOrClaim(key string, id uuid.UUID, commit func()) (existing uuid.UUID, claimed bool)
}

// DispatchTask describes the deferred settlement of one invoice.
type DispatchTask struct {
	InvoiceID  uuid.UUID
	Delay      time.Duration
	Status     InvoiceStatus
	WebhookURL string
}

// Dispatcher schedules settlement tasks without waiting for them.
type Dispatcher interface {
	Schedule(task DispatchTask)
}
