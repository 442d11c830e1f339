// Package domain holds the outbound webhook payload and the delivery record.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	invoicedomain "github.com/smallbiznis/fakeacquirer/internal/invoice/domain"
)

const (
	EventInvoiceUpdated = "invoice.updated"

	HeaderEvent     = "X-Event"
	HeaderSignature = "X-Signature"
)

// Payload is the signed body of an invoice.updated webhook. Field order is
// part of the signed bytes.
type Payload struct {
	Event     string                      `json:"event"`
	ID        uuid.UUID                   `json:"id"`
	Status    invoicedomain.InvoiceStatus `json:"status"`
	Amount    uint64                      `json:"amount"`
	Currency  string                      `json:"currency"`
	EmittedAt time.Time                   `json:"emitted_at"`
	Metadata  json.RawMessage             `json:"metadata"`
}

func NewPayload(invoice invoicedomain.Invoice, emittedAt time.Time) Payload {
	return Payload{
		Event:     EventInvoiceUpdated,
		ID:        invoice.ID,
		Status:    invoice.Status,
		Amount:    invoice.Amount,
		Currency:  invoice.Currency,
		EmittedAt: emittedAt,
		Metadata:  invoicedomain.NormalizeMetadata(invoice.Metadata),
	}
}

// DeliveryOutcome classifies a single delivery attempt.
type DeliveryOutcome string

const (
	// DeliveryOutcomeDelivered means the receiver answered 2xx.
	DeliveryOutcomeDelivered DeliveryOutcome = "delivered"
	// DeliveryOutcomeRejected means the receiver answered with any other status.
	DeliveryOutcomeRejected DeliveryOutcome = "rejected"
	// DeliveryOutcomeFailed means no response was received.
	DeliveryOutcomeFailed DeliveryOutcome = "failed"
)

// Delivery records the one attempt made for an invoice.
type Delivery struct {
	ID             snowflake.ID                `json:"id"`
	InvoiceID      uuid.UUID                   `json:"invoice_id"`
	URL            string                      `json:"url"`
	Event          string                      `json:"event"`
	Status         invoicedomain.InvoiceStatus `json:"status"`
	Signature      string                      `json:"signature"`
	ResponseStatus int                         `json:"response_status,omitempty"`
	Error          string                      `json:"error,omitempty"`
	AttemptedAt    time.Time                   `json:"attempted_at"`
	DurationMS     int64                       `json:"duration_ms"`
	Outcome        DeliveryOutcome             `json:"outcome"`
}

func OutcomeForStatus(code int) DeliveryOutcome {
	if code >= 200 && code < 300 {
		return DeliveryOutcomeDelivered
	}
	return DeliveryOutcomeRejected
}
