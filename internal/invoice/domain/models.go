// Package domain contains the invoice model and its lifecycle rules.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusCreated    InvoiceStatus = "created"
	InvoiceStatusPaid       InvoiceStatus = "paid"
	InvoiceStatusFailed     InvoiceStatus = "failed"
	InvoiceStatusCanceled   InvoiceStatus = "canceled"
	InvoiceStatusExpired    InvoiceStatus = "expired"
	InvoiceStatusChargeback InvoiceStatus = "chargeback"
)

// TerminalStatuses lists the statuses an invoice may settle into.
var TerminalStatuses = []InvoiceStatus{
	InvoiceStatusPaid,
	InvoiceStatusFailed,
	InvoiceStatusCanceled,
	InvoiceStatusExpired,
	InvoiceStatusChargeback,
}

func (s InvoiceStatus) IsTerminal() bool {
	switch s {
	case InvoiceStatusPaid,
		InvoiceStatusFailed,
		InvoiceStatusCanceled,
		InvoiceStatusExpired,
		InvoiceStatusChargeback:
		return true
	default:
		return false
	}
}

// ParseTerminalStatus accepts the emit_status values of a create request.
func ParseTerminalStatus(raw string) (InvoiceStatus, error) {
	status := InvoiceStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.IsTerminal() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

// Invoice is a simulated payment request. Only Status ever changes after
// creation, and only once.
type Invoice struct {
	ID         uuid.UUID       `json:"id"`
	Amount     uint64          `json:"amount"`
	Currency   string          `json:"currency"`
	Status     InvoiceStatus   `json:"status"`
	WebhookURL string          `json:"webhook_url"`
	CreatedAt  time.Time       `json:"created_at"`
	Metadata   json.RawMessage `json:"metadata"`
}

// Transition moves a created invoice to a terminal status.
func (i *Invoice) Transition(to InvoiceStatus) error {
	if !to.IsTerminal() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if i.Status != InvoiceStatusCreated {
		return fmt.Errorf("%w: invoice %s is %s", ErrAlreadySettled, i.ID, i.Status)
	}
	i.Status = to
	return nil
}

// Clone returns a copy that shares no memory with the receiver.
func (i Invoice) Clone() Invoice {
	if i.Metadata != nil {
		i.Metadata = append(json.RawMessage(nil), i.Metadata...)
	}
	return i
}

// NullMetadata is echoed back when a request carries no metadata.
var NullMetadata = json.RawMessage("null")

// NormalizeMetadata keeps caller metadata verbatim and maps absence to null.
func NormalizeMetadata(raw json.RawMessage) json.RawMessage {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return append(json.RawMessage(nil), NullMetadata...)
	}
	return append(json.RawMessage(nil), raw...)
}
