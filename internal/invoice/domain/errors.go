package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("invoice_not_found")
	ErrAlreadySettled      = errors.New("invoice_already_settled")
	ErrInvalidStatus       = errors.New("invalid_emit_status")
	ErrInvalidWebhookURL   = errors.New("invalid_webhook_url")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrIdempotencyConflict = errors.New("idempotency_conflict")
)

// NotFoundError carries the identifier exactly as the caller sent it.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Invoice %s not found", e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
