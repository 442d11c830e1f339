package domain

import (
	"errors"
	"fmt"
)

var ErrDeliveryNotFound = errors.New("delivery_not_found")

// DeliveryNotFoundError is returned before an invoice's webhook has been attempted.
type DeliveryNotFoundError struct {
	InvoiceID string
}

func (e *DeliveryNotFoundError) Error() string {
	return fmt.Sprintf("Delivery for invoice %s not found", e.InvoiceID)
}

func (e *DeliveryNotFoundError) Unwrap() error {
	return ErrDeliveryNotFound
}
