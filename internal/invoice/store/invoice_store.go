package store

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	invoicedomain "github.com/smallbiznis/fakeacquirer/internal/invoice/domain"
)

// InvoiceStore keeps every invoice for the lifetime of the process.
type InvoiceStore struct {
	invoices *xsync.MapOf[uuid.UUID, invoicedomain.Invoice]
}

func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{
		invoices: xsync.NewMapOf[uuid.UUID, invoicedomain.Invoice](),
	}
}

func (s *InvoiceStore) Put(invoice invoicedomain.Invoice) {
	s.invoices.Store(invoice.ID, invoice.Clone())
}

func (s *InvoiceStore) Get(id uuid.UUID) (invoicedomain.Invoice, bool) {
	invoice, ok := s.invoices.Load(id)
	if !ok {
		return invoicedomain.Invoice{}, false
	}
	return invoice.Clone(), true
}

func (s *InvoiceStore) Update(id uuid.UUID, fn func(*invoicedomain.Invoice) error) (invoicedomain.Invoice, error) {
	var fnErr error
	updated, ok := s.invoices.Compute(id, func(current invoicedomain.Invoice, loaded bool) (invoicedomain.Invoice, bool) {
		if !loaded {
			return current, true
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			fnErr = err
			return current, false
		}
		return next, false
	})
	if !ok {
		return invoicedomain.Invoice{}, fmt.Errorf("update invoice %s: %w", id, invoicedomain.ErrNotFound)
	}
	if fnErr != nil {
		return updated.Clone(), fnErr
	}
	return updated.Clone(), nil
}

func (s *InvoiceStore) Len() int {
	return s.invoices.Size()
}
