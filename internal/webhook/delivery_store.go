package webhook

import (
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	webhookdomain "github.com/smallbiznis/fakeacquirer/internal/webhook/domain"
)

// DeliveryStore keeps the single delivery attempt made per invoice.
type DeliveryStore struct {
	deliveries *xsync.MapOf[uuid.UUID, webhookdomain.Delivery]
}

func NewDeliveryStore() *DeliveryStore {
	return &DeliveryStore{deliveries: xsync.NewMapOf[uuid.UUID, webhookdomain.Delivery]()}
}

func (s *DeliveryStore) Record(delivery webhookdomain.Delivery) {
	s.deliveries.Store(delivery.InvoiceID, delivery)
}

func (s *DeliveryStore) Get(invoiceID uuid.UUID) (webhookdomain.Delivery, bool) {
	return s.deliveries.Load(invoiceID)
}
