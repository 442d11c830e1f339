package store

import (
	invoicedomain "github.com/smallbiznis/fakeacquirer/internal/invoice/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.store",
	fx.Provide(
		fx.Annotate(NewInvoiceStore, fx.As(new(invoicedomain.Repository))),
		fx.Annotate(NewIdempotencyIndex, fx.As(new(invoicedomain.IdempotencyIndex))),
	),
)
