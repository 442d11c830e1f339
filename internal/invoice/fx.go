package invoice

import (
	"github.com/smallbiznis/fakeacquirer/internal/invoice/service"
	"github.com/smallbiznis/fakeacquirer/internal/invoice/store"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	store.Module,
	fx.Provide(service.New),
)
