package webhook

import (
	"github.com/smallbiznis/fakeacquirer/internal/config"
	invoicedomain "github.com/smallbiznis/fakeacquirer/internal/invoice/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook",
	fx.Provide(
		NewDeliveryStore,
		func(cfg config.Config) *Signer { return NewSigner(cfg.WebhookSecret) },
		NewDispatcher,
		func(d *Dispatcher) invoicedomain.Dispatcher { return d },
	),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{OnStop: d.Stop})
}
