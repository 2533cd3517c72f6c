package payment

import (
	"github.com/fieldpass/checkout/internal/config"
	"github.com/fieldpass/checkout/internal/payment/adapters/stripe"
	"github.com/fieldpass/checkout/internal/payment/domain"
	"github.com/fieldpass/checkout/internal/payment/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment",
	fx.Provide(
		repository.Provide,
		provideAdapter,
		func(a *stripe.Adapter) domain.Processor { return a },
		func(a *stripe.Adapter) domain.WebhookParser { return a },
	),
)

func provideAdapter(cfg config.Config, log *zap.Logger) (*stripe.Adapter, error) {
	return stripe.New(cfg.Processor, log)
}
