package referral

import (
	"github.com/fieldpass/checkout/internal/referral/repository"
	"github.com/fieldpass/checkout/internal/referral/service"
	"go.uber.org/fx"
)

var Module = fx.Module("referral",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
