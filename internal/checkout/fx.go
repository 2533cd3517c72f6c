package checkout

import (
	"context"
	"time"

	"github.com/fieldpass/checkout/internal/checkout/repository"
	"github.com/fieldpass/checkout/internal/checkout/service"
	"github.com/fieldpass/checkout/internal/config"
	"github.com/fieldpass/checkout/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("checkout",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
	fx.Invoke(startAbandonSweep),
)

type sweepParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Svc       *service.Service
	Cfg       config.Config
	Log       *zap.Logger
	Locker    *ratelimit.Locker `optional:"true"`
}

// startAbandonSweep runs the background ticker that marks stale open
// sessions abandoned. With multiple instances, a redis lock keeps the
// sweep to one runner per tick.
func startAbandonSweep(p sweepParams) {
	interval := time.Duration(p.Cfg.Checkout.SweepIntervalMin) * time.Minute
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	log := p.Log.Named("checkout.sweep")

	runOnce := func() {
		if p.Locker != nil {
			token, ok, err := p.Locker.TryLock(ctx, "lock:checkout:abandon_sweep", interval/2)
			if err != nil {
				log.Warn("sweep lock unavailable, skipping tick", zap.Error(err))
				return
			}
			if !ok {
				return
			}
			defer func() {
				_ = p.Locker.Release(ctx, "lock:checkout:abandon_sweep", token)
			}()
		}
		if _, err := p.Svc.SweepAbandoned(ctx); err != nil {
			log.Warn("abandon sweep failed", zap.Error(err))
		}
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						runOnce()
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
