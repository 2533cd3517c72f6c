package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Dispatcher delivers buyer-facing notifications. Delivery is
// fire-and-forget: failures are logged, never propagated to the
// caller.
type Dispatcher interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

type logDispatcher struct {
	log *zap.Logger
}

// NewLogDispatcher returns a Dispatcher that records notifications in
// the service log. Real transports plug in behind the same interface.
func NewLogDispatcher(log *zap.Logger) Dispatcher {
	return &logDispatcher{log: log.Named("notify")}
}

func (d *logDispatcher) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	_ = ctx
	d.log.Info("notification dispatched",
		zap.String("user_id", userID),
		zap.String("title", title),
		zap.String("body", body),
		zap.Any("data", data),
	)
}

var Module = fx.Module("notify",
	fx.Provide(NewLogDispatcher),
)
