package service

import (
	"context"
	"errors"
	"net/http"

	paymentdomain "github.com/fieldpass/checkout/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// HandleWebhook is the processor-driven settlement trigger. Deliveries
// arrive at-least-once and possibly out of order; every accepted event
// is recorded for audit, and settlement itself stays idempotent so a
// duplicate delivery can never double-create.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, headers http.Header) (*Outcome, error) {
	if err := s.parser.Verify(ctx, payload, headers); err != nil {
		return nil, err
	}

	event, err := s.parser.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil, nil
		}
		return nil, err
	}

	firstDelivery, err := s.paymentRepo.InsertEvent(ctx, s.db, &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !firstDelivery {
		s.log.Debug("duplicate webhook delivery",
			zap.String("provider", event.Provider),
			zap.String("event_id", event.ProviderEventID),
		)
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, event.Provider, event.Type)
	}

	if event.Type != paymentdomain.EventTypePaymentSucceeded {
		s.log.Info("payment not successful, session left for retry",
			zap.String("event_type", event.Type),
			zap.Int64("session_id", event.CheckoutSessionID.Int64()),
		)
		return nil, nil
	}

	return s.Settle(ctx, event.CheckoutSessionID, event.PaymentIntentID, TriggerWebhook)
}
