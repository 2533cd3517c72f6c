package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/fieldpass/checkout/internal/checkout/domain"
	"github.com/fieldpass/checkout/internal/clock"
	obsmetrics "github.com/fieldpass/checkout/internal/observability/metrics"
	orderdomain "github.com/fieldpass/checkout/internal/order/domain"
	paymentdomain "github.com/fieldpass/checkout/internal/payment/domain"
	"github.com/fieldpass/checkout/internal/notify"
	"github.com/fieldpass/checkout/internal/pricing"
	referraldomain "github.com/fieldpass/checkout/internal/referral/domain"
	"github.com/fieldpass/checkout/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TriggerWebhook = "webhook"
	TriggerClient  = "client"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	CheckoutRepo checkoutdomain.Repository
	OrderRepo    orderdomain.Repository
	PaymentRepo  paymentdomain.Repository
	Referral     referraldomain.Service
	Processor    paymentdomain.Processor
	Parser       paymentdomain.WebhookParser
	Notifier     notify.Dispatcher
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	checkoutRepo checkoutdomain.Repository
	orderRepo    orderdomain.Repository
	paymentRepo  paymentdomain.Repository
	referral     referraldomain.Service
	processor    paymentdomain.Processor
	parser       paymentdomain.WebhookParser
	notifier     notify.Dispatcher
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("settlement.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		checkoutRepo: p.CheckoutRepo,
		orderRepo:    p.OrderRepo,
		paymentRepo:  p.PaymentRepo,
		referral:     p.Referral,
		processor:    p.Processor,
		parser:       p.Parser,
		notifier:     p.Notifier,
		obsMetrics:   p.ObsMetrics,
	}
}

// Outcome reports what one settlement attempt observed. Created is
// false when another attempt won the insert race and this call
// returned the winner's order.
type Outcome struct {
	Order        *orderdomain.Order
	Created      bool
	ReferralCode string
}

// Settle converts a confirmed payment into exactly one order for the
// session. It is safe to call any number of times, sequentially or
// concurrently, from any process: the unique key on
// orders.checkout_session_id is the only serialization point.
func (s *Service) Settle(ctx context.Context, sessionID snowflake.ID, paymentIntentID string, trigger string) (*Outcome, error) {
	outcome, err := s.settle(ctx, sessionID, paymentIntentID)
	s.recordAttempt(ctx, trigger, err, outcome)
	return outcome, err
}

func (s *Service) settle(ctx context.Context, sessionID snowflake.ID, paymentIntentID string) (*Outcome, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)

	session, err := s.checkoutRepo.FindByID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, checkoutdomain.ErrSessionNotFound
	}

	// Attach the intent on first observation; refuse a different one.
	switch session.PaymentIntentID {
	case paymentIntentID:
	case "":
		ok, err := s.checkoutRepo.AttachIntent(ctx, s.db, session.ID, paymentIntentID, s.clock.Now())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, checkoutdomain.ErrIntentMismatch
		}
		session.PaymentIntentID = paymentIntentID
	default:
		return nil, checkoutdomain.ErrIntentMismatch
	}

	// The fast path for retries: the session already settled.
	if existing, err := s.orderRepo.FindByCheckoutSession(ctx, s.db, session.ID); err != nil {
		return nil, err
	} else if existing != nil {
		return s.existingOutcome(ctx, session, existing), nil
	}

	confirmation, err := s.processor.ConfirmPayment(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if confirmation.Status != paymentdomain.IntentStatusSucceeded {
		return nil, domain.ErrPaymentNotConfirmed
	}

	// Never trust a client-supplied total: recompute from the persisted
	// snapshot and require an exact match with what was captured.
	state, err := session.Snapshot()
	if err != nil {
		return nil, err
	}
	roster, err := session.Roster()
	if err != nil {
		return nil, err
	}
	result := pricing.Compute(state, len(roster))
	expectedCents := pricing.Cents(result.FinalTotal)
	if expectedCents != confirmation.CapturedAmountCents {
		s.log.Error("captured amount disagrees with recomputed total",
			zap.Int64("session_id", session.ID.Int64()),
			zap.Int64("expected_cents", expectedCents),
			zap.Int64("captured_cents", confirmation.CapturedAmountCents),
		)
		return nil, domain.ErrAmountMismatch
	}

	billing, err := session.Billing()
	if err != nil {
		return nil, err
	}

	pricingJSON, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	orderID := s.genID.Generate()
	order := &orderdomain.Order{
		ID:                  orderID,
		CheckoutSessionID:   session.ID,
		OrderNumber:         orderdomain.NumberFor(orderID),
		PaymentIntentID:     paymentIntentID,
		Currency:            session.Currency,
		BaseAmountCents:     pricing.Cents(result.NewSubtotal),
		DiscountAmountCents: pricing.Cents(result.TotalDiscounts),
		FeeAmountCents:      pricing.Cents(result.Fee),
		TotalAmountCents:    expectedCents,
		Pricing:             datatypes.JSON(pricingJSON),
		BillingEmail:        strings.ToLower(strings.TrimSpace(billing.Email)),
		ReferralCodeUsed:    state.ReferralCode,
		CreatedAt:           s.clock.Now(),
	}

	inserted, err := s.orderRepo.Insert(ctx, s.db, order)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// The other trigger won the race; its row is the order.
		winner, err := s.orderRepo.FindByCheckoutSession(ctx, s.db, session.ID)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return nil, checkoutdomain.ErrSessionNotFound
		}
		return s.existingOutcome(ctx, session, winner), nil
	}

	if err := s.checkoutRepo.MarkCompleted(ctx, s.db, session.ID, s.clock.Now()); err != nil {
		// The order exists; completion marking is retried by the next
		// settlement attempt.
		s.log.Warn("failed to mark session completed", zap.Error(err))
	}

	referralCode := s.applyReferralEffects(ctx, session, order, state)

	s.notifier.Notify(ctx, order.BillingEmail,
		"Registration confirmed",
		"Your order "+order.OrderNumber+" is confirmed.",
		map[string]string{
			"order_number":  order.OrderNumber,
			"referral_code": referralCode,
		},
	)

	s.log.Info("order created",
		zap.Int64("order_id", order.ID.Int64()),
		zap.Int64("session_id", session.ID.Int64()),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total_cents", order.TotalAmountCents),
	)

	return &Outcome{Order: order, Created: true, ReferralCode: referralCode}, nil
}

// existingOutcome answers a retry or a racing loser with the winner's
// order. The winner records its issued code on the order row only
// after the insert, so a reader arriving in that window consults the
// issuance ledger, keyed by source order, instead of reporting no
// code. Issuance is idempotent, so this also heals an attempt that
// crashed before issuing.
func (s *Service) existingOutcome(ctx context.Context, session *checkoutdomain.CheckoutSession, order *orderdomain.Order) *Outcome {
	code := order.ReferralCodeGenerated
	if code == "" {
		if billing, err := session.Billing(); err == nil {
			if issued, err := s.referral.Issue(ctx, order.ID, billing.Email); err == nil && issued != nil {
				code = issued.Code
				order.ReferralCodeGenerated = code
				if err := s.orderRepo.SetReferralCodeGenerated(ctx, s.db, order.ID, code); err != nil {
					s.log.Warn("failed to record generated referral code", zap.Error(err))
				}
			}
		}
	}
	return &Outcome{Order: order, Created: false, ReferralCode: code}
}

// applyReferralEffects runs issuance and redemption after first
// creation. Both are idempotent on their own keys, so a crashed
// attempt is healed by any retry; failures never roll back the order.
func (s *Service) applyReferralEffects(ctx context.Context, session *checkoutdomain.CheckoutSession, order *orderdomain.Order, state pricing.DiscountState) string {
	billing, err := session.Billing()
	if err != nil {
		s.log.Warn("cannot decode billing info for referral issuance", zap.Error(err))
		return ""
	}

	var referralCode string
	issued, err := s.referral.Issue(ctx, order.ID, billing.Email)
	if err != nil {
		s.log.Warn("referral issuance failed", zap.Int64("order_id", order.ID.Int64()), zap.Error(err))
	} else if issued != nil {
		referralCode = issued.Code
		order.ReferralCodeGenerated = issued.Code
		if err := s.orderRepo.SetReferralCodeGenerated(ctx, s.db, order.ID, issued.Code); err != nil {
			s.log.Warn("failed to record generated referral code", zap.Error(err))
		}
	}

	if state.ReferralCode != "" {
		if err := s.referral.Redeem(ctx, state.ReferralCode, order.ID, session.ID, billing.Email); err != nil {
			s.log.Warn("referral redemption failed",
				zap.String("code", state.ReferralCode),
				zap.Int64("order_id", order.ID.Int64()),
				zap.Error(err),
			)
		}
	}

	return referralCode
}

func (s *Service) recordAttempt(ctx context.Context, trigger string, err error, outcome *Outcome) {
	if s.obsMetrics == nil {
		return
	}
	label := "error"
	switch {
	case err == nil && outcome != nil && outcome.Created:
		label = "created"
	case err == nil:
		label = "existing"
	}
	s.obsMetrics.RecordSettlementAttempt(ctx, trigger, label)
}
