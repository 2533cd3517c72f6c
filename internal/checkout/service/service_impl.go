package service

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fieldpass/checkout/internal/camppack"
	"github.com/fieldpass/checkout/internal/checkout/domain"
	"github.com/fieldpass/checkout/internal/clock"
	"github.com/fieldpass/checkout/internal/config"
	obsmetrics "github.com/fieldpass/checkout/internal/observability/metrics"
	paymentdomain "github.com/fieldpass/checkout/internal/payment/domain"
	"github.com/fieldpass/checkout/internal/pricing"
	referraldomain "github.com/fieldpass/checkout/internal/referral/domain"
	referralservice "github.com/fieldpass/checkout/internal/referral/service"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       domain.Repository
	Referral   referraldomain.Service
	Processor  paymentdomain.Processor
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.Config
	repo       domain.Repository
	referral   referraldomain.Service
	processor  paymentdomain.Processor
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("checkout.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Cfg,
		repo:       p.Repo,
		referral:   p.Referral,
		processor:  p.Processor,
		obsMetrics: p.ObsMetrics,
	}
}

// SaveRequest is the strict payload for draft saves. Unknown fields
// are rejected at the boundary rather than coerced.
type SaveRequest struct {
	DiscountState pricing.DiscountState `json:"discount_state"`
	BillingInfo   domain.BillingInfo    `json:"billing_info"`
	Campers       []domain.Camper       `json:"campers"`
}

// Begin opens a new checkout session.
func (s *Service) Begin(ctx context.Context) (*domain.CheckoutSession, error) {
	now := s.clock.Now()
	session := &domain.CheckoutSession{
		ID:            s.genID.Generate(),
		Status:        domain.StatusOpen,
		Currency:      s.cfg.Checkout.Currency,
		DiscountState: datatypes.JSON(`{}`),
		BillingInfo:   datatypes.JSON(`{}`),
		Campers:       datatypes.JSON(`[]`),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Get loads a session by id.
func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.CheckoutSession, error) {
	session, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// SaveDraft overwrites the session's snapshot with the client's
// current working state. Last write wins; only open sessions accept
// saves.
func (s *Service) SaveDraft(ctx context.Context, id snowflake.ID, raw []byte) (*domain.CheckoutSession, error) {
	request, err := decodeSaveRequest(raw)
	if err != nil {
		return nil, err
	}
	if !pricing.ValidUpgrade(request.DiscountState.UpgradeSelected) && request.DiscountState.UpgradeSelected != "" {
		return nil, camppack.ErrUnknownUpgrade
	}
	if request.DiscountState.UpgradeSelected == "" {
		request.DiscountState.UpgradeSelected = pricing.UpgradeNone
	}
	if !pricing.ValidTeamDiscountPct(request.DiscountState.TeamDiscountPct) {
		return nil, domain.ErrInvalidTeamDiscount
	}
	request.DiscountState.ReferralCode = referralservice.NormalizeCode(request.DiscountState.ReferralCode)
	if request.DiscountState.ReferralCode == "" {
		// The referral discount is granted by a redeemed code, never
		// claimed by the client directly.
		request.DiscountState.ReferralDiscount = decimal.Zero
	}

	discountState, err := json.Marshal(request.DiscountState)
	if err != nil {
		return nil, domain.ErrInvalidSnapshot
	}
	billingInfo, err := json.Marshal(request.BillingInfo)
	if err != nil {
		return nil, domain.ErrInvalidSnapshot
	}
	campers, err := json.Marshal(request.Campers)
	if err != nil {
		return nil, domain.ErrInvalidSnapshot
	}

	ok, err := s.repo.SaveDraft(ctx, s.db, id, discountState, billingInfo, campers, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		existing, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, domain.ErrSessionNotFound
		}
		return nil, domain.ErrSessionNotEditable
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordCheckoutSave(ctx, domain.StatusOpen)
	}
	return s.Get(ctx, id)
}

// Quote recomputes the full pricing breakdown from the persisted
// snapshot. The client runs the same fixed-step computation; this is
// how both sides agree bit-for-bit before payment.
func (s *Service) Quote(ctx context.Context, id snowflake.ID) (*pricing.Result, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.quoteSession(ctx, session)
}

func (s *Service) quoteSession(ctx context.Context, session *domain.CheckoutSession) (*pricing.Result, error) {
	state, err := session.Snapshot()
	if err != nil {
		return nil, err
	}
	roster, err := session.Roster()
	if err != nil {
		return nil, err
	}

	result := pricing.Compute(state, len(roster))
	if result.Clamped {
		s.log.Error("discounts exceeded subtotal, total clamped to zero",
			zap.Int64("session_id", session.ID.Int64()),
			zap.String("deficit", result.Deficit.String()),
		)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordPricingClamped(ctx)
		}
	}
	return &result, nil
}

// Submit validates the snapshot, authorizes payment for the computed
// total, and moves the session to payment_authorized. Validation
// failures block before any payment authorization is attempted.
func (s *Service) Submit(ctx context.Context, id snowflake.ID) (*domain.CheckoutSession, *pricing.Result, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if session.Status != domain.StatusOpen {
		return nil, nil, domain.ErrSessionNotOpen
	}

	state, err := session.Snapshot()
	if err != nil {
		return nil, nil, err
	}
	billing, err := session.Billing()
	if err != nil {
		return nil, nil, err
	}
	if referralservice.NormalizeEmail(billing.Email) == "" {
		return nil, nil, domain.ErrMissingBillingEmail
	}
	if err := camppack.ValidateState(state); err != nil {
		return nil, nil, err
	}
	if !pricing.ValidTeamDiscountPct(state.TeamDiscountPct) {
		return nil, nil, domain.ErrInvalidTeamDiscount
	}
	if state.ReferralCode == "" && !state.ReferralDiscount.IsZero() {
		// Nothing was redeemed, so nothing is owed. Snapshots only
		// reach this state through writes that bypass SaveDraft.
		state.ReferralDiscount = decimal.Zero
		if err := s.persistState(ctx, session, state); err != nil {
			return nil, nil, err
		}
	}
	if state.ReferralCode != "" {
		code, err := s.referral.Validate(ctx, state.ReferralCode)
		if err != nil {
			return nil, nil, err
		}
		if referralservice.NormalizeEmail(code.OwnerEmail) == referralservice.NormalizeEmail(billing.Email) {
			return nil, nil, referraldomain.ErrSelfReferral
		}
		// The server, not the client, decides what the code is worth.
		state.ReferralDiscount = pricing.FromCents(code.DiscountCents)
		if err := s.persistState(ctx, session, state); err != nil {
			return nil, nil, err
		}
	}

	result, err := s.quoteSession(ctx, session)
	if err != nil {
		return nil, nil, err
	}

	intent, err := s.processor.CreateIntent(ctx, pricing.Cents(result.FinalTotal), session.Currency, map[string]string{
		"checkout_session_id": strconv.FormatInt(session.ID.Int64(), 10),
	})
	if err != nil {
		return nil, nil, err
	}

	ok, err := s.repo.AttachIntent(ctx, s.db, session.ID, intent.ID, s.clock.Now())
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, domain.ErrIntentMismatch
	}

	s.log.Info("checkout submitted",
		zap.Int64("session_id", session.ID.Int64()),
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount_cents", pricing.Cents(result.FinalTotal)),
	)

	updated, err := s.Get(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	return updated, result, nil
}

func (s *Service) persistState(ctx context.Context, session *domain.CheckoutSession, state pricing.DiscountState) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return domain.ErrInvalidSnapshot
	}
	ok, err := s.repo.SaveDraft(ctx, s.db, session.ID, encoded, session.BillingInfo, session.Campers, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrSessionNotEditable
	}
	session.DiscountState = encoded
	return nil
}

// SweepAbandoned marks open sessions untouched since the cutoff as
// abandoned. Sessions are never deleted.
func (s *Service) SweepAbandoned(ctx context.Context) (int64, error) {
	hours := s.cfg.Checkout.AbandonAfterHrs
	if hours <= 0 {
		hours = 48
	}
	now := s.clock.Now()
	cutoff := now.Add(-time.Duration(hours) * time.Hour)

	moved, err := s.repo.MarkAbandonedBefore(ctx, s.db, cutoff, now)
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		s.log.Info("abandoned stale checkout sessions", zap.Int64("count", moved))
	}
	return moved, nil
}

func decodeSaveRequest(raw []byte) (*SaveRequest, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	var request SaveRequest
	if err := decoder.Decode(&request); err != nil {
		return nil, domain.ErrInvalidSnapshot
	}
	return &request, nil
}
