package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fieldpass/checkout/internal/checkout/domain"
	checkoutrepo "github.com/fieldpass/checkout/internal/checkout/repository"
	"github.com/fieldpass/checkout/internal/clock"
	"github.com/fieldpass/checkout/internal/config"
	paymentdomain "github.com/fieldpass/checkout/internal/payment/domain"
	"github.com/fieldpass/checkout/internal/pricing"
	referraldomain "github.com/fieldpass/checkout/internal/referral/domain"
	referralrepo "github.com/fieldpass/checkout/internal/referral/repository"
	referralservice "github.com/fieldpass/checkout/internal/referral/service"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fakeProcessor struct {
	created     []int64
	failCreate  bool
	nextIntent  int
	confirmFunc func(intentID string) (*paymentdomain.Confirmation, error)
}

func (f *fakeProcessor) Provider() string { return "fake" }

func (f *fakeProcessor) CreateIntent(_ context.Context, amountCents int64, _ string, _ map[string]string) (*paymentdomain.Intent, error) {
	if f.failCreate {
		return nil, paymentdomain.ErrIntentCreateFailed
	}
	f.nextIntent++
	f.created = append(f.created, amountCents)
	return &paymentdomain.Intent{
		ID:          fmt.Sprintf("pi_fake_%d", f.nextIntent),
		AmountCents: amountCents,
		Status:      paymentdomain.IntentStatusRequiresPayment,
	}, nil
}

func (f *fakeProcessor) ConfirmPayment(_ context.Context, intentID string) (*paymentdomain.Confirmation, error) {
	if f.confirmFunc != nil {
		return f.confirmFunc(intentID)
	}
	return &paymentdomain.Confirmation{IntentID: intentID, Status: paymentdomain.IntentStatusSucceeded}, nil
}

type fixture struct {
	db        *gorm.DB
	svc       *Service
	node      *snowflake.Node
	clock     *clock.FakeClock
	processor *fakeProcessor
	referral  referraldomain.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.CheckoutSession{},
		&referraldomain.ReferralCode{},
		&referraldomain.Redemption{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	holder := config.NewStaticCatalogHolder(config.CatalogConfig{
		Referral: config.ReferralPolicy{DiscountCents: 2500, MaxUses: 10},
	})
	referralSvc := referralservice.NewService(referralservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fakeClock,
		Catalog: holder,
		Repo:    referralrepo.Provide(),
	})

	processor := &fakeProcessor{}
	svc := NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fakeClock,
		Cfg:       config.Config{Checkout: config.CheckoutConfig{Currency: "USD", AbandonAfterHrs: 48}},
		Repo:      checkoutrepo.Provide(),
		Referral:  referralSvc,
		Processor: processor,
	})

	return &fixture{db: db, svc: svc, node: node, clock: fakeClock, processor: processor, referral: referralSvc}
}

func draftPayload(referralCode string, upgrade pricing.UpgradeKind, camps []string) []byte {
	state := pricing.DiscountState{
		BaseSubtotal:    decimal.NewFromInt(400),
		CampPrice:       decimal.NewFromInt(400),
		ReferralCode:    referralCode,
		UpgradeSelected: upgrade,
		UpgradeCamps:    camps,
	}
	request := SaveRequest{
		DiscountState: state,
		BillingInfo:   domain.BillingInfo{FirstName: "Ada", LastName: "Park", Email: "buyer@example.com"},
		Campers:       []domain.Camper{{FirstName: "Sam", LastName: "Park"}},
	}
	raw, err := json.Marshal(request)
	if err != nil {
		panic(err)
	}
	return raw
}

func TestBeginOpensSession(t *testing.T) {
	f := setup(t)

	session, err := f.svc.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, session.Status)
	assert.Equal(t, "USD", session.Currency)
	assert.Empty(t, session.PaymentIntentID)
}

func TestSaveDraftRejectsUnknownFields(t *testing.T) {
	f := setup(t)
	session, err := f.svc.Begin(context.Background())
	require.NoError(t, err)

	_, err = f.svc.SaveDraft(context.Background(), session.ID, []byte(`{"discount_state":{},"surprise":true}`))
	assert.ErrorIs(t, err, domain.ErrInvalidSnapshot)
}

func TestSaveDraftLastWriteWins(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	session, err := f.svc.Begin(ctx)
	require.NoError(t, err)

	_, err = f.svc.SaveDraft(ctx, session.ID, draftPayload("", pricing.UpgradeNone, nil))
	require.NoError(t, err)

	updated, err := f.svc.SaveDraft(ctx, session.ID, draftPayload("FP-LATER", pricing.UpgradeNone, nil))
	require.NoError(t, err)

	state, err := updated.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "FP-LATER", state.ReferralCode)
}

func TestSaveDraftUnknownSession(t *testing.T) {
	f := setup(t)
	_, err := f.svc.SaveDraft(context.Background(), f.node.Generate(), draftPayload("", pricing.UpgradeNone, nil))
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestQuoteRecomputesFromSnapshot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	session, err := f.svc.Begin(ctx)
	require.NoError(t, err)
	_, err = f.svc.SaveDraft(ctx, session.ID, draftPayload("", pricing.UpgradeNone, nil))
	require.NoError(t, err)

	result, err := f.svc.Quote(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(41230), pricing.Cents(result.FinalTotal))
}

func TestSubmitAuthorizesComputedTotal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	session, err := f.svc.Begin(ctx)
	require.NoError(t, err)
	_, err = f.svc.SaveDraft(ctx, session.ID, draftPayload("", pricing.UpgradeNone, nil))
	require.NoError(t, err)

	updated, result, err := f.svc.Submit(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentAuthorized, updated.Status)
	assert.Equal(t, "pi_fake_1", updated.PaymentIntentID)
	assert.Equal(t, []int64{41230}, f.processor.created)
	assert.Equal(t, int64(41230), pricing.Cents(result.FinalTotal))

	// a second submit must not re-authorize
	_, _, err = f.svc.Submit(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotOpen)
}

func TestSubmitBlocksIncompletePack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	session, err := f.svc.Begin(ctx)
	require.NoError(t, err)
	_, err = f.svc.SaveDraft(ctx, session.ID, draftPayload("", pricing.UpgradeTwoPack, []string{"camp-a"}))
	require.NoError(t, err)

	_, _, err = f.svc.Submit(ctx, session.ID)
	require.Error(t, err)
	assert.Empty(t, f.processor.created, "validation failures must block before authorization")

	reloaded, err := f.svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, reloaded.Status)
	state, err := reloaded.Snapshot()
	require.NoError(t, err)
	// never silently downgraded
	assert.Equal(t, pricing.UpgradeTwoPack, state.UpgradeSelected)
}

func TestSubmitRequiresBillingEmail(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	session, err := f.svc.Begin(ctx)
	require.NoError(t, err)

	payload := []byte(`{"discount_state":{"base_subtotal":"400","camp_price":"400","upgrade_selected":"none"},"billing_info":{"first_name":"Ada"},"campers":[]}`)
	_, err = f.svc.SaveDraft(ctx, session.ID, payload)
	require.NoError(t, err)

	_, _, err = f.svc.Submit(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrMissingBillingEmail)
}

func TestSubmitAppliesServerSideReferralValue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&referraldomain.ReferralCode{
		ID:            f.node.Generate(),
		Code:          "FP-FRIEND",
		OwnerEmail:    "owner@example.com",
		Status:        referraldomain.StatusActive,
		DiscountCents: 2500,
	}).Error)

	session, err := f.svc.Begin(ctx)
	require.NoError(t, err)
	_, err = f.svc.SaveDraft(ctx, session.ID, draftPayload("fp-friend", pricing.UpgradeNone, nil))
	require.NoError(t, err)

	updated, result, err := f.svc.Submit(ctx, session.ID)
	require.NoError(t, err)

	state, err := updated.Snapshot()
	require.NoError(t, err)
	assert.True(t, state.ReferralDiscount.Equal(decimal.NewFromInt(25)))
	// after = 400 - 25 = 375; fee = 11.55; total = 386.55
	assert.Equal(t, int64(38655), pricing.Cents(result.FinalTotal))
}

func TestSaveDraftClearsUnearnedReferralDiscount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	session, err := f.svc.Begin(ctx)
	require.NoError(t, err)

	payload := []byte(`{"discount_state":{"base_subtotal":"400","camp_price":"400","referral_discount":"399","upgrade_selected":"none"},"billing_info":{"email":"buyer@example.com"},"campers":[]}`)
	updated, err := f.svc.SaveDraft(ctx, session.ID, payload)
	require.NoError(t, err)

	state, err := updated.Snapshot()
	require.NoError(t, err)
	assert.True(t, state.ReferralDiscount.IsZero(), "discount without a code must not persist")

	result, err := f.svc.Quote(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(41230), pricing.Cents(result.FinalTotal))
}

func TestSaveDraftRejectsUnknownTeamDiscountPct(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	session, err := f.svc.Begin(ctx)
	require.NoError(t, err)

	payload := []byte(`{"discount_state":{"base_subtotal":"400","camp_price":"400","team_discount_pct":99,"upgrade_selected":"none"},"billing_info":{"email":"buyer@example.com"},"campers":[]}`)
	_, err = f.svc.SaveDraft(ctx, session.ID, payload)
	assert.ErrorIs(t, err, domain.ErrInvalidTeamDiscount)
}

func TestSubmitIgnoresClaimedReferralDiscount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	session, err := f.svc.Begin(ctx)
	require.NoError(t, err)
	_, err = f.svc.SaveDraft(ctx, session.ID, draftPayload("", pricing.UpgradeNone, nil))
	require.NoError(t, err)

	// a snapshot written around the save validation
	state := pricing.DiscountState{
		BaseSubtotal:     decimal.NewFromInt(400),
		CampPrice:        decimal.NewFromInt(400),
		ReferralDiscount: decimal.NewFromInt(399),
		UpgradeSelected:  pricing.UpgradeNone,
	}
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&domain.CheckoutSession{}).
		Where("id = ?", session.ID).
		Update("discount_state", datatypes.JSON(raw)).Error)

	_, result, err := f.svc.Submit(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{41230}, f.processor.created, "unearned discount must not lower the authorized amount")
	assert.Equal(t, int64(41230), pricing.Cents(result.FinalTotal))

	reloaded, err := f.svc.Get(ctx, session.ID)
	require.NoError(t, err)
	persisted, err := reloaded.Snapshot()
	require.NoError(t, err)
	assert.True(t, persisted.ReferralDiscount.IsZero(), "settlement recomputes from this snapshot")
}

func TestSubmitRejectsTamperedTeamDiscount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	session, err := f.svc.Begin(ctx)
	require.NoError(t, err)
	_, err = f.svc.SaveDraft(ctx, session.ID, draftPayload("", pricing.UpgradeNone, nil))
	require.NoError(t, err)

	state := pricing.DiscountState{
		BaseSubtotal:    decimal.NewFromInt(400),
		CampPrice:       decimal.NewFromInt(400),
		TeamDiscountPct: 99,
		UpgradeSelected: pricing.UpgradeNone,
	}
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&domain.CheckoutSession{}).
		Where("id = ?", session.ID).
		Update("discount_state", datatypes.JSON(raw)).Error)

	_, _, err = f.svc.Submit(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTeamDiscount)
	assert.Empty(t, f.processor.created)
}

func TestSubmitBlocksSelfReferral(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&referraldomain.ReferralCode{
		ID:            f.node.Generate(),
		Code:          "FP-MINE",
		OwnerEmail:    "buyer@example.com",
		Status:        referraldomain.StatusActive,
		DiscountCents: 2500,
	}).Error)

	session, err := f.svc.Begin(ctx)
	require.NoError(t, err)
	_, err = f.svc.SaveDraft(ctx, session.ID, draftPayload("FP-MINE", pricing.UpgradeNone, nil))
	require.NoError(t, err)

	_, _, err = f.svc.Submit(ctx, session.ID)
	assert.ErrorIs(t, err, referraldomain.ErrSelfReferral)
	assert.Empty(t, f.processor.created)
}

func TestSweepAbandonsStaleOpenSessions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stale, err := f.svc.Begin(ctx)
	require.NoError(t, err)

	f.clock.Advance(72 * time.Hour)
	fresh, err := f.svc.Begin(ctx)
	require.NoError(t, err)

	moved, err := f.svc.SweepAbandoned(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	staleReloaded, err := f.svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbandoned, staleReloaded.Status)
	assert.NotNil(t, staleReloaded.AbandonedAt)

	freshReloaded, err := f.svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, freshReloaded.Status)
}
