package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fieldpass/checkout/internal/clock"
	"github.com/fieldpass/checkout/internal/config"
	"github.com/fieldpass/checkout/internal/referral/domain"
	"github.com/fieldpass/checkout/internal/referral/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (*gorm.DB, domain.Service, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.ReferralCode{}, &domain.Redemption{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	holder := config.NewStaticCatalogHolder(config.CatalogConfig{
		Referral: config.ReferralPolicy{DiscountCents: 2500, MaxUses: 10},
	})

	svc := NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Catalog: holder,
		Repo:    repository.Provide(),
	})
	return db, svc, node
}

func seedCode(t *testing.T, db *gorm.DB, node *snowflake.Node, code string, mutate func(*domain.ReferralCode)) *domain.ReferralCode {
	t.Helper()
	item := &domain.ReferralCode{
		ID:            node.Generate(),
		Code:          code,
		OwnerEmail:    "owner@example.com",
		Status:        domain.StatusActive,
		DiscountCents: 2500,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if mutate != nil {
		mutate(item)
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestValidate(t *testing.T) {
	db, svc, node := setupService(t)
	ctx := context.Background()

	_, err := svc.Validate(ctx, "nope!!")
	assert.ErrorIs(t, err, domain.ErrInvalidCode)

	_, err = svc.Validate(ctx, "FP-MISSING")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	seedCode(t, db, node, "FP-PAUSED", func(c *domain.ReferralCode) {
		c.Status = domain.StatusInactive
	})
	_, err = svc.Validate(ctx, "fp-paused")
	assert.ErrorIs(t, err, domain.ErrInactive)

	maxUses := int64(2)
	seedCode(t, db, node, "FP-SPENT", func(c *domain.ReferralCode) {
		c.MaxUses = &maxUses
		c.TimesUsed = 2
	})
	_, err = svc.Validate(ctx, "FP-SPENT")
	assert.ErrorIs(t, err, domain.ErrExhausted)

	seedCode(t, db, node, "FP-GOOD", nil)
	item, err := svc.Validate(ctx, "  fp-good ")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), item.DiscountCents)
}

func TestRedeemIsIdempotentPerOrder(t *testing.T) {
	db, svc, node := setupService(t)
	ctx := context.Background()

	seedCode(t, db, node, "FP-ONCE", nil)
	orderID := node.Generate()
	sessionID := node.Generate()

	require.NoError(t, svc.Redeem(ctx, "FP-ONCE", orderID, sessionID, "buyer@example.com"))
	require.NoError(t, svc.Redeem(ctx, "FP-ONCE", orderID, sessionID, "buyer@example.com"))

	var updated domain.ReferralCode
	require.NoError(t, db.Where("code = ?", "FP-ONCE").First(&updated).Error)
	assert.Equal(t, int64(1), updated.TimesUsed)
	assert.Equal(t, int64(2500), updated.TotalDiscountGivenCents)

	var count int64
	require.NoError(t, db.Model(&domain.Redemption{}).Where("code = ?", "FP-ONCE").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRedeemDifferentOrdersIncrementSeparately(t *testing.T) {
	db, svc, node := setupService(t)
	ctx := context.Background()

	seedCode(t, db, node, "FP-MANY", nil)

	require.NoError(t, svc.Redeem(ctx, "FP-MANY", node.Generate(), node.Generate(), "a@example.com"))
	require.NoError(t, svc.Redeem(ctx, "FP-MANY", node.Generate(), node.Generate(), "b@example.com"))

	var updated domain.ReferralCode
	require.NoError(t, db.Where("code = ?", "FP-MANY").First(&updated).Error)
	assert.Equal(t, int64(2), updated.TimesUsed)
	assert.Equal(t, int64(5000), updated.TotalDiscountGivenCents)
}

func TestRedeemSelfReferralForbidden(t *testing.T) {
	db, svc, node := setupService(t)
	ctx := context.Background()

	seedCode(t, db, node, "FP-SELF", func(c *domain.ReferralCode) {
		c.OwnerEmail = "Same@Example.com"
	})

	err := svc.Redeem(ctx, "FP-SELF", node.Generate(), node.Generate(), " same@example.COM ")
	assert.ErrorIs(t, err, domain.ErrSelfReferral)

	var updated domain.ReferralCode
	require.NoError(t, db.Where("code = ?", "FP-SELF").First(&updated).Error)
	assert.Equal(t, int64(0), updated.TimesUsed)
}

func TestRedeemExhaustedRollsBack(t *testing.T) {
	db, svc, node := setupService(t)
	ctx := context.Background()

	maxUses := int64(1)
	seedCode(t, db, node, "FP-LAST", func(c *domain.ReferralCode) {
		c.MaxUses = &maxUses
	})

	require.NoError(t, svc.Redeem(ctx, "FP-LAST", node.Generate(), node.Generate(), "a@example.com"))

	secondOrder := node.Generate()
	err := svc.Redeem(ctx, "FP-LAST", secondOrder, node.Generate(), "b@example.com")
	assert.ErrorIs(t, err, domain.ErrExhausted)

	// the failed attempt must not leave a redemption row behind
	var count int64
	require.NoError(t, db.Model(&domain.Redemption{}).Where("order_id = ?", secondOrder).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestIssueIsIdempotentPerSourceOrder(t *testing.T) {
	db, svc, node := setupService(t)
	ctx := context.Background()

	sourceOrder := node.Generate()
	first, err := svc.Issue(ctx, sourceOrder, "winner@example.com")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.NotEmpty(t, first.Code)
	assert.Equal(t, int64(2500), first.DiscountCents)
	require.NotNil(t, first.MaxUses)
	assert.Equal(t, int64(10), *first.MaxUses)

	second, err := svc.Issue(ctx, sourceOrder, "winner@example.com")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.Code, second.Code)

	var count int64
	require.NoError(t, db.Model(&domain.ReferralCode{}).Where("source_order_id = ?", sourceOrder).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
