package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fieldpass/checkout/internal/referral/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.ReferralCode, error) {
	var item domain.ReferralCode
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM referral_codes WHERE code = ? LIMIT 1`,
		code,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindBySourceOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.ReferralCode, error) {
	var item domain.ReferralCode
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM referral_codes WHERE source_order_id = ? LIMIT 1`,
		orderID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertCode(ctx context.Context, db *gorm.DB, code *domain.ReferralCode) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO referral_codes (
			id, code, owner_email, source_order_id, status, discount_cents,
			max_uses, times_used, total_discount_given_cents, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_order_id) DO NOTHING`,
		code.ID,
		code.Code,
		code.OwnerEmail,
		code.SourceOrderID,
		code.Status,
		code.DiscountCents,
		code.MaxUses,
		code.TimesUsed,
		code.TotalDiscountGivenCents,
		code.CreatedAt,
		code.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertRedemption(ctx context.Context, db *gorm.DB, redemption *domain.Redemption) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO referral_redemptions (
			id, code, order_id, checkout_session_id, amount_cents, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (code, order_id) DO NOTHING`,
		redemption.ID,
		redemption.Code,
		redemption.OrderID,
		redemption.CheckoutSessionID,
		redemption.AmountCents,
		redemption.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) IncrementUsage(ctx context.Context, db *gorm.DB, code string, amountCents int64, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE referral_codes
		 SET times_used = times_used + 1,
			 total_discount_given_cents = total_discount_given_cents + ?,
			 updated_at = ?
		 WHERE code = ?
		   AND status = ?
		   AND (max_uses IS NULL OR times_used < max_uses)`,
		amountCents,
		at,
		code,
		domain.StatusActive,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, limit, offset int) ([]domain.ReferralCode, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var items []domain.ReferralCode
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM referral_codes ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit,
		offset,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
