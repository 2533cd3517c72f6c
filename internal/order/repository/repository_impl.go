package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/fieldpass/checkout/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, checkout_session_id, order_number, payment_intent_id, currency,
			base_amount_cents, discount_amount_cents, fee_amount_cents, total_amount_cents,
			pricing, billing_email, referral_code_used, referral_code_generated, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (checkout_session_id) DO NOTHING`,
		order.ID,
		order.CheckoutSessionID,
		order.OrderNumber,
		order.PaymentIntentID,
		order.Currency,
		order.BaseAmountCents,
		order.DiscountAmountCents,
		order.FeeAmountCents,
		order.TotalAmountCents,
		order.Pricing,
		order.BillingEmail,
		order.ReferralCodeUsed,
		order.ReferralCodeGenerated,
		order.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByCheckoutSession(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM orders WHERE checkout_session_id = ? LIMIT 1`,
		sessionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM orders WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) SetReferralCodeGenerated(ctx context.Context, db *gorm.DB, id snowflake.ID, code string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET referral_code_generated = ? WHERE id = ?`,
		code,
		id,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, limit, offset int) ([]domain.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var items []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM orders ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit,
		offset,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
