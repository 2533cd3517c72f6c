package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fieldpass/checkout/internal/checkout/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, session *domain.CheckoutSession) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO checkout_sessions (
			id, status, currency, discount_state, billing_info, campers,
			payment_intent_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.Status,
		session.Currency,
		session.DiscountState,
		session.BillingInfo,
		session.Campers,
		session.PaymentIntentID,
		session.CreatedAt,
		session.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CheckoutSession, error) {
	var item domain.CheckoutSession
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM checkout_sessions WHERE id = ? LIMIT 1`,
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

func (r *repo) SaveDraft(ctx context.Context, db *gorm.DB, id snowflake.ID, discountState, billingInfo, campers datatypes.JSON, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE checkout_sessions
		 SET discount_state = ?, billing_info = ?, campers = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		discountState,
		billingInfo,
		campers,
		at,
		id,
		domain.StatusOpen,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AttachIntent(ctx context.Context, db *gorm.DB, id snowflake.ID, intentID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE checkout_sessions
		 SET payment_intent_id = ?, status = ?, updated_at = ?
		 WHERE id = ?
		   AND status IN (?, ?)
		   AND (payment_intent_id = '' OR payment_intent_id = ?)`,
		intentID,
		domain.StatusPaymentAuthorized,
		at,
		id,
		domain.StatusOpen,
		domain.StatusPaymentAuthorized,
		intentID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE checkout_sessions
		 SET status = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.StatusCompleted,
		at,
		at,
		id,
		domain.StatusCompleted,
	).Error
}

func (r *repo) MarkAbandonedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE checkout_sessions
		 SET status = ?, abandoned_at = ?, updated_at = ?
		 WHERE status = ? AND updated_at < ?`,
		domain.StatusAbandoned,
		at,
		at,
		domain.StatusOpen,
		cutoff,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
