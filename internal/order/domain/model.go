package domain

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Order is the durable record of one settled checkout. There is at
// most one per checkout session, enforced by the unique index on
// checkout_session_id. Orders are never deleted.
type Order struct {
	ID                    snowflake.ID   `gorm:"column:id;primaryKey" json:"id"`
	CheckoutSessionID     snowflake.ID   `gorm:"column:checkout_session_id;uniqueIndex:uq_orders_checkout_session" json:"checkout_session_id"`
	OrderNumber           string         `gorm:"column:order_number;uniqueIndex:uq_orders_order_number" json:"order_number"`
	PaymentIntentID       string         `gorm:"column:payment_intent_id" json:"payment_intent_id"`
	Currency              string         `gorm:"column:currency" json:"currency"`
	BaseAmountCents       int64          `gorm:"column:base_amount_cents" json:"base_amount_cents"`
	DiscountAmountCents   int64          `gorm:"column:discount_amount_cents" json:"discount_amount_cents"`
	FeeAmountCents        int64          `gorm:"column:fee_amount_cents" json:"fee_amount_cents"`
	TotalAmountCents      int64          `gorm:"column:total_amount_cents" json:"total_amount_cents"`
	Pricing               datatypes.JSON `gorm:"column:pricing" json:"pricing"`
	BillingEmail          string         `gorm:"column:billing_email" json:"billing_email"`
	ReferralCodeUsed      string         `gorm:"column:referral_code_used" json:"referral_code_used,omitempty"`
	ReferralCodeGenerated string         `gorm:"column:referral_code_generated" json:"referral_code_generated,omitempty"`
	CreatedAt             time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (Order) TableName() string {
	return "orders"
}

// NumberFor derives the human-facing order number from the entity id.
func NumberFor(id snowflake.ID) string {
	return "FP-" + strings.ToUpper(strconv.FormatInt(id.Int64(), 36))
}

// Repository persists orders. Insert is the settlement race's single
// serialization point.
type Repository interface {
	// Insert writes the order unless one already exists for its
	// checkout session. It reports whether this call created the row.
	Insert(ctx context.Context, db *gorm.DB, order *Order) (bool, error)
	FindByCheckoutSession(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*Order, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	SetReferralCodeGenerated(ctx context.Context, db *gorm.DB, id snowflake.ID, code string) error
	List(ctx context.Context, db *gorm.DB, limit, offset int) ([]Order, error)
}
