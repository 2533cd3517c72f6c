package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

var (
	ErrNotFound     = errors.New("referral_code_not_found")
	ErrInactive     = errors.New("referral_code_inactive")
	ErrExhausted    = errors.New("referral_code_exhausted")
	ErrSelfReferral = errors.New("referral_self_referral")
	ErrInvalidCode  = errors.New("referral_code_invalid")
)

// ReferralCode is a shared counter row: many unrelated orders redeem
// against it over time, so every increment goes through a conditional
// storage-level update, never read-then-write in application code.
type ReferralCode struct {
	ID                      snowflake.ID  `gorm:"column:id;primaryKey" json:"id"`
	Code                    string        `gorm:"column:code;uniqueIndex:uq_referral_codes_code" json:"code"`
	OwnerEmail              string        `gorm:"column:owner_email" json:"owner_email"`
	SourceOrderID           *snowflake.ID `gorm:"column:source_order_id;uniqueIndex:uq_referral_codes_source_order" json:"source_order_id,omitempty"`
	Status                  string        `gorm:"column:status" json:"status"`
	DiscountCents           int64         `gorm:"column:discount_cents" json:"discount_cents"`
	MaxUses                 *int64        `gorm:"column:max_uses" json:"max_uses,omitempty"`
	TimesUsed               int64         `gorm:"column:times_used" json:"times_used"`
	TotalDiscountGivenCents int64         `gorm:"column:total_discount_given_cents" json:"total_discount_given_cents"`
	CreatedAt               time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt               time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

func (ReferralCode) TableName() string {
	return "referral_codes"
}

// Redemption links one code to one consuming order. The unique key on
// (code, order_id) makes redeeming the same pair twice a no-op.
type Redemption struct {
	ID                snowflake.ID `gorm:"column:id;primaryKey" json:"id"`
	Code              string       `gorm:"column:code;uniqueIndex:uq_referral_redemptions_code_order,priority:1" json:"code"`
	OrderID           snowflake.ID `gorm:"column:order_id;uniqueIndex:uq_referral_redemptions_code_order,priority:2" json:"order_id"`
	CheckoutSessionID snowflake.ID `gorm:"column:checkout_session_id" json:"checkout_session_id"`
	AmountCents       int64        `gorm:"column:amount_cents" json:"amount_cents"`
	CreatedAt         time.Time    `gorm:"column:created_at" json:"created_at"`
}

func (Redemption) TableName() string {
	return "referral_redemptions"
}

type Repository interface {
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*ReferralCode, error)
	FindBySourceOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*ReferralCode, error)
	// InsertCode writes the code unless one already exists for its
	// source order. It reports whether this call created the row.
	InsertCode(ctx context.Context, db *gorm.DB, code *ReferralCode) (bool, error)
	// InsertRedemption reports whether the (code, order) pair was new.
	InsertRedemption(ctx context.Context, db *gorm.DB, redemption *Redemption) (bool, error)
	// IncrementUsage bumps times_used and the running discount total in
	// a single conditional statement; it reports whether the code still
	// had capacity.
	IncrementUsage(ctx context.Context, db *gorm.DB, code string, amountCents int64, at time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, limit, offset int) ([]ReferralCode, error)
}

// Service is the referral ledger surface the checkout and settlement
// flows depend on.
type Service interface {
	Validate(ctx context.Context, code string) (*ReferralCode, error)
	Redeem(ctx context.Context, code string, orderID snowflake.ID, sessionID snowflake.ID, billingEmail string) error
	Issue(ctx context.Context, sourceOrderID snowflake.ID, ownerEmail string) (*ReferralCode, error)
	ListCodes(ctx context.Context, limit, offset int) ([]ReferralCode, error)
}
