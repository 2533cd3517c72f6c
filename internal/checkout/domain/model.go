package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fieldpass/checkout/internal/pricing"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusOpen              = "open"
	StatusPaymentAuthorized = "payment_authorized"
	StatusCompleted         = "completed"
	StatusAbandoned         = "abandoned"
)

var (
	ErrSessionNotFound     = errors.New("session_not_found")
	ErrSessionNotEditable  = errors.New("session_not_editable")
	ErrSessionNotOpen      = errors.New("session_not_open")
	ErrMissingBillingEmail = errors.New("missing_billing_email")
	ErrInvalidSnapshot     = errors.New("invalid_discount_snapshot")
	ErrInvalidTeamDiscount = errors.New("invalid_team_discount_pct")
	ErrIntentMismatch      = errors.New("payment_intent_mismatch")
)

// BillingInfo identifies the buyer. The normalized email doubles as
// the billing identity for the self-referral check.
type BillingInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// Camper is one registered participant. The roster size drives the
// team discount.
type Camper struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Age       int    `json:"age,omitempty"`
	CampID    string `json:"camp_id,omitempty"`
}

// CheckoutSession is the durable record of one purchase attempt. The
// snapshot columns are overwritten wholesale on every save; the session
// itself is never deleted, only marked abandoned.
type CheckoutSession struct {
	ID              snowflake.ID   `gorm:"column:id;primaryKey" json:"id"`
	Status          string         `gorm:"column:status" json:"status"`
	Currency        string         `gorm:"column:currency" json:"currency"`
	DiscountState   datatypes.JSON `gorm:"column:discount_state" json:"discount_state"`
	BillingInfo     datatypes.JSON `gorm:"column:billing_info" json:"billing_info"`
	Campers         datatypes.JSON `gorm:"column:campers" json:"campers"`
	PaymentIntentID string         `gorm:"column:payment_intent_id" json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at" json:"updated_at"`
	CompletedAt     *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	AbandonedAt     *time.Time     `gorm:"column:abandoned_at" json:"abandoned_at,omitempty"`
}

func (CheckoutSession) TableName() string {
	return "checkout_sessions"
}

// Snapshot decodes the persisted discount state.
func (s *CheckoutSession) Snapshot() (pricing.DiscountState, error) {
	var state pricing.DiscountState
	if len(s.DiscountState) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(s.DiscountState, &state); err != nil {
		return state, ErrInvalidSnapshot
	}
	return state, nil
}

// Billing decodes the persisted billing info.
func (s *CheckoutSession) Billing() (BillingInfo, error) {
	var billing BillingInfo
	if len(s.BillingInfo) == 0 {
		return billing, nil
	}
	if err := json.Unmarshal(s.BillingInfo, &billing); err != nil {
		return billing, ErrInvalidSnapshot
	}
	return billing, nil
}

// Roster decodes the persisted camper records.
func (s *CheckoutSession) Roster() ([]Camper, error) {
	var campers []Camper
	if len(s.Campers) == 0 {
		return campers, nil
	}
	if err := json.Unmarshal(s.Campers, &campers); err != nil {
		return nil, ErrInvalidSnapshot
	}
	return campers, nil
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, session *CheckoutSession) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CheckoutSession, error)
	// SaveDraft overwrites the snapshot columns for an open session;
	// last write wins. It reports whether the session was still open.
	SaveDraft(ctx context.Context, db *gorm.DB, id snowflake.ID, discountState, billingInfo, campers datatypes.JSON, at time.Time) (bool, error)
	// AttachIntent records the payment intent and moves the session to
	// payment_authorized. It refuses a different intent id once one is
	// set, which guards against cross-session replay.
	AttachIntent(ctx context.Context, db *gorm.DB, id snowflake.ID, intentID string, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	// MarkAbandonedBefore flips stale open sessions to abandoned and
	// returns how many rows moved.
	MarkAbandonedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, at time.Time) (int64, error)
}
