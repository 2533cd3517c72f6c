package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	IntentStatusRequiresPayment = "requires_payment_method"
	IntentStatusProcessing      = "processing"
	IntentStatusSucceeded       = "succeeded"
	IntentStatusFailed          = "failed"

	EventTypePaymentSucceeded = "payment.succeeded"
	EventTypePaymentFailed    = "payment.failed"
)

var (
	ErrInvalidConfig      = errors.New("invalid_processor_config")
	ErrInvalidProvider    = errors.New("invalid_provider")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrInvalidEvent       = errors.New("invalid_event")
	ErrEventIgnored       = errors.New("event_ignored")
	ErrInvalidSession     = errors.New("invalid_session_reference")
	ErrIntentCreateFailed = errors.New("intent_create_failed")
	ErrConfirmFailed      = errors.New("payment_confirm_failed")
)

// Intent is the processor-side authorization for a checkout total.
type Intent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Currency     string
	Status       string
}

// Confirmation is the processor's answer when settlement asks what
// was actually captured for an intent.
type Confirmation struct {
	IntentID            string
	Status              string
	CapturedAmountCents int64
	Currency            string
}

// Processor is the outbound payment API the checkout flow consumes.
type Processor interface {
	Provider() string
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Intent, error)
	ConfirmPayment(ctx context.Context, intentID string) (*Confirmation, error)
}

// WebhookEvent is a verified, normalized processor callback.
type WebhookEvent struct {
	Provider          string
	ProviderEventID   string
	Type              string
	PaymentIntentID   string
	CheckoutSessionID snowflake.ID
	AmountCents       int64
	Currency          string
	OccurredAt        time.Time
	RawPayload        []byte
}

// WebhookParser verifies and decodes inbound webhook deliveries.
type WebhookParser interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*WebhookEvent, error)
}

// EventRecord is the durable dedupe ledger for webhook deliveries.
// The unique key on (provider, provider_event_id) collapses the
// processor's at-least-once delivery into at-most-once processing.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"column:id;primaryKey" json:"id"`
	Provider        string         `gorm:"column:provider;uniqueIndex:uq_payment_webhook_events_provider_event,priority:1" json:"provider"`
	ProviderEventID string         `gorm:"column:provider_event_id;uniqueIndex:uq_payment_webhook_events_provider_event,priority:2" json:"provider_event_id"`
	EventType       string         `gorm:"column:event_type" json:"event_type"`
	Payload         datatypes.JSON `gorm:"column:payload" json:"payload"`
	ReceivedAt      time.Time      `gorm:"column:received_at" json:"received_at"`
}

func (EventRecord) TableName() string {
	return "payment_webhook_events"
}

type Repository interface {
	// InsertEvent reports whether this delivery was the first with its
	// (provider, provider_event_id) pair.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
}
