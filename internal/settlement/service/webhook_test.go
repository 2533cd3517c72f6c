package service

import (
	"context"
	"net/http"
	"testing"

	paymentdomain "github.com/fieldpass/checkout/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubParser struct {
	verifyErr error
	event     *paymentdomain.WebhookEvent
	parseErr  error
}

func (p *stubParser) Provider() string { return "stub" }

func (p *stubParser) Verify(context.Context, []byte, http.Header) error {
	return p.verifyErr
}

func (p *stubParser) Parse(context.Context, []byte) (*paymentdomain.WebhookEvent, error) {
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	return p.event, nil
}

func withParser(f *fixture, parser paymentdomain.WebhookParser) {
	f.svc.parser = parser
}

func successEvent(sessionID snowflake.ID) *paymentdomain.WebhookEvent {
	return &paymentdomain.WebhookEvent{
		Provider:          "stub",
		ProviderEventID:   "evt_1",
		Type:              paymentdomain.EventTypePaymentSucceeded,
		PaymentIntentID:   "pi_stub",
		CheckoutSessionID: sessionID,
		AmountCents:       41230,
		Currency:          "USD",
		RawPayload:        []byte(`{"id":"evt_1"}`),
	}
}

func TestHandleWebhookSettles(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.processor.capturedCents = 41230
	session := seedSession(t, f, "")
	withParser(f, &stubParser{event: successEvent(session.ID)})

	outcome, err := f.svc.HandleWebhook(ctx, []byte(`{"id":"evt_1"}`), http.Header{})
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.True(t, outcome.Created)

	var events int64
	require.NoError(t, f.db.Model(&paymentdomain.EventRecord{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestHandleWebhookDuplicateDelivery(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.processor.capturedCents = 41230
	session := seedSession(t, f, "")
	withParser(f, &stubParser{event: successEvent(session.ID)})

	first, err := f.svc.HandleWebhook(ctx, []byte(`{"id":"evt_1"}`), http.Header{})
	require.NoError(t, err)
	require.True(t, first.Created)

	// same provider event id again: recorded once, settled idempotently
	second, err := f.svc.HandleWebhook(ctx, []byte(`{"id":"evt_1"}`), http.Header{})
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.False(t, second.Created)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	var events int64
	require.NoError(t, f.db.Model(&paymentdomain.EventRecord{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := setup(t)
	withParser(f, &stubParser{verifyErr: paymentdomain.ErrInvalidSignature})

	_, err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestHandleWebhookIgnoresUnrelatedEvents(t *testing.T) {
	f := setup(t)
	withParser(f, &stubParser{parseErr: paymentdomain.ErrEventIgnored})

	outcome, err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Nil(t, outcome)
}

func TestHandleWebhookFailedPaymentDoesNotSettle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	session := seedSession(t, f, "")
	event := successEvent(session.ID)
	event.Type = paymentdomain.EventTypePaymentFailed
	withParser(f, &stubParser{event: event})

	outcome, err := f.svc.HandleWebhook(ctx, []byte(`{"id":"evt_1"}`), http.Header{})
	require.NoError(t, err)
	assert.Nil(t, outcome)

	var orders int64
	require.NoError(t, f.db.Table("orders").Count(&orders).Error)
	assert.Equal(t, int64(0), orders)
}
