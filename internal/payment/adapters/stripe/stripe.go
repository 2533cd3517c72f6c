package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fieldpass/checkout/internal/config"
	"github.com/fieldpass/checkout/internal/payment/domain"
	"go.uber.org/zap"
)

const metadataSessionKey = "checkout_session_id"

// Adapter talks to a Stripe-shaped payment API: payment intents out,
// signed webhooks in.
type Adapter struct {
	apiBase       string
	secretKey     string
	webhookSecret string
	httpClient    *http.Client
	log           *zap.Logger
}

func New(cfg config.ProcessorConfig, log *zap.Logger) (*Adapter, error) {
	secretKey := strings.TrimSpace(cfg.SecretKey)
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if secretKey == "" || webhookSecret == "" {
		return nil, domain.ErrInvalidConfig
	}

	apiBase := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if apiBase == "" {
		apiBase = "https://api.stripe.com"
	}

	return &Adapter{
		apiBase:       apiBase,
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		log:           log.Named("payment.stripe"),
	}, nil
}

func (a *Adapter) Provider() string {
	return "stripe"
}

func (a *Adapter) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*domain.Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", strings.ToLower(strings.TrimSpace(currency)))
	for key, value := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	var intent stripePaymentIntent
	if err := a.call(ctx, http.MethodPost, "/v1/payment_intents", form, &intent); err != nil {
		a.log.Error("create payment intent failed", zap.Error(err))
		return nil, domain.ErrIntentCreateFailed
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, domain.ErrIntentCreateFailed
	}

	return &domain.Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  intent.Amount,
		Currency:     strings.ToUpper(strings.TrimSpace(intent.Currency)),
		Status:       normalizeIntentStatus(intent.Status),
	}, nil
}

func (a *Adapter) ConfirmPayment(ctx context.Context, intentID string) (*domain.Confirmation, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, domain.ErrConfirmFailed
	}

	var intent stripePaymentIntent
	if err := a.call(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(intentID), nil, &intent); err != nil {
		a.log.Error("confirm payment failed", zap.String("intent_id", intentID), zap.Error(err))
		return nil, domain.ErrConfirmFailed
	}

	captured := intent.AmountReceived
	if captured <= 0 && normalizeIntentStatus(intent.Status) == domain.IntentStatusSucceeded {
		captured = intent.Amount
	}

	return &domain.Confirmation{
		IntentID:            intent.ID,
		Status:              normalizeIntentStatus(intent.Status),
		CapturedAmountCents: captured,
		Currency:            strings.ToUpper(strings.TrimSpace(intent.Currency)),
	}, nil
}

func (a *Adapter) call(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, a.apiBase+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	res, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("processor returned status %d", res.StatusCode)
	}
	return json.Unmarshal(payload, out)
}

// Verify checks the Stripe-Signature header against the shared secret.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	_ = ctx
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

// Parse normalizes the payment intent lifecycle events settlement
// cares about; everything else is ignored, not an error worth a retry.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.WebhookEvent, error) {
	_ = ctx
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		return a.parseIntentEvent(event, payload, domain.EventTypePaymentSucceeded)
	case "payment_intent.payment_failed":
		return a.parseIntentEvent(event, payload, domain.EventTypePaymentFailed)
	default:
		return nil, domain.ErrEventIgnored
	}
}

func (a *Adapter) parseIntentEvent(event stripeEvent, payload []byte, eventType string) (*domain.WebhookEvent, error) {
	var intent stripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	sessionID, err := sessionIDFromMetadata(intent.Metadata)
	if err != nil {
		return nil, err
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}

	return &domain.WebhookEvent{
		Provider:          "stripe",
		ProviderEventID:   event.ID,
		Type:              eventType,
		PaymentIntentID:   intent.ID,
		CheckoutSessionID: sessionID,
		AmountCents:       amount,
		Currency:          strings.ToUpper(strings.TrimSpace(intent.Currency)),
		OccurredAt:        timestamp(intent.Created, event.Created),
		RawPayload:        payload,
	}, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripePaymentIntent struct {
	ID             string         `json:"id"`
	ClientSecret   string         `json:"client_secret"`
	Amount         int64          `json:"amount"`
	AmountReceived int64          `json:"amount_received"`
	Currency       string         `json:"currency"`
	Status         string         `json:"status"`
	Created        int64          `json:"created"`
	Metadata       map[string]any `json:"metadata"`
}

func normalizeIntentStatus(status string) string {
	switch strings.TrimSpace(status) {
	case "succeeded":
		return domain.IntentStatusSucceeded
	case "processing", "requires_action", "requires_capture", "requires_confirmation":
		return domain.IntentStatusProcessing
	case "canceled":
		return domain.IntentStatusFailed
	case "requires_payment_method", "":
		return domain.IntentStatusRequiresPayment
	default:
		return strings.TrimSpace(status)
	}
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func sessionIDFromMetadata(metadata map[string]any) (snowflake.ID, error) {
	raw := readMetadataValue(metadata, metadataSessionKey)
	if raw == "" {
		return 0, domain.ErrInvalidSession
	}
	sessionID, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, domain.ErrInvalidSession
	}
	return sessionID, nil
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	case int64:
		return strconv.FormatInt(cast, 10)
	case int:
		return strconv.Itoa(cast)
	}
	return ""
}

var (
	_ domain.Processor     = (*Adapter)(nil)
	_ domain.WebhookParser = (*Adapter)(nil)
)
