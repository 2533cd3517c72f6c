package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/fieldpass/checkout/internal/clock"
	"github.com/fieldpass/checkout/internal/config"
	obsmetrics "github.com/fieldpass/checkout/internal/observability/metrics"
	"github.com/fieldpass/checkout/internal/referral/domain"
	"github.com/fieldpass/checkout/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Catalog    *config.CatalogHolder
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	catalog    *config.CatalogHolder
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("referral.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		catalog:    p.Catalog,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

var codePattern = regexp.MustCompile(`^[A-Z0-9-]{4,32}$`)

// NormalizeCode uppercases and trims a buyer-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeEmail lowercases and trims a billing email; it is the
// identity used for the self-referral check.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate looks up a code and reports the discount it grants.
func (s *Service) Validate(ctx context.Context, rawCode string) (*domain.ReferralCode, error) {
	code := NormalizeCode(rawCode)
	if !codePattern.MatchString(code) {
		return nil, domain.ErrInvalidCode
	}

	item, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	if item.Status != domain.StatusActive {
		return nil, domain.ErrInactive
	}
	if item.MaxUses != nil && item.TimesUsed >= *item.MaxUses {
		return nil, domain.ErrExhausted
	}
	return item, nil
}

// Redeem applies a code to a consuming order exactly once. Retrying
// the same (code, order) pair is a no-op; the usage counter moves by
// one total. The redemption row and the counter bump commit together.
func (s *Service) Redeem(ctx context.Context, rawCode string, orderID snowflake.ID, sessionID snowflake.ID, billingEmail string) error {
	code := NormalizeCode(rawCode)
	if !codePattern.MatchString(code) {
		return domain.ErrInvalidCode
	}

	item, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return err
	}
	if item == nil {
		return domain.ErrNotFound
	}
	if item.Status != domain.StatusActive {
		return domain.ErrInactive
	}
	if owner := NormalizeEmail(item.OwnerEmail); owner != "" && owner == NormalizeEmail(billingEmail) {
		s.recordRedemption(ctx, "self_referral")
		return domain.ErrSelfReferral
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertRedemption(ctx, tx, &domain.Redemption{
			ID:                s.genID.Generate(),
			Code:              code,
			OrderID:           orderID,
			CheckoutSessionID: sessionID,
			AmountCents:       item.DiscountCents,
			CreatedAt:         now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			// Already redeemed for this order; nothing more to apply.
			return nil
		}

		ok, err := s.repo.IncrementUsage(ctx, tx, code, item.DiscountCents, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrExhausted
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordRedemption(ctx, "applied")
	return nil
}

// Issue mints the referral code a completed order earns. Re-running
// settlement for the same source order returns the code minted the
// first time.
func (s *Service) Issue(ctx context.Context, sourceOrderID snowflake.ID, ownerEmail string) (*domain.ReferralCode, error) {
	if existing, err := s.repo.FindBySourceOrder(ctx, s.db, sourceOrderID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	policy := s.catalog.Get().Referral
	now := s.clock.Now()
	sourceID := sourceOrderID

	for attempt := 0; attempt < 5; attempt++ {
		code := &domain.ReferralCode{
			ID:            s.genID.Generate(),
			Code:          generateCode(),
			OwnerEmail:    NormalizeEmail(ownerEmail),
			SourceOrderID: &sourceID,
			Status:        domain.StatusActive,
			DiscountCents: policy.DiscountCents,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if policy.MaxUses > 0 {
			maxUses := int64(policy.MaxUses)
			code.MaxUses = &maxUses
		}

		inserted, err := s.repo.InsertCode(ctx, s.db, code)
		if err != nil {
			if isUniqueCodeCollision(err) {
				continue
			}
			return nil, err
		}
		if inserted {
			s.log.Info("referral code issued",
				zap.String("code", code.Code),
				zap.Int64("source_order_id", sourceOrderID.Int64()),
			)
			return code, nil
		}
		// Another settlement attempt won; return its code.
		return s.repo.FindBySourceOrder(ctx, s.db, sourceOrderID)
	}

	return nil, fmt.Errorf("issue referral code: could not find a free code")
}

// ListCodes is the read-only projection for the admin surface.
func (s *Service) ListCodes(ctx context.Context, limit, offset int) ([]domain.ReferralCode, error) {
	return s.repo.List(ctx, s.db, limit, offset)
}

func (s *Service) recordRedemption(ctx context.Context, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordReferralRedemption(ctx, outcome)
	}
}

// alphabet avoids 0/O and 1/I lookalikes.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateCode() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return "FP-" + string(out)
}

// The source_order conflict is absorbed by DO NOTHING, so a duplicate
// key error out of InsertCode can only be the generated code itself.
func isUniqueCodeCollision(err error) bool {
	return db.IsDuplicateKeyErr(err)
}

var _ domain.Service = (*Service)(nil)
