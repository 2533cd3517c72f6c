package pricing

import (
	"github.com/shopspring/decimal"
)

// UpgradeKind identifies the camp pack upgrade applied to a checkout.
type UpgradeKind string

const (
	UpgradeNone      UpgradeKind = "none"
	UpgradeTwoPack   UpgradeKind = "2pack"
	UpgradeThreePack UpgradeKind = "3pack"
	UpgradeAllAccess UpgradeKind = "allaccess"
)

// minimum roster size before the team discount applies.
const teamRosterMinimum = 5

// TeamDiscountPercent is the single rate the team program grants.
const TeamDiscountPercent int64 = 15

var (
	siblingRate = decimal.NewFromFloat(0.10)
	feeRate     = decimal.NewFromFloat(0.03)
	feeFlat     = decimal.NewFromFloat(0.30)
	hundred     = decimal.NewFromInt(100)
)

// DiscountState is the immutable snapshot of one checkout's selections.
// All amounts are exact decimals; conversion to integer cents happens
// only at the payment processor boundary.
type DiscountState struct {
	BaseSubtotal decimal.Decimal `json:"base_subtotal"`
	CampPrice    decimal.Decimal `json:"camp_price"`

	BundleDiscount decimal.Decimal `json:"bundle_discount"`

	SiblingAdded bool `json:"sibling_added"`

	ReferralCode     string          `json:"referral_code,omitempty"`
	ReferralDiscount decimal.Decimal `json:"referral_discount"`

	TeamDiscountPct int64 `json:"team_discount_pct"`

	UpgradeSelected UpgradeKind     `json:"upgrade_selected"`
	UpgradeAmount   decimal.Decimal `json:"upgrade_amount"`
	UpgradeSave     decimal.Decimal `json:"upgrade_save"`
	UpgradeCamps    []string        `json:"upgrade_camps,omitempty"`

	JerseyAdded bool            `json:"jersey_added"`
	JerseyPrice decimal.Decimal `json:"jersey_price"`
	CareAdded   bool            `json:"care_added"`
	CareAmount  decimal.Decimal `json:"care_amount"`
}

// Result carries every intermediate and final amount of one computation,
// so the server can persist the full audit trail next to the order.
type Result struct {
	SiblingAmount     decimal.Decimal `json:"sibling_amount"`
	SiblingDiscount   decimal.Decimal `json:"sibling_discount"`
	TeamPlayersAmount decimal.Decimal `json:"team_players_amount"`
	TeamDiscount      decimal.Decimal `json:"team_discount"`
	NewSubtotal       decimal.Decimal `json:"new_subtotal"`
	TotalDiscounts    decimal.Decimal `json:"total_discounts"`
	AfterDiscount     decimal.Decimal `json:"after_discount"`
	Fee               decimal.Decimal `json:"fee"`
	FinalTotal        decimal.Decimal `json:"final_total"`

	// Clamped reports that discounts exceeded the subtotal and the
	// total was floored at zero. Deficit holds the overshoot.
	Clamped bool            `json:"clamped,omitempty"`
	Deficit decimal.Decimal `json:"deficit,omitempty"`
}

// Compute derives the full pricing breakdown from a snapshot and the
// team roster size. It is pure: no I/O, no clock, no randomness. The
// step order below is a fixed contract shared with the client, which
// recomputes the same breakdown on every interaction; changing it
// changes which base percentage discounts apply against.
func Compute(state DiscountState, teamRosterSize int) Result {
	var result Result

	// 1. Sibling add-on and its 10% reduction.
	if state.SiblingAdded {
		result.SiblingAmount = state.CampPrice
		result.SiblingDiscount = state.CampPrice.Mul(siblingRate)
	}

	// 2. Team roster amount. The percentage only engages with a full roster.
	teamPct := state.TeamDiscountPct
	if teamRosterSize < teamRosterMinimum {
		teamPct = 0
	}
	if teamPct > 0 {
		result.TeamPlayersAmount = state.CampPrice.Mul(decimal.NewFromInt(int64(teamRosterSize)))
	}

	// 3. Team discount against camp + roster + sibling net of its discount.
	if teamPct > 0 {
		teamBase := state.CampPrice.
			Add(result.TeamPlayersAmount).
			Add(result.SiblingAmount).
			Sub(result.SiblingDiscount)
		result.TeamDiscount = teamBase.Mul(decimal.NewFromInt(teamPct)).Div(hundred)
	}

	// 4. Subtotal with every add-on applied.
	result.NewSubtotal = state.BaseSubtotal.
		Add(result.SiblingAmount).
		Add(result.TeamPlayersAmount).
		Add(state.UpgradeAmount)
	if state.JerseyAdded {
		result.NewSubtotal = result.NewSubtotal.Add(state.JerseyPrice)
	}
	if state.CareAdded {
		result.NewSubtotal = result.NewSubtotal.Add(state.CareAmount)
	}

	// 5. All discount programs stack additively.
	result.TotalDiscounts = state.BundleDiscount.
		Add(result.SiblingDiscount).
		Add(state.ReferralDiscount).
		Add(result.TeamDiscount)

	// 6. Floor at zero; the caller reports the deficit, it is never
	// silently swallowed.
	result.AfterDiscount = result.NewSubtotal.Sub(result.TotalDiscounts)
	if result.AfterDiscount.IsNegative() {
		result.Clamped = true
		result.Deficit = result.AfterDiscount.Neg()
		result.AfterDiscount = decimal.Zero
	}

	// 7. Processor fee, rounded half-up to cents.
	result.Fee = result.AfterDiscount.Mul(feeRate).Add(feeFlat).Round(2)

	// 8.
	result.FinalTotal = result.AfterDiscount.Add(result.Fee)

	return result
}

// Cents converts an exact amount to integer minor units for the
// payment processor boundary.
func Cents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts processor minor units back into an exact amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(hundred)
}

// RequiredSlots returns how many camp selections a pack upgrade needs
// before it may be confirmed. The all-access pass covers every camp,
// so nothing has to be picked.
func RequiredSlots(kind UpgradeKind) int {
	switch kind {
	case UpgradeTwoPack:
		return 2
	case UpgradeThreePack:
		return 3
	default:
		return 0
	}
}

// ValidTeamDiscountPct reports whether pct is an allowed team discount
// value. The program grants exactly one rate; anything else is a
// tampered snapshot.
func ValidTeamDiscountPct(pct int64) bool {
	return pct == 0 || pct == TeamDiscountPercent
}

// ValidUpgrade reports whether kind names a known pack upgrade.
func ValidUpgrade(kind UpgradeKind) bool {
	switch kind {
	case UpgradeNone, UpgradeTwoPack, UpgradeThreePack, UpgradeAllAccess:
		return true
	default:
		return false
	}
}
