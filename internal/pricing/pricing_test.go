package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(value string) decimal.Decimal {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestComputeBaseRegistration(t *testing.T) {
	state := DiscountState{
		BaseSubtotal:    amount("400"),
		CampPrice:       amount("400"),
		UpgradeSelected: UpgradeNone,
	}

	result := Compute(state, 0)

	assert.True(t, result.AfterDiscount.Equal(amount("400")), "after discount %s", result.AfterDiscount)
	assert.True(t, result.Fee.Equal(amount("12.30")), "fee %s", result.Fee)
	assert.True(t, result.FinalTotal.Equal(amount("412.30")), "final total %s", result.FinalTotal)
	assert.False(t, result.Clamped)
}

func TestComputeSiblingAddOn(t *testing.T) {
	state := DiscountState{
		BaseSubtotal:    amount("400"),
		CampPrice:       amount("400"),
		SiblingAdded:    true,
		UpgradeSelected: UpgradeNone,
	}

	result := Compute(state, 0)

	assert.True(t, result.SiblingAmount.Equal(amount("400")))
	assert.True(t, result.SiblingDiscount.Equal(amount("40")))
	assert.True(t, result.NewSubtotal.Equal(amount("800")))
	assert.True(t, result.TotalDiscounts.Equal(amount("40")))
	assert.True(t, result.AfterDiscount.Equal(amount("760")))
	assert.True(t, result.Fee.Equal(amount("23.10")), "fee %s", result.Fee)
	assert.True(t, result.FinalTotal.Equal(amount("783.10")), "final total %s", result.FinalTotal)
}

func TestComputeTeamDiscount(t *testing.T) {
	state := DiscountState{
		BaseSubtotal:    amount("400"),
		CampPrice:       amount("400"),
		TeamDiscountPct: 15,
		UpgradeSelected: UpgradeNone,
	}

	result := Compute(state, 5)

	assert.True(t, result.TeamPlayersAmount.Equal(amount("2000")))
	assert.True(t, result.TeamDiscount.Equal(amount("360")), "team discount %s", result.TeamDiscount)
	assert.True(t, result.NewSubtotal.Equal(amount("2400")))
	assert.True(t, result.AfterDiscount.Equal(amount("2040")))
	assert.True(t, result.Fee.Equal(amount("61.50")), "fee %s", result.Fee)
	assert.True(t, result.FinalTotal.Equal(amount("2101.50")))
}

func TestComputeTeamDiscountNeedsFullRoster(t *testing.T) {
	state := DiscountState{
		BaseSubtotal:    amount("400"),
		CampPrice:       amount("400"),
		TeamDiscountPct: 15,
		UpgradeSelected: UpgradeNone,
	}

	result := Compute(state, 4)

	assert.True(t, result.TeamPlayersAmount.IsZero())
	assert.True(t, result.TeamDiscount.IsZero())
	assert.True(t, result.FinalTotal.Equal(amount("412.30")))
}

func TestComputeStacksAllPrograms(t *testing.T) {
	state := DiscountState{
		BaseSubtotal:     amount("400"),
		CampPrice:        amount("400"),
		BundleDiscount:   amount("50"),
		SiblingAdded:     true,
		ReferralDiscount: amount("25"),
		TeamDiscountPct:  15,
		UpgradeSelected:  UpgradeTwoPack,
		UpgradeAmount:    amount("649"),
		UpgradeSave:      amount("99"),
		UpgradeCamps:     []string{"camp-a", "camp-b"},
		JerseyAdded:      true,
		JerseyPrice:      amount("35"),
		CareAdded:        true,
		CareAmount:       amount("60"),
	}

	result := Compute(state, 6)

	// sibling 400 / 40; roster 6*400 = 2400
	assert.True(t, result.SiblingAmount.Equal(amount("400")))
	assert.True(t, result.SiblingDiscount.Equal(amount("40")))
	assert.True(t, result.TeamPlayersAmount.Equal(amount("2400")))
	// team base = 400 + 2400 + 400 - 40 = 3160; 15% = 474
	assert.True(t, result.TeamDiscount.Equal(amount("474")), "team discount %s", result.TeamDiscount)
	// subtotal = 400 + 400 + 2400 + 35 + 649 + 60 = 3944
	assert.True(t, result.NewSubtotal.Equal(amount("3944")))
	// discounts = 50 + 40 + 25 + 474 = 589
	assert.True(t, result.TotalDiscounts.Equal(amount("589")))
	assert.True(t, result.AfterDiscount.Equal(amount("3355")))
	// fee = 3355*0.03 + 0.30 = 100.95
	assert.True(t, result.Fee.Equal(amount("100.95")), "fee %s", result.Fee)
	assert.True(t, result.FinalTotal.Equal(amount("3455.95")))
}

func TestComputeClampsNegativeTotal(t *testing.T) {
	state := DiscountState{
		BaseSubtotal:     amount("20"),
		CampPrice:        amount("20"),
		ReferralDiscount: amount("25"),
		UpgradeSelected:  UpgradeNone,
	}

	result := Compute(state, 0)

	assert.True(t, result.Clamped)
	assert.True(t, result.Deficit.Equal(amount("5")), "deficit %s", result.Deficit)
	assert.True(t, result.AfterDiscount.IsZero())
	assert.True(t, result.Fee.Equal(amount("0.30")), "fee %s", result.Fee)
	assert.True(t, result.FinalTotal.Equal(amount("0.30")))
}

func TestComputeFeeRoundsHalfUp(t *testing.T) {
	// after = 100.50 -> fee = 3.015 + 0.30 = 3.315 -> 3.32
	state := DiscountState{
		BaseSubtotal:    amount("100.50"),
		CampPrice:       amount("100.50"),
		UpgradeSelected: UpgradeNone,
	}

	result := Compute(state, 0)

	assert.True(t, result.Fee.Equal(amount("3.32")), "fee %s", result.Fee)
}

func TestComputeDeterministic(t *testing.T) {
	state := DiscountState{
		BaseSubtotal:     amount("400"),
		CampPrice:        amount("400"),
		SiblingAdded:     true,
		ReferralDiscount: amount("25"),
		TeamDiscountPct:  15,
		UpgradeSelected:  UpgradeThreePack,
		UpgradeAmount:    amount("899"),
		UpgradeCamps:     []string{"a", "b", "c"},
	}

	first := Compute(state, 7)
	for i := 0; i < 50; i++ {
		again := Compute(state, 7)
		require.True(t, again.FinalTotal.Equal(first.FinalTotal))
		require.True(t, again.Fee.Equal(first.Fee))
		require.True(t, again.TotalDiscounts.Equal(first.TotalDiscounts))
	}
}

func TestCentsRoundTrip(t *testing.T) {
	assert.Equal(t, int64(41230), Cents(amount("412.30")))
	assert.Equal(t, int64(30), Cents(amount("0.30")))
	assert.True(t, FromCents(78310).Equal(amount("783.10")))
}

func TestRequiredSlots(t *testing.T) {
	assert.Equal(t, 2, RequiredSlots(UpgradeTwoPack))
	assert.Equal(t, 3, RequiredSlots(UpgradeThreePack))
	assert.Equal(t, 0, RequiredSlots(UpgradeAllAccess))
	assert.Equal(t, 0, RequiredSlots(UpgradeNone))
}
