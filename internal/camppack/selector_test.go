package camppack

import (
	"testing"

	"github.com/fieldpass/checkout/internal/config"
	"github.com/fieldpass/checkout/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() Catalog {
	return NewCatalog(config.CatalogConfig{
		Packs: []config.PackOption{
			{Kind: "2pack", Slots: 2, AmountCents: 64900, SaveCents: 9900},
			{Kind: "3pack", Slots: 3, AmountCents: 89900, SaveCents: 19900},
			{Kind: "allaccess", Slots: 0, AmountCents: 119900, SaveCents: 39900},
		},
	})
}

func TestSelectOpensPicker(t *testing.T) {
	s := NewSelector(testCatalog(), []string{"camp-a", "camp-b", "camp-c"})

	require.NoError(t, s.Select(pricing.UpgradeTwoPack))
	assert.Equal(t, PhasePickerOpen, s.Phase())
	assert.Equal(t, pricing.UpgradeTwoPack, s.Selected())
	assert.Empty(t, s.Selection())
}

func TestSelectAllAccessConfirmsImmediately(t *testing.T) {
	s := NewSelector(testCatalog(), nil)

	require.NoError(t, s.Select(pricing.UpgradeAllAccess))
	assert.Equal(t, PhaseConfirmed, s.Phase())

	var state pricing.DiscountState
	s.Apply(&state)
	assert.Equal(t, pricing.UpgradeAllAccess, state.UpgradeSelected)
	assert.True(t, state.UpgradeAmount.Equal(pricing.FromCents(119900)))
	assert.Empty(t, state.UpgradeCamps)
}

func TestSelectWithNoCampsFailsBack(t *testing.T) {
	s := NewSelector(testCatalog(), nil)

	err := s.Select(pricing.UpgradeTwoPack)
	assert.ErrorIs(t, err, ErrNoCampsAvailable)
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Equal(t, pricing.UpgradeNone, s.Selected())
}

func TestToggleBoundedBySlots(t *testing.T) {
	s := NewSelector(testCatalog(), []string{"camp-a", "camp-b", "camp-c"})
	require.NoError(t, s.Select(pricing.UpgradeTwoPack))

	require.NoError(t, s.Toggle("camp-a"))
	require.NoError(t, s.Toggle("camp-b"))
	// third add is a no-op, not an error
	require.NoError(t, s.Toggle("camp-c"))
	assert.Equal(t, []string{"camp-a", "camp-b"}, s.Selection())

	// toggling a member removes it
	require.NoError(t, s.Toggle("camp-a"))
	assert.Equal(t, []string{"camp-b"}, s.Selection())
}

func TestToggleRejectsUnavailableCamp(t *testing.T) {
	s := NewSelector(testCatalog(), []string{"camp-a"})
	require.NoError(t, s.Select(pricing.UpgradeTwoPack))

	assert.ErrorIs(t, s.Toggle("camp-z"), ErrCampUnavailable)
}

func TestConfirmRequiresFullSelection(t *testing.T) {
	s := NewSelector(testCatalog(), []string{"camp-a", "camp-b"})
	require.NoError(t, s.Select(pricing.UpgradeTwoPack))
	require.NoError(t, s.Toggle("camp-a"))

	assert.ErrorIs(t, s.Confirm(), ErrSelectionIncomplete)

	require.NoError(t, s.Toggle("camp-b"))
	require.NoError(t, s.Confirm())
	assert.Equal(t, PhaseConfirmed, s.Phase())

	var state pricing.DiscountState
	s.Apply(&state)
	assert.Equal(t, []string{"camp-a", "camp-b"}, state.UpgradeCamps)
	assert.True(t, state.UpgradeAmount.Equal(pricing.FromCents(64900)))
	assert.True(t, state.UpgradeSave.Equal(pricing.FromCents(9900)))
}

func TestCancelIncompleteRollsBackToNone(t *testing.T) {
	s := NewSelector(testCatalog(), []string{"camp-a", "camp-b"})
	require.NoError(t, s.Select(pricing.UpgradeTwoPack))
	require.NoError(t, s.Toggle("camp-a"))

	s.Cancel()
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Equal(t, pricing.UpgradeNone, s.Selected())

	var state pricing.DiscountState
	s.Apply(&state)
	assert.Equal(t, pricing.UpgradeNone, state.UpgradeSelected)
	assert.Empty(t, state.UpgradeCamps)
}

func TestCancelCompleteSelectionCommits(t *testing.T) {
	s := NewSelector(testCatalog(), []string{"camp-a", "camp-b"})
	require.NoError(t, s.Select(pricing.UpgradeTwoPack))
	require.NoError(t, s.Toggle("camp-a"))
	require.NoError(t, s.Toggle("camp-b"))

	s.Cancel()
	assert.Equal(t, PhaseConfirmed, s.Phase())
}

func TestReselectClearsConfirmedPicks(t *testing.T) {
	s := NewSelector(testCatalog(), []string{"camp-a", "camp-b", "camp-c"})
	require.NoError(t, s.Select(pricing.UpgradeTwoPack))
	require.NoError(t, s.Toggle("camp-a"))
	require.NoError(t, s.Toggle("camp-b"))
	require.NoError(t, s.Confirm())

	require.NoError(t, s.Select(pricing.UpgradeThreePack))
	assert.Equal(t, PhasePickerOpen, s.Phase())
	assert.Empty(t, s.Selection())

	// toggling the active option off returns to idle
	require.NoError(t, s.Select(pricing.UpgradeThreePack))
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Equal(t, pricing.UpgradeNone, s.Selected())
}

func TestValidateStateBlocksIncompletePack(t *testing.T) {
	state := pricing.DiscountState{
		UpgradeSelected: pricing.UpgradeTwoPack,
		UpgradeCamps:    []string{"camp-a"},
	}
	assert.ErrorIs(t, ValidateState(state), ErrSelectionIncomplete)

	state.UpgradeCamps = []string{"camp-a", "camp-b"}
	assert.NoError(t, ValidateState(state))

	state = pricing.DiscountState{UpgradeSelected: pricing.UpgradeAllAccess}
	assert.NoError(t, ValidateState(state))

	state = pricing.DiscountState{UpgradeSelected: pricing.UpgradeNone}
	assert.NoError(t, ValidateState(state))

	state = pricing.DiscountState{UpgradeSelected: "megapack"}
	assert.ErrorIs(t, ValidateState(state), ErrUnknownUpgrade)
}
