package camppack

import (
	"errors"

	"github.com/fieldpass/checkout/internal/pricing"
)

// Phase is the selector's position in its lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePickerOpen Phase = "picker_open"
	PhaseConfirmed  Phase = "confirmed"
)

var (
	ErrUnknownUpgrade      = errors.New("unknown_upgrade")
	ErrNoCampsAvailable    = errors.New("no_camps_available")
	ErrPickerNotOpen       = errors.New("picker_not_open")
	ErrCampUnavailable     = errors.New("camp_unavailable")
	ErrSelectionIncomplete = errors.New("upgrade_selection_incomplete")
)

// Selector drives the pack upgrade picking flow. An upgrade that needs
// N camp slots must have exactly N camps chosen before it commits;
// anything less rolls back to no upgrade at all.
type Selector struct {
	catalog   Catalog
	available map[string]struct{}

	phase     Phase
	selected  pricing.UpgradeKind
	option    Option
	selection []string

	confirmedCamps  []string
	confirmedAmount Option
}

// NewSelector builds a selector over the catalog and the camps open
// for picking in this checkout.
func NewSelector(catalog Catalog, availableCamps []string) *Selector {
	available := make(map[string]struct{}, len(availableCamps))
	for _, id := range availableCamps {
		available[id] = struct{}{}
	}
	return &Selector{
		catalog:   catalog,
		available: available,
		phase:     PhaseIdle,
		selected:  pricing.UpgradeNone,
	}
}

// Phase returns the current lifecycle phase.
func (s *Selector) Phase() Phase {
	return s.phase
}

// Selected returns the upgrade currently chosen, committed or not.
func (s *Selector) Selected() pricing.UpgradeKind {
	return s.selected
}

// Selection returns a copy of the in-progress camp picks.
func (s *Selector) Selection() []string {
	picks := make([]string, len(s.selection))
	copy(picks, s.selection)
	return picks
}

// Select chooses an upgrade option. Choosing the already-selected
// option deselects it. Any previously confirmed picks are cleared
// before the new option takes effect.
func (s *Selector) Select(kind pricing.UpgradeKind) error {
	if kind == s.selected {
		s.reset()
		return nil
	}
	if kind == pricing.UpgradeNone {
		s.reset()
		return nil
	}

	option, ok := s.catalog.Option(kind)
	if !ok {
		s.reset()
		return ErrUnknownUpgrade
	}

	s.reset()

	if option.Slots == 0 {
		// Nothing to pick; the upgrade commits immediately.
		s.phase = PhaseConfirmed
		s.selected = kind
		s.option = option
		s.confirmedAmount = option
		return nil
	}

	if len(s.available) == 0 {
		// Never claim an upgrade is active with no valid camps behind it.
		return ErrNoCampsAvailable
	}

	s.phase = PhasePickerOpen
	s.selected = kind
	s.option = option
	s.selection = nil
	return nil
}

// Toggle flips a camp in or out of the in-progress selection. Adding
// beyond the slot bound is a no-op.
func (s *Selector) Toggle(campID string) error {
	if s.phase != PhasePickerOpen {
		return ErrPickerNotOpen
	}
	if _, ok := s.available[campID]; !ok {
		return ErrCampUnavailable
	}

	for i, id := range s.selection {
		if id == campID {
			s.selection = append(s.selection[:i], s.selection[i+1:]...)
			return nil
		}
	}
	if len(s.selection) >= s.option.Slots {
		return nil
	}
	s.selection = append(s.selection, campID)
	return nil
}

// Confirm commits the selection. It is only permitted once the
// selection fills every slot.
func (s *Selector) Confirm() error {
	if s.phase != PhasePickerOpen {
		return ErrPickerNotOpen
	}
	if len(s.selection) != s.option.Slots {
		return ErrSelectionIncomplete
	}

	s.confirmedCamps = make([]string, len(s.selection))
	copy(s.confirmedCamps, s.selection)
	s.confirmedAmount = s.option
	s.phase = PhaseConfirmed
	return nil
}

// Cancel closes the picker without confirming. A complete selection is
// kept and committed; an incomplete one rolls the upgrade back to none.
func (s *Selector) Cancel() {
	if s.phase != PhasePickerOpen {
		return
	}
	if len(s.selection) == s.option.Slots {
		_ = s.Confirm()
		return
	}
	s.reset()
}

// Apply writes the committed upgrade into a discount state snapshot.
func (s *Selector) Apply(state *pricing.DiscountState) {
	if s.phase != PhaseConfirmed {
		state.UpgradeSelected = pricing.UpgradeNone
		state.UpgradeAmount = pricing.FromCents(0)
		state.UpgradeSave = pricing.FromCents(0)
		state.UpgradeCamps = nil
		return
	}
	state.UpgradeSelected = s.selected
	state.UpgradeAmount = s.confirmedAmount.Amount
	state.UpgradeSave = s.confirmedAmount.Save
	state.UpgradeCamps = make([]string, len(s.confirmedCamps))
	copy(state.UpgradeCamps, s.confirmedCamps)
}

func (s *Selector) reset() {
	s.phase = PhaseIdle
	s.selected = pricing.UpgradeNone
	s.option = Option{}
	s.selection = nil
	s.confirmedCamps = nil
	s.confirmedAmount = Option{}
}

// ValidateState enforces the completeness rule on a snapshot at
// submission time: a pack upgrade that needs N slots must carry
// exactly N camp ids. It never downgrades silently.
func ValidateState(state pricing.DiscountState) error {
	if state.UpgradeSelected == pricing.UpgradeNone || state.UpgradeSelected == "" {
		return nil
	}
	if !pricing.ValidUpgrade(state.UpgradeSelected) {
		return ErrUnknownUpgrade
	}
	required := pricing.RequiredSlots(state.UpgradeSelected)
	if required > 0 && len(state.UpgradeCamps) != required {
		return ErrSelectionIncomplete
	}
	return nil
}
