package camppack

import (
	"github.com/fieldpass/checkout/internal/config"
	"github.com/fieldpass/checkout/internal/pricing"
	"github.com/shopspring/decimal"
)

// Option is one purchasable pack upgrade with its committed pricing.
type Option struct {
	Kind   pricing.UpgradeKind
	Slots  int
	Amount decimal.Decimal
	Save   decimal.Decimal
}

// Catalog holds the pack upgrades currently on offer.
type Catalog struct {
	options map[pricing.UpgradeKind]Option
	order   []pricing.UpgradeKind
}

// NewCatalog builds a catalog from the hot-reloadable pricing config.
func NewCatalog(cfg config.CatalogConfig) Catalog {
	catalog := Catalog{options: make(map[pricing.UpgradeKind]Option, len(cfg.Packs))}
	for _, pack := range cfg.Packs {
		kind := pricing.UpgradeKind(pack.Kind)
		if !pricing.ValidUpgrade(kind) || kind == pricing.UpgradeNone {
			continue
		}
		catalog.options[kind] = Option{
			Kind:   kind,
			Slots:  pack.Slots,
			Amount: pricing.FromCents(pack.AmountCents),
			Save:   pricing.FromCents(pack.SaveCents),
		}
		catalog.order = append(catalog.order, kind)
	}
	return catalog
}

// Option looks up a pack upgrade by kind.
func (c Catalog) Option(kind pricing.UpgradeKind) (Option, bool) {
	option, ok := c.options[kind]
	return option, ok
}

// Options returns the offered upgrades in config order.
func (c Catalog) Options() []Option {
	options := make([]Option, 0, len(c.order))
	for _, kind := range c.order {
		options = append(options, c.options[kind])
	}
	return options
}
