package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PackOption is one camp-pack upgrade row in the pricing table.
type PackOption struct {
	Kind        string `mapstructure:"kind"`
	Slots       int    `mapstructure:"slots"`
	AmountCents int64  `mapstructure:"amountCents"`
	SaveCents   int64  `mapstructure:"saveCents"`
}

// ReferralPolicy configures referral code issuance and redemption.
type ReferralPolicy struct {
	DiscountCents int64 `mapstructure:"discountCents"`
	MaxUses       int   `mapstructure:"maxUses"`
}

// CatalogConfig is the business pricing table: camp-pack upgrades and
// the referral program amounts. Reloaded at runtime when catalog.yml changes.
type CatalogConfig struct {
	Packs    []PackOption   `mapstructure:"packs"`
	Referral ReferralPolicy `mapstructure:"referral"`
}

func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Packs: []PackOption{
			{Kind: "2pack", Slots: 2, AmountCents: 64_900, SaveCents: 9_900},
			{Kind: "3pack", Slots: 3, AmountCents: 89_900, SaveCents: 19_900},
			{Kind: "allaccess", Slots: 0, AmountCents: 119_900, SaveCents: 39_900},
		},
		Referral: ReferralPolicy{
			DiscountCents: 2_500,
			MaxUses:       10,
		},
	}
}

// CatalogHolder hands out the current catalog snapshot.
type CatalogHolder struct {
	current atomic.Value // holds CatalogConfig
}

func NewCatalogHolder() (*CatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("catalog")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/fieldpass/config")
	v.AddConfigPath("/etc/fieldpass")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FIELDPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultCatalogConfig()
		v.SetDefault("catalog.packs", defaults.Packs)
		v.SetDefault("catalog.referral", defaults.Referral)
	}

	var cfg CatalogConfig
	if err := v.UnmarshalKey("catalog", &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Packs) == 0 {
		cfg = DefaultCatalogConfig()
	}
	if err := validateCatalogConfig(cfg); err != nil {
		return nil, err
	}

	holder := &CatalogHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CatalogConfig
		if err := v.UnmarshalKey("catalog", &updated); err != nil {
			log.Printf("[catalog-config] reload failed: %v", err)
			return
		}
		if err := validateCatalogConfig(updated); err != nil {
			log.Printf("[catalog-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[catalog-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *CatalogHolder) Get() CatalogConfig {
	return h.current.Load().(CatalogConfig)
}

// NewStaticCatalogHolder wraps a fixed catalog, used by tests.
func NewStaticCatalogHolder(cfg CatalogConfig) *CatalogHolder {
	holder := &CatalogHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateCatalogConfig(cfg CatalogConfig) error {
	if len(cfg.Packs) == 0 {
		return errors.New("catalog.packs cannot be empty")
	}
	for _, pack := range cfg.Packs {
		if strings.TrimSpace(pack.Kind) == "" {
			return errors.New("catalog.packs entries require a kind")
		}
		if pack.Slots < 0 {
			return errors.New("catalog.packs slots cannot be negative")
		}
		if pack.AmountCents < 0 || pack.SaveCents < 0 {
			return errors.New("catalog.packs amounts cannot be negative")
		}
	}
	if cfg.Referral.DiscountCents < 0 {
		return errors.New("catalog.referral discount cannot be negative")
	}
	return nil
}
