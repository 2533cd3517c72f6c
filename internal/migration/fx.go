package migration

import (
	"github.com/fieldpass/checkout/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The embedded migrations are written for postgres. Tests run
		// against sqlite and migrate via AutoMigrate instead.
		if cfg.DBType != "postgres" && cfg.DBType != "" {
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		return RunMigrations(sqlDB)
	}),
)
