package migration

import (
	"context"

	"github.com/smallbiznis/martpos/internal/config"
	"github.com/smallbiznis/martpos/internal/seed"
	"github.com/smallbiznis/martpos/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		log = log.Named("migration")

		if db.IsPostgres(cfg) {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else if err := AutoMigrate(conn); err != nil {
			return err
		}
		log.Info("schema ready", zap.String("database_type", cfg.DBType))

		created, err := seed.EnsureAdmin(context.Background(), conn, seed.AdminParams{
			Email:    cfg.Bootstrap.AdminEmail,
			Password: cfg.Bootstrap.AdminPassword,
		})
		if err != nil {
			return err
		}
		if created {
			log.Info("bootstrap admin created", zap.String("email", cfg.Bootstrap.AdminEmail))
		}
		return nil
	}),
)
