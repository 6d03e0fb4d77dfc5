package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/localcart/pkg/config"
	"github.com/angelmondragon/localcart/pkg/db"
	"github.com/angelmondragon/localcart/pkg/logger"
)

// MaybeAutoRun applies the embedded migrations at boot when the auto-migrate
// flag is on. The local cart database is owned by the daemon, so this is the
// default outside of production.
func MaybeAutoRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dialect": client.Dialect()})
	logg.Info(ctx, "applying embedded migrations")

	version, err := Apply(ctx, sqlDB, client.Dialect())
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	logg.Info(logg.WithField(ctx, "schema_version", version), "migrations applied")
	return nil
}
