package db

import (
	"context"
	"fmt"

	"github.com/putrabttart/dropstore-backend/pkg/config"
	"github.com/putrabttart/dropstore-backend/pkg/db/models"
	"github.com/putrabttart/dropstore-backend/pkg/logger"
)

// MaybeAutoMigrate syncs the schema automatically when the app runs in dev
// mode and the feature flag is enabled.
func MaybeAutoMigrate(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "running schema auto-migration (dev auto-run)")

	if err := client.DB().WithContext(ctx).AutoMigrate(
		&models.Product{},
		&models.Item{},
		&models.Reservation{},
	); err != nil {
		return fmt.Errorf("auto-migrating schema: %w", err)
	}

	logg.Info(ctx, "schema auto-migration completed")
	return nil
}
