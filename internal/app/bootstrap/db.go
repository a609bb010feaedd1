// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"

	"github.com/dalemusser/esiagate/internal/app/store"
	"github.com/dalemusser/esiagate/internal/app/system/timeouts"
)

// ConnectDB opens the PostgreSQL pool and verifies connectivity with a
// ping before the app continues booting.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	db, err := store.Open(appCfg.PostgresDSN)
	if err != nil {
		logger.Error("postgres open failed", zap.Error(err))
		return DBDeps{}, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		logger.Error("postgres ping failed", zap.Error(err))
		_ = db.Close()
		return DBDeps{}, err
	}

	logger.Info("connected to PostgreSQL")
	return DBDeps{DB: db}, nil
}

// EnsureSchema applies pending schema migrations on startup.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := store.Migrate(ctx, deps.DB); err != nil {
		logger.Error("schema migration failed", zap.Error(err))
		return err
	}
	logger.Info("schema is up to date")
	return nil
}
