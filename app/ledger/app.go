// Package ledger assembles the stake ledger service: the periodic sync
// scheduler plus the HTTP API.
package ledger

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/boostfeed/stakeledger/app/ledger/types"
	ledgerdb "github.com/boostfeed/stakeledger/pkg/db/ledger"
	"github.com/boostfeed/stakeledger/pkg/decay"
	"github.com/boostfeed/stakeledger/pkg/heightcache"
	"github.com/boostfeed/stakeledger/pkg/logging"
	"github.com/boostfeed/stakeledger/pkg/oracle"
	"github.com/boostfeed/stakeledger/pkg/reconcile"
	"github.com/boostfeed/stakeledger/pkg/redis"
	"github.com/boostfeed/stakeledger/pkg/utils"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) (*types.App, error) {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	db, err := ledgerdb.New(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to initialize ledger database", zap.Error(err))
	}

	redisClient, err := redis.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to initialize Redis client", zap.Error(err))
	}

	orc := oracle.NewFromEnv()

	heightStore := heightcache.NewRedisStore(redisClient)
	heights := heightcache.New(orc, heightStore, heightStore, logger)

	reconciler := &reconcile.Context{
		Logger:    logger,
		Store:     db,
		Oracle:    orc,
		Curve:     decay.Linear{},
		BatchSize: utils.EnvInt("SYNC_BATCH_SIZE", 0),
	}

	app := &types.App{
		LedgerDB:      db,
		RedisClient:   redisClient,
		Oracle:        orc,
		Heights:       heights,
		Reconciler:    reconciler,
		CronSpec:      utils.Env("SYNC_CRON", "*/30 * * * * *"),
		SyncBudget:    utils.EnvDuration("SYNC_BUDGET", 25*time.Second),
		BlockInterval: utils.EnvDuration("BLOCK_INTERVAL", 20*time.Second),
		Logger:        logger,
	}

	if err := SetupScheduler(ctx, app); err != nil {
		return nil, err
	}

	return app, nil
}

// SetupScheduler sets up the cron scheduler for the periodic sync pass.
func SetupScheduler(ctx context.Context, app *types.App) error {
	// Seconds field enabled, panics recovered per tick
	app.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	_, err := app.Cron.AddFunc(app.CronSpec, func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(ctx, app.SyncBudget)
		defer cancel()
		if _, err := app.Sync(rctx); err != nil {
			app.Logger.Warn("scheduled sync pass failed", zap.Error(err))
		}
	})
	return err
}

// StartCron starts the cron scheduler.
func StartCron(app *types.App) {
	app.Cron.Start()
	app.Logger.Info("Sync scheduler started", zap.String("cronSpec", app.CronSpec))
}

// SyncOnce runs an immediate sync pass, logging rather than propagating
// failure. Used at boot so a freshly started instance converges right away.
func SyncOnce(ctx context.Context, app *types.App) {
	rctx, cancel := context.WithTimeout(ctx, app.SyncBudget)
	defer cancel()
	if _, err := app.Sync(rctx); err != nil {
		app.Logger.Warn("initial sync pass failed", zap.Error(err))
	}
}
