package types

import (
	"context"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	ledgerstore "github.com/boostfeed/stakeledger/pkg/db/ledger"
	"github.com/boostfeed/stakeledger/pkg/heightcache"
	"github.com/boostfeed/stakeledger/pkg/oracle"
	"github.com/boostfeed/stakeledger/pkg/reconcile"
	"github.com/boostfeed/stakeledger/pkg/redis"
)

// App wires the stake ledger service together: the ClickHouse-backed store,
// the Redis height cache, the chain oracle, and the reconciliation engine.
type App struct {
	LedgerDB    ledgerstore.Store
	RedisClient *redis.Client
	Oracle      oracle.Client
	Heights     *heightcache.Cache
	Reconciler  *reconcile.Context

	// Cron drives the periodic sync pass according to CronSpec; each run is
	// bounded by SyncBudget.
	Cron       *cron.Cron
	CronSpec   string
	SyncBudget time.Duration

	// BlockInterval is the network's average block time, used only for the
	// secondsUntilNextBlock estimate on the height endpoint.
	BlockInterval time.Duration

	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// SyncResult is the combined outcome of one full sync pass.
type SyncResult struct {
	Success         bool      `json:"success"`
	Height          uint64    `json:"height"`
	HeightStale     bool      `json:"heightStale"`
	Processed       int       `json:"processed"`
	Confirmed       int       `json:"confirmed"`
	Failed          int       `json:"failed"`
	LocksUpdated    int       `json:"locksUpdated"`
	PostsRecomputed int       `json:"postsRecomputed"`
	DurationMs      float64   `json:"durationMs"`
	Timestamp       time.Time `json:"timestamp"`
}

// Sync runs one full pass: refresh the height snapshot, confirm pending
// transactions, reconcile lock weights, then refresh the balances of every
// affected user. Passes are idempotent and monotone in height, so concurrent
// invocations (cron tick plus manual trigger) are safe without locking.
func (a *App) Sync(ctx context.Context) (*SyncResult, error) {
	start := time.Now()

	// A stale height still drives a correct pass; the pass just recomputes
	// against a slightly older snapshot.
	head, err := a.Heights.GetHeight(ctx)
	if err != nil {
		return nil, err
	}

	conf, err := a.Reconciler.ConfirmPending(ctx, head.Height)
	if err != nil {
		return nil, err
	}

	rec, err := a.Reconciler.Reconcile(ctx, head.Height)
	if err != nil {
		return nil, err
	}

	a.Reconciler.RefreshBalances(ctx, rec.AffectedUsers, head.Height)

	return &SyncResult{
		Success:         true,
		Height:          head.Height,
		HeightStale:     head.Stale,
		Processed:       conf.Processed,
		Confirmed:       conf.Confirmed,
		Failed:          conf.Failed,
		LocksUpdated:    rec.LocksUpdated,
		PostsRecomputed: rec.PostsRecomputed,
		DurationMs:      float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:       time.Now().UTC(),
	}, nil
}

// Start starts the application.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}

	if err := a.LedgerDB.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}

	_ = a.Server.Shutdown(shutdownCtx)
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
