package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/boostfeed/stakeledger/app/ledger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := ledger.Initialize(ctx)
	if err != nil {
		panic(err)
	}

	// Immediate pass before cron
	ledger.SyncOnce(ctx, app)

	// Start cron scheduler
	ledger.StartCron(app)

	// Setup server
	if err := ledger.NewServer(app); err != nil {
		panic(err)
	}

	// Start server
	app.Start(ctx)
}
