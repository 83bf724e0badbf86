// Package ledger implements the persistence layer for locks, posts,
// transactions, and user snapshots on top of ClickHouse.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/boostfeed/stakeledger/pkg/db/clickhouse"
	"github.com/boostfeed/stakeledger/pkg/utils"
)

// DB is the stake ledger database. Every table is a ReplacingMergeTree
// versioned by a monotonically non-decreasing column, so reconciliation
// writes are last-write-wins upserts and need no cross-row transaction.
// It implements Store.
type DB struct {
	clickhouse.Client
	Name string
}

// New connects to ClickHouse and ensures the ledger schema exists.
func New(ctx context.Context, logger *zap.Logger) (*DB, error) {
	dbName := clickhouse.SanitizeName(utils.Env("LEDGER_DB", "stakeledger"))

	client, err := clickhouse.New(ctx, logger.With(zap.String("db", dbName)), dbName)
	if err != nil {
		return nil, err
	}

	db := &DB{
		Client: client,
		Name:   dbName,
	}

	if err := db.InitializeDB(ctx); err != nil {
		return nil, err
	}

	return db, nil
}

// Close terminates the underlying ClickHouse connection.
func (db *DB) Close() error {
	return db.Db.Close()
}

// GetConnection returns the raw driver connection.
func (db *DB) GetConnection() driver.Conn {
	return db.Db
}

// DatabaseName returns the ClickHouse database backing the ledger.
func (db *DB) DatabaseName() string {
	return db.Name
}

// Ping checks the backend connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.Db.Ping(ctx)
}

// Exec executes an arbitrary query against the ledger database.
func (db *DB) Exec(ctx context.Context, query string, args ...any) error {
	return db.Db.Exec(ctx, query, args...)
}

// InitializeDB ensures the required database and tables exist. Table inits
// are independent, so they run in parallel.
func (db *DB) InitializeDB(ctx context.Context) error {
	if err := db.CreateDbIfNotExists(ctx, db.Name); err != nil {
		return fmt.Errorf("failed to create database %s: %w", db.Name, err)
	}

	initOps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"locks", db.initLocks},
		{"posts", db.initPosts},
		{"transactions", db.initTransactions},
		{"users", db.initUsers},
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(initOps))

	for _, op := range initOps {
		wg.Add(1)
		go func(name string, fn func(context.Context) error) {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errChan <- fmt.Errorf("init %s: %w", name, err)
			}
		}(op.name, op.fn)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		return err
	}

	db.Logger.Info("Ledger database initialized", zap.String("database", db.Name))
	return nil
}
