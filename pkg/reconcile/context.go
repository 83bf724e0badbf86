// Package reconcile drives the periodic ledger passes: lock weight
// reconciliation, pending transaction confirmation, and user balance
// refresh. Every pass is idempotent and monotone in chain height, so
// overlapping triggers need no coordination.
package reconcile

import (
	"runtime"
	"sync"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	ledgerstore "github.com/boostfeed/stakeledger/pkg/db/ledger"
	"github.com/boostfeed/stakeledger/pkg/decay"
	"github.com/boostfeed/stakeledger/pkg/oracle"
)

const (
	// DefaultBatchSize bounds one page of locks or pending transactions.
	DefaultBatchSize = 500

	maxPoolWorkers = 32
)

// Context carries the shared dependencies for reconciliation passes.
type Context struct {
	Logger *zap.Logger
	Store  ledgerstore.Store
	Oracle oracle.Client
	Curve  decay.Curve

	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int
	// MaxParallelism overrides the default recompute pool size.
	MaxParallelism int

	poolOnce sync.Once
	pool     pond.Pool
}

func (c *Context) batchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return DefaultBatchSize
}

// recomputePool returns a shared worker pool for post aggregate recomputes.
// Pool size defaults to two workers per CPU, capped.
func (c *Context) recomputePool() pond.Pool {
	c.poolOnce.Do(func() {
		workers := c.MaxParallelism
		if workers <= 0 {
			workers = runtime.NumCPU() * 2
		}
		if workers > maxPoolWorkers {
			workers = maxPoolWorkers
		}
		c.pool = pond.NewPool(workers)
	})
	return c.pool
}
