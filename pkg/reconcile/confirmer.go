package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ConfirmSummary reports the outcome of one confirmation pass.
type ConfirmSummary struct {
	Processed  int     `json:"processed"`
	Confirmed  int     `json:"confirmed"`
	Failed     int     `json:"failed"`
	DurationMs float64 `json:"durationMs"`
}

// ConfirmPending scans pending transactions oldest first and asks the chain
// provider for their confirmation counts. At least one confirmation promotes
// the transaction to confirmed at the given height snapshot; zero leaves it
// pending for the next pass; a provider or write error counts as failed and
// the pass moves on. A transaction only ever moves pending to confirmed.
func (c *Context) ConfirmPending(ctx context.Context, height uint64) (*ConfirmSummary, error) {
	start := time.Now()

	pending, err := c.Store.PendingTransactions(ctx, c.batchSize())
	if err != nil {
		return nil, fmt.Errorf("load pending transactions: %w", err)
	}

	summary := &ConfirmSummary{}
	for _, txn := range pending {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		summary.Processed++

		confirmations, err := c.Oracle.TxConfirmations(ctx, txn.Txid)
		if err != nil {
			summary.Failed++
			c.Logger.Warn("confirmation lookup failed",
				zap.String("txid", txn.Txid),
				zap.Error(err),
			)
			continue
		}
		if confirmations == 0 {
			// Still in the mempool, or unknown to the provider. Leave it.
			continue
		}

		if err := c.Store.ConfirmTransaction(ctx, txn, height); err != nil {
			summary.Failed++
			c.Logger.Warn("failed to persist confirmation",
				zap.String("txid", txn.Txid),
				zap.Uint64("height", height),
				zap.Error(err),
			)
			continue
		}
		summary.Confirmed++
	}

	summary.DurationMs = float64(time.Since(start).Microseconds()) / 1000.0
	c.Logger.Info("Confirmation pass complete",
		zap.Uint64("height", height),
		zap.Int("processed", summary.Processed),
		zap.Int("confirmed", summary.Confirmed),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}
