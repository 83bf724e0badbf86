package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/boostfeed/stakeledger/pkg/db/clickhouse"
	ledgermodels "github.com/boostfeed/stakeledger/pkg/db/models/ledger"
)

// initTransactions creates the transactions table. confirmed_height is the
// version column: pending rows carry 0, so the confirmed re-insert always
// supersedes them and a replayed confirmation is a no-op.
func (db *DB) initTransactions(ctx context.Context) error {
	schemaSQL := ledgermodels.ColumnsToSchemaSQL(ledgermodels.TransactionColumns)

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			%s
		) ENGINE = %s
		ORDER BY (txid)
	`, db.Name, ledgermodels.TransactionsTableName, schemaSQL, clickhouse.Engine(clickhouse.ReplacingMergeTree, "confirmed_height"))
	if err := db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", ledgermodels.TransactionsTableName, err)
	}

	return nil
}

// InsertTransactions persists newly observed stake transactions as pending.
func (db *DB) InsertTransactions(ctx context.Context, txns []*ledgermodels.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO "%s"."%s" (%s) VALUES`,
		db.Name, ledgermodels.TransactionsTableName, ledgermodels.ColumnsToNameList(ledgermodels.TransactionColumns))
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, txn := range txns {
		err = batch.Append(
			txn.ID,
			txn.UserID,
			txn.PostID,
			txn.Txid,
			txn.Confirmed,
			txn.ConfirmedHeight,
			txn.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

// PendingTransactions returns unconfirmed transactions oldest first, capped
// at limit so a single confirmation pass stays bounded.
func (db *DB) PendingTransactions(ctx context.Context, limit int) ([]*ledgermodels.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, post_id, txid, confirmed, confirmed_height, created_at
		FROM "%s"."%s" FINAL
		WHERE confirmed = 0
		ORDER BY created_at ASC
		LIMIT ?
	`, db.Name, ledgermodels.TransactionsTableName)

	rows, err := db.Db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending transactions: %w", err)
	}
	defer rows.Close()

	var txns []*ledgermodels.Transaction
	for rows.Next() {
		var t ledgermodels.Transaction
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.PostID,
			&t.Txid,
			&t.Confirmed,
			&t.ConfirmedHeight,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, &t)
	}
	return txns, rows.Err()
}

// ConfirmTransaction re-inserts the row as confirmed at the given height.
// ReplacingMergeTree keeps the version with the highest confirmed_height, so
// the pending row (version 0) is collapsed away on the next merge.
func (db *DB) ConfirmTransaction(ctx context.Context, txn *ledgermodels.Transaction, height uint64) error {
	confirmed := &ledgermodels.Transaction{
		ID:              txn.ID,
		UserID:          txn.UserID,
		PostID:          txn.PostID,
		Txid:            txn.Txid,
		Confirmed:       1,
		ConfirmedHeight: height,
		CreatedAt:       txn.CreatedAt,
	}
	if confirmed.CreatedAt.IsZero() {
		confirmed.CreatedAt = time.Now().UTC()
	}
	return db.InsertTransactions(ctx, []*ledgermodels.Transaction{confirmed})
}
