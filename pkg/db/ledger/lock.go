package ledger

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/boostfeed/stakeledger/pkg/db/clickhouse"
	ledgermodels "github.com/boostfeed/stakeledger/pkg/db/models/ledger"
)

// initLocks creates the locks table. ORDER BY id makes the id the dedup key;
// the height version column keeps the newest computed row per lock.
func (db *DB) initLocks(ctx context.Context) error {
	schemaSQL := ledgermodels.ColumnsToSchemaSQL(ledgermodels.LockColumns)

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			%s
		) ENGINE = %s
		ORDER BY (id)
	`, db.Name, ledgermodels.LocksTableName, schemaSQL, clickhouse.Engine(clickhouse.ReplacingMergeTree, "height"))
	if err := db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", ledgermodels.LocksTableName, err)
	}

	return nil
}

// InsertLocks persists a batch of lock rows (new locks or reconciled versions).
func (db *DB) InsertLocks(ctx context.Context, locks []*ledgermodels.Lock) error {
	if len(locks) == 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO "%s"."%s" (%s) VALUES`,
		db.Name, ledgermodels.LocksTableName, ledgermodels.ColumnsToNameList(ledgermodels.LockColumns))
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, lock := range locks {
		err = batch.Append(
			lock.ID,
			lock.PostID,
			lock.UserID,
			lock.Txid,
			lock.InitialAmount,
			lock.CreatedAtHeight,
			lock.TargetHeight,
			lock.CurrentWeight,
			lock.Expired,
			lock.Tag,
			lock.Height,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

const lockSelectColumns = `id, post_id, user_id, txid, initial_amount, created_at_height,
		       target_height, current_weight, expired, tag, height`

// ActiveLocks pages non-expired locks ordered by id. FINAL keeps each page on
// the deduped view so a lock appears once per pass.
func (db *DB) ActiveLocks(ctx context.Context, cursor string, limit int) ([]*ledgermodels.Lock, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s" FINAL
		WHERE expired = 0 AND id > ?
		ORDER BY id ASC
		LIMIT ?
	`, lockSelectColumns, db.Name, ledgermodels.LocksTableName)

	rows, err := db.Db.Query(ctx, query, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("query active locks: %w", err)
	}
	defer rows.Close()

	return scanLocks(rows)
}

// LocksByPost returns every lock referencing a post, live and expired, so
// detail views can partition them at read time.
func (db *DB) LocksByPost(ctx context.Context, postID string) ([]*ledgermodels.Lock, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s" FINAL
		WHERE post_id = ?
		ORDER BY current_weight DESC, id ASC
	`, lockSelectColumns, db.Name, ledgermodels.LocksTableName)

	rows, err := db.Db.Query(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("query locks by post: %w", err)
	}
	defer rows.Close()

	return scanLocks(rows)
}

// PostAggregate recomputes a post's stake aggregate from live lock rows,
// bypassing the cached posts table.
func (db *DB) PostAggregate(ctx context.Context, postID string) (*PostAggregate, error) {
	query := fmt.Sprintf(`
		SELECT sum(current_weight), toUInt32(count(*))
		FROM "%s"."%s" FINAL
		WHERE post_id = ? AND expired = 0
	`, db.Name, ledgermodels.LocksTableName)

	var agg PostAggregate
	if err := db.Db.QueryRow(ctx, query, postID).Scan(&agg.TotalWeight, &agg.ActiveLocks); err != nil {
		return nil, fmt.Errorf("aggregate post %s: %w", postID, err)
	}
	return &agg, nil
}

// SumUserLockedAmount sums the committed amount over a user's active locks.
func (db *DB) SumUserLockedAmount(ctx context.Context, userID string) (uint64, error) {
	query := fmt.Sprintf(`
		SELECT sum(initial_amount)
		FROM "%s"."%s" FINAL
		WHERE user_id = ? AND expired = 0
	`, db.Name, ledgermodels.LocksTableName)

	var total uint64
	if err := db.Db.QueryRow(ctx, query, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum locked amount for %s: %w", userID, err)
	}
	return total, nil
}

func scanLocks(rows driver.Rows) ([]*ledgermodels.Lock, error) {
	var locks []*ledgermodels.Lock
	for rows.Next() {
		var l ledgermodels.Lock
		if err := rows.Scan(
			&l.ID,
			&l.PostID,
			&l.UserID,
			&l.Txid,
			&l.InitialAmount,
			&l.CreatedAtHeight,
			&l.TargetHeight,
			&l.CurrentWeight,
			&l.Expired,
			&l.Tag,
			&l.Height,
		); err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		locks = append(locks, &l)
	}
	return locks, rows.Err()
}
