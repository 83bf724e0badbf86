package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/boostfeed/stakeledger/pkg/db/clickhouse"
	ledgermodels "github.com/boostfeed/stakeledger/pkg/db/models/ledger"
)

func (db *DB) initUsers(ctx context.Context) error {
	schemaSQL := ledgermodels.ColumnsToSchemaSQL(ledgermodels.UserColumns)

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			%s
		) ENGINE = %s
		ORDER BY (user_id)
	`, db.Name, ledgermodels.UsersTableName, schemaSQL, clickhouse.Engine(clickhouse.ReplacingMergeTree, "height"))
	if err := db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", ledgermodels.UsersTableName, err)
	}

	return nil
}

// GetUser returns the latest cached balance row for the user, or nil when the
// user has never been refreshed.
func (db *DB) GetUser(ctx context.Context, userID string) (*ledgermodels.User, error) {
	query := fmt.Sprintf(`
		SELECT user_id, address, cached_balance, cached_locked_amount, refreshed_at, height
		FROM "%s"."%s" FINAL
		WHERE user_id = ?
		LIMIT 1
	`, db.Name, ledgermodels.UsersTableName)

	var u ledgermodels.User
	if err := db.Db.QueryRow(ctx, query, userID).Scan(
		&u.UserID,
		&u.Address,
		&u.CachedBalance,
		&u.CachedLockedAmount,
		&u.RefreshedAt,
		&u.Height,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &u, nil
}

// UpsertUser writes a new balance snapshot for the user.
func (db *DB) UpsertUser(ctx context.Context, user *ledgermodels.User) error {
	query := fmt.Sprintf(`INSERT INTO "%s"."%s" (%s) VALUES`,
		db.Name, ledgermodels.UsersTableName, ledgermodels.ColumnsToNameList(ledgermodels.UserColumns))
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}

	if err := batch.Append(
		user.UserID,
		user.Address,
		user.CachedBalance,
		user.CachedLockedAmount,
		user.RefreshedAt,
		user.Height,
	); err != nil {
		_ = batch.Abort()
		return err
	}

	return batch.Send()
}
