package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/boostfeed/stakeledger/pkg/db/clickhouse"
	ledgermodels "github.com/boostfeed/stakeledger/pkg/db/models/ledger"
)

func (db *DB) initPosts(ctx context.Context) error {
	schemaSQL := ledgermodels.ColumnsToSchemaSQL(ledgermodels.PostColumns)

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			%s
		) ENGINE = %s
		ORDER BY (post_id)
	`, db.Name, ledgermodels.PostsTableName, schemaSQL, clickhouse.Engine(clickhouse.ReplacingMergeTree, "height"))
	if err := db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", ledgermodels.PostsTableName, err)
	}

	return nil
}

// UpsertPost writes a new aggregate version for the post. The height version
// column guarantees a concurrent run at a lower height cannot clobber it.
func (db *DB) UpsertPost(ctx context.Context, post *ledgermodels.Post) error {
	query := fmt.Sprintf(`INSERT INTO "%s"."%s" (%s) VALUES`,
		db.Name, ledgermodels.PostsTableName, ledgermodels.ColumnsToNameList(ledgermodels.PostColumns))
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}

	if err := batch.Append(
		post.PostID,
		post.AuthorID,
		post.TotalWeight,
		post.ActiveLocks,
		post.Height,
	); err != nil {
		_ = batch.Abort()
		return err
	}

	return batch.Send()
}

// GetPost returns the latest cached aggregate row for the post, or nil when
// the post has never been aggregated.
func (db *DB) GetPost(ctx context.Context, postID string) (*ledgermodels.Post, error) {
	query := fmt.Sprintf(`
		SELECT post_id, author_id, total_weight, active_locks, height
		FROM "%s"."%s" FINAL
		WHERE post_id = ?
		LIMIT 1
	`, db.Name, ledgermodels.PostsTableName)

	var p ledgermodels.Post
	if err := db.Db.QueryRow(ctx, query, postID).Scan(
		&p.PostID,
		&p.AuthorID,
		&p.TotalWeight,
		&p.ActiveLocks,
		&p.Height,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get post %s: %w", postID, err)
	}
	return &p, nil
}
