package ledger

import (
	"context"

	ledgermodels "github.com/boostfeed/stakeledger/pkg/db/models/ledger"
)

// PostAggregate is a live-recomputed stake summary for one post.
type PostAggregate struct {
	TotalWeight uint64
	ActiveLocks uint32
}

// Store describes the ledger database operations required by the reconciler,
// the confirmer, the balance aggregator, and the HTTP controllers. The
// production implementation is *DB; tests substitute an in-memory fake.
type Store interface {
	DatabaseName() string
	Ping(ctx context.Context) error

	// --- Locks

	InsertLocks(ctx context.Context, locks []*ledgermodels.Lock) error
	// ActiveLocks pages non-expired locks ordered by id; pass the last seen
	// id as cursor ("" for the first page).
	ActiveLocks(ctx context.Context, cursor string, limit int) ([]*ledgermodels.Lock, error)
	// LocksByPost returns every lock referencing a post, live and expired.
	LocksByPost(ctx context.Context, postID string) ([]*ledgermodels.Lock, error)
	// PostAggregate recomputes the post's aggregate from live lock rows.
	PostAggregate(ctx context.Context, postID string) (*PostAggregate, error)
	// SumUserLockedAmount sums initial_amount over a user's active locks.
	SumUserLockedAmount(ctx context.Context, userID string) (uint64, error)

	// --- Posts

	UpsertPost(ctx context.Context, post *ledgermodels.Post) error
	GetPost(ctx context.Context, postID string) (*ledgermodels.Post, error)

	// --- Transactions

	InsertTransactions(ctx context.Context, txs []*ledgermodels.Transaction) error
	// PendingTransactions returns unconfirmed transactions, oldest first.
	PendingTransactions(ctx context.Context, limit int) ([]*ledgermodels.Transaction, error)
	// ConfirmTransaction writes the confirmed version of tx at the given height.
	ConfirmTransaction(ctx context.Context, tx *ledgermodels.Transaction, height uint64) error

	// --- Users

	GetUser(ctx context.Context, userID string) (*ledgermodels.User, error)
	UpsertUser(ctx context.Context, user *ledgermodels.User) error

	Close() error
}
