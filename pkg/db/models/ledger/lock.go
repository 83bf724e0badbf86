package ledger

// LocksTableName is the table holding one row per lock version.
const LocksTableName = "locks"

// Lock is a user's committed token stake against a post. The source of truth
// for its value is the triple {initial_amount, created_at_height,
// target_height} plus the current chain height; current_weight and expired
// are derived caches rewritten by the reconciler.
//
// Rows are versioned by the height they were computed at. ReplacingMergeTree
// keeps the row with the highest height per lock id, so overlapping
// reconciliation runs converge to the latest snapshot without coordination.
// Locks are never deleted; an expired lock stays as a historical record.
type Lock struct {
	ID     string `ch:"id" json:"id"`
	PostID string `ch:"post_id" json:"postId"`
	UserID string `ch:"user_id" json:"userId"`

	// Txid of the on-chain submission that funded the lock.
	Txid string `ch:"txid" json:"txid"`

	// Decay parameters, immutable after creation.
	InitialAmount   uint64 `ch:"initial_amount" json:"initialAmount"`
	CreatedAtHeight uint64 `ch:"created_at_height" json:"createdAtHeight"`
	TargetHeight    uint64 `ch:"target_height" json:"targetHeight"`

	// Derived caches, rewritten by reconciliation.
	CurrentWeight uint64 `ch:"current_weight" json:"currentWeight"`
	Expired       uint8  `ch:"expired" json:"expired"`

	// Optional client-supplied label (topic, emoji, campaign).
	Tag string `ch:"tag" json:"tag,omitempty"`

	// Height this row was computed at; the ReplacingMergeTree version column.
	Height uint64 `ch:"height" json:"height"`
}

// IsExpired reports the expired flag as a bool.
func (l *Lock) IsExpired() bool {
	return l.Expired != 0
}

// LockColumns defines the locks table schema.
var LockColumns = []ColumnDef{
	{Name: "id", Type: "String", Codec: "ZSTD(1)"},
	{Name: "post_id", Type: "String", Codec: "ZSTD(1)"},
	{Name: "user_id", Type: "String", Codec: "ZSTD(1)"},
	{Name: "txid", Type: "String", Codec: "ZSTD(1)"},
	{Name: "initial_amount", Type: "UInt64", Codec: "Delta, ZSTD(3)"},
	{Name: "created_at_height", Type: "UInt64", Codec: "DoubleDelta, LZ4"},
	{Name: "target_height", Type: "UInt64", Codec: "DoubleDelta, LZ4"},
	{Name: "current_weight", Type: "UInt64", Codec: "Delta, ZSTD(3)"},
	{Name: "expired", Type: "UInt8"},
	{Name: "tag", Type: "LowCardinality(String)"},
	{Name: "height", Type: "UInt64", Codec: "DoubleDelta, LZ4"},
}
