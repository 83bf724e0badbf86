package ledger

// PostsTableName is the table holding one row per post aggregate version.
const PostsTableName = "posts"

// Post carries the cached stake aggregate for a post. total_weight is a
// derived sum over the post's non-expired locks and may be transiently stale
// between reconciliation passes; strongly fresh readers recompute it from the
// locks table instead.
type Post struct {
	PostID   string `ch:"post_id" json:"postId"`
	AuthorID string `ch:"author_id" json:"authorId"`

	// Cached aggregates.
	TotalWeight uint64 `ch:"total_weight" json:"totalWeight"`
	ActiveLocks uint32 `ch:"active_locks" json:"activeLocks"`

	// Height the aggregate was computed at; the version column.
	Height uint64 `ch:"height" json:"height"`
}

// PostColumns defines the posts table schema.
var PostColumns = []ColumnDef{
	{Name: "post_id", Type: "String", Codec: "ZSTD(1)"},
	{Name: "author_id", Type: "String", Codec: "ZSTD(1)"},
	{Name: "total_weight", Type: "UInt64", Codec: "Delta, ZSTD(3)"},
	{Name: "active_locks", Type: "UInt32", Codec: "Delta, ZSTD(3)"},
	{Name: "height", Type: "UInt64", Codec: "DoubleDelta, LZ4"},
}
