package ledger

import "time"

// UsersTableName is the table holding user balance snapshots.
const UsersTableName = "users"

// User carries the cached wallet/stake snapshot for a platform user. Both
// cached fields are refreshed by the balance aggregator and are never
// authoritative: cached_locked_amount re-derives from the locks table,
// cached_balance from the external wallet source.
type User struct {
	UserID  string `ch:"user_id" json:"userId"`
	Address string `ch:"address" json:"address"`

	CachedBalance      uint64 `ch:"cached_balance" json:"cachedBalance"`
	CachedLockedAmount uint64 `ch:"cached_locked_amount" json:"cachedLockedAmount"`

	RefreshedAt time.Time `ch:"refreshed_at" json:"refreshedAt"`

	// Height the snapshot was computed at; the version column.
	Height uint64 `ch:"height" json:"height"`
}

// UserColumns defines the users table schema.
var UserColumns = []ColumnDef{
	{Name: "user_id", Type: "String", Codec: "ZSTD(1)"},
	{Name: "address", Type: "String", Codec: "ZSTD(1)"},
	{Name: "cached_balance", Type: "UInt64", Codec: "Delta, ZSTD(3)"},
	{Name: "cached_locked_amount", Type: "UInt64", Codec: "Delta, ZSTD(3)"},
	{Name: "refreshed_at", Type: "DateTime64(6)", Codec: "DoubleDelta, LZ4"},
	{Name: "height", Type: "UInt64", Codec: "DoubleDelta, LZ4"},
}
