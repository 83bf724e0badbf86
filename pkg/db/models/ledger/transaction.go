package ledger

import "time"

// TransactionsTableName is the table holding on-chain submissions.
const TransactionsTableName = "transactions"

// Transaction represents an on-chain submission observed by the platform.
// confirmed transitions only false→true: the version column is
// confirmed_height (zero while pending), so a confirmed row always supersedes
// its pending predecessor and a duplicate confirm is a no-op. Transactions
// are never deleted.
type Transaction struct {
	ID     string `ch:"id" json:"id"`
	UserID string `ch:"user_id" json:"userId"`

	// PostID is empty for standalone transactions (tips, transfers).
	PostID string `ch:"post_id" json:"postId,omitempty"`

	Txid      string `ch:"txid" json:"txid"`
	Confirmed uint8  `ch:"confirmed" json:"confirmed"`

	// ConfirmedHeight is the chain height observed when the confirmer flipped
	// the flag; zero while pending. Version column.
	ConfirmedHeight uint64 `ch:"confirmed_height" json:"confirmedHeight"`

	CreatedAt time.Time `ch:"created_at" json:"createdAt"`
}

// IsConfirmed reports the confirmed flag as a bool.
func (t *Transaction) IsConfirmed() bool {
	return t.Confirmed != 0
}

// TransactionColumns defines the transactions table schema.
var TransactionColumns = []ColumnDef{
	{Name: "id", Type: "String", Codec: "ZSTD(1)"},
	{Name: "user_id", Type: "String", Codec: "ZSTD(1)"},
	{Name: "post_id", Type: "String", Codec: "ZSTD(1)"},
	{Name: "txid", Type: "String", Codec: "ZSTD(1)"},
	{Name: "confirmed", Type: "UInt8"},
	{Name: "confirmed_height", Type: "UInt64", Codec: "DoubleDelta, LZ4"},
	{Name: "created_at", Type: "DateTime64(6)", Codec: "DoubleDelta, LZ4"},
}
