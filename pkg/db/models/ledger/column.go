package ledger

import (
	"fmt"
	"strings"
)

// ColumnDef defines a single column for a table. It is the single source of
// truth for the ledger schema, consumed by the store's CREATE TABLE and
// INSERT statements.
type ColumnDef struct {
	// Name is the column name in the table
	Name string

	// Type is the ClickHouse data type (e.g., "UInt64", "String", "DateTime64(6)")
	Type string

	// Codec is the optional compression codec (e.g., "ZSTD(1)", "Delta, ZSTD(3)")
	// Leave empty for no codec
	Codec string
}

// SQL returns the full column definition for CREATE TABLE statements.
// Example: "address String CODEC(ZSTD(1))"
func (c ColumnDef) SQL() string {
	if c.Codec != "" {
		return fmt.Sprintf("%s %s CODEC(%s)", c.Name, c.Type, c.Codec)
	}
	return fmt.Sprintf("%s %s", c.Name, c.Type)
}

// ColumnsToSchemaSQL converts a list of ColumnDef to a CREATE TABLE schema string.
func ColumnsToSchemaSQL(columns []ColumnDef) string {
	var parts []string
	for _, col := range columns {
		parts = append(parts, col.SQL())
	}
	return strings.Join(parts, ",\n\t\t\t")
}

// ColumnsToNameList extracts just the column names. Useful for INSERT statements.
func ColumnsToNameList(columns []ColumnDef) string {
	names := make([]string, 0, len(columns))
	for _, col := range columns {
		names = append(names, col.Name)
	}
	return strings.Join(names, ", ")
}
