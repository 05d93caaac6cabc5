package driver

import (
	"strings"

	_ "modernc.org/sqlite" // registers the sqlite database/sql driver
)

func init() {
	Register(&sqliteDialect{})
}

type sqliteDialect struct{}

func (d *sqliteDialect) Engine() string    { return "sqlite" }
func (d *sqliteDialect) Aliases() []string { return []string{"sqlite3"} }

func (d *sqliteDialect) DriverName() string { return "sqlite" }

func (d *sqliteDialect) BuildDSN(desc Descriptor) string {
	return desc.Path
}

func (d *sqliteDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *sqliteDialect) Placeholder(index int) string { return "?" }

// sqlite_master rows come back in creation order, which is the engine's
// natural catalog order.
func (d *sqliteDialect) TablesQuery() string {
	return `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`
}

// SQLite has no information_schema; pragma_table_info carries no separate
// precision/scale/length, so those come back NULL and the introspector
// parses them out of the declared type.
func (d *sqliteDialect) ColumnsQuery() string {
	return `SELECT name, type, "notnull" = 0, NULL, NULL, NULL
		FROM pragma_table_info(?) ORDER BY cid`
}

func (d *sqliteDialect) PrimaryKeyQuery() string {
	return `SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`
}

func (d *sqliteDialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
}

// TagForType follows SQLite's affinity rules: the declared type is free text,
// so classification is by keyword.
func (d *sqliteDialect) TagForType(declared string) TypeTag {
	t := strings.ToLower(declared)
	switch {
	case t == "":
		return TagUnknown
	case strings.Contains(t, "bool"):
		return TagBoolean
	case strings.Contains(t, "int"):
		return TagInteger
	case strings.HasPrefix(t, "decimal"), strings.HasPrefix(t, "numeric"),
		strings.HasPrefix(t, "money"):
		return TagDecimal
	case strings.Contains(t, "char"), strings.Contains(t, "clob"),
		strings.Contains(t, "text"):
		return TagText
	case strings.Contains(t, "timestamp"), strings.Contains(t, "datetime"):
		return TagTimestamp
	case strings.Contains(t, "date"):
		return TagDate
	default:
		return TagUnknown
	}
}

func (d *sqliteDialect) TypeName(tag TypeTag, precision, scale, maxLength int) string {
	switch tag {
	case TagInteger:
		return "INTEGER"
	case TagDecimal:
		return "NUMERIC"
	case TagText:
		return "TEXT"
	case TagDate:
		return "DATE"
	case TagTimestamp:
		return "TIMESTAMP"
	case TagBoolean:
		return "INTEGER"
	default:
		return ""
	}
}

func (d *sqliteDialect) HasBoolean() bool { return false }

// SQLite ignores declared precision entirely.
func (d *sqliteDialect) MaxDecimalPrecision() int { return 0 }
func (d *sqliteDialect) MaxDecimalScale() int     { return 0 }
