package driver

import (
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/lib/pq"
)

func init() {
	Register(&postgresDialect{})
}

type postgresDialect struct{}

func (d *postgresDialect) Engine() string    { return "postgres" }
func (d *postgresDialect) Aliases() []string { return []string{"postgresql", "pg"} }

func (d *postgresDialect) DriverName() string { return "pgx" }

func (d *postgresDialect) BuildDSN(desc Descriptor) string {
	sslMode := desc.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	parts := []string{
		fmt.Sprintf("host=%s", desc.Host),
		fmt.Sprintf("port=%d", desc.Port),
		fmt.Sprintf("dbname=%s", desc.Database),
		fmt.Sprintf("sslmode=%s", sslMode),
	}
	if desc.User != "" {
		parts = append(parts, fmt.Sprintf("user=%s", desc.User))
	}
	if desc.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", desc.Password))
	}
	return strings.Join(parts, " ")
}

func (d *postgresDialect) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

func (d *postgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *postgresDialect) TablesQuery() string {
	return `SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name`
}

func (d *postgresDialect) ColumnsQuery() string {
	return `SELECT column_name, data_type, is_nullable = 'YES',
			numeric_precision, numeric_scale, character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`
}

func (d *postgresDialect) PrimaryKeyQuery() string {
	return `SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_name = tc.constraint_name
			AND kcu.table_schema = tc.table_schema
		WHERE tc.table_schema = current_schema()
			AND tc.table_name = $1
			AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.ordinal_position`
}

func (d *postgresDialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1`
}

func (d *postgresDialect) TagForType(declared string) TypeTag {
	switch strings.ToLower(declared) {
	case "smallint", "integer", "bigint", "int", "int2", "int4", "int8",
		"serial", "bigserial", "smallserial":
		return TagInteger
	case "numeric", "decimal", "money":
		return TagDecimal
	case "text", "varchar", "character varying", "character", "char", "bpchar", "citext":
		return TagText
	case "date":
		return TagDate
	case "timestamp", "timestamptz", "timestamp without time zone", "timestamp with time zone":
		return TagTimestamp
	case "boolean", "bool":
		return TagBoolean
	default:
		return TagUnknown
	}
}

func (d *postgresDialect) TypeName(tag TypeTag, precision, scale, maxLength int) string {
	switch tag {
	case TagInteger:
		return "bigint"
	case TagDecimal:
		if precision > 0 {
			return fmt.Sprintf("numeric(%d,%d)", precision, scale)
		}
		return "numeric"
	case TagText:
		if maxLength > 0 {
			return fmt.Sprintf("varchar(%d)", maxLength)
		}
		return "text"
	case TagDate:
		return "date"
	case TagTimestamp:
		return "timestamp"
	case TagBoolean:
		return "boolean"
	default:
		return ""
	}
}

func (d *postgresDialect) HasBoolean() bool { return true }

// PostgreSQL numeric allows up to 1000 digits either side of the point.
func (d *postgresDialect) MaxDecimalPrecision() int { return 1000 }
func (d *postgresDialect) MaxDecimalScale() int     { return 1000 }
