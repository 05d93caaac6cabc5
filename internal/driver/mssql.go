package driver

import (
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // registers the sqlserver database/sql driver
)

func init() {
	Register(&mssqlDialect{})
}

type mssqlDialect struct{}

func (d *mssqlDialect) Engine() string    { return "mssql" }
func (d *mssqlDialect) Aliases() []string { return []string{"sqlserver"} }

func (d *mssqlDialect) DriverName() string { return "sqlserver" }

func (d *mssqlDialect) BuildDSN(desc Descriptor) string {
	u := &url.URL{
		Scheme: "sqlserver",
		Host:   fmt.Sprintf("%s:%d", desc.Host, desc.Port),
	}
	if desc.User != "" {
		u.User = url.UserPassword(desc.User, desc.Password)
	}
	q := url.Values{}
	q.Set("database", desc.Database)
	u.RawQuery = q.Encode()
	return u.String()
}

func (d *mssqlDialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d *mssqlDialect) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index)
}

func (d *mssqlDialect) TablesQuery() string {
	return `SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`
}

func (d *mssqlDialect) ColumnsQuery() string {
	return `SELECT COLUMN_NAME, DATA_TYPE,
			CASE WHEN IS_NULLABLE = 'YES' THEN 1 ELSE 0 END,
			NUMERIC_PRECISION, NUMERIC_SCALE, CHARACTER_MAXIMUM_LENGTH
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @p1
		ORDER BY ORDINAL_POSITION`
}

func (d *mssqlDialect) PrimaryKeyQuery() string {
	return `SELECT kcu.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
			ON kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
			AND kcu.TABLE_SCHEMA = tc.TABLE_SCHEMA
		WHERE tc.TABLE_SCHEMA = SCHEMA_NAME()
			AND tc.TABLE_NAME = @p1
			AND tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		ORDER BY kcu.ORDINAL_POSITION`
}

func (d *mssqlDialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @p1`
}

func (d *mssqlDialect) TagForType(declared string) TypeTag {
	switch strings.ToLower(declared) {
	case "tinyint", "smallint", "int", "bigint":
		return TagInteger
	case "decimal", "numeric", "money", "smallmoney":
		return TagDecimal
	case "char", "nchar", "varchar", "nvarchar", "text", "ntext":
		return TagText
	case "date":
		return TagDate
	case "datetime", "datetime2", "smalldatetime", "datetimeoffset":
		return TagTimestamp
	case "bit":
		return TagBoolean
	default:
		return TagUnknown
	}
}

func (d *mssqlDialect) TypeName(tag TypeTag, precision, scale, maxLength int) string {
	switch tag {
	case TagInteger:
		return "bigint"
	case TagDecimal:
		if precision > 0 {
			return fmt.Sprintf("decimal(%d,%d)", precision, scale)
		}
		return "decimal(38,10)"
	case TagText:
		if maxLength > 0 && maxLength <= 4000 {
			return fmt.Sprintf("nvarchar(%d)", maxLength)
		}
		return "nvarchar(max)"
	case TagDate:
		return "date"
	case TagTimestamp:
		return "datetime2"
	case TagBoolean:
		return "bit"
	default:
		return ""
	}
}

// SQL Server's bit type stores 0/1, not a true boolean.
func (d *mssqlDialect) HasBoolean() bool { return false }

func (d *mssqlDialect) MaxDecimalPrecision() int { return 38 }
func (d *mssqlDialect) MaxDecimalScale() int     { return 38 }
