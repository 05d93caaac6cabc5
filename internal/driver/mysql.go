package driver

import (
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

func init() {
	Register(&mysqlDialect{})
}

type mysqlDialect struct{}

func (d *mysqlDialect) Engine() string    { return "mysql" }
func (d *mysqlDialect) Aliases() []string { return []string{"mariadb"} }

func (d *mysqlDialect) DriverName() string { return "mysql" }

func (d *mysqlDialect) BuildDSN(desc Descriptor) string {
	cfg := mysql.NewConfig()
	cfg.User = desc.User
	cfg.Passwd = desc.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", desc.Host, desc.Port)
	cfg.DBName = desc.Database
	// Date and timestamp columns must scan as time.Time, not raw bytes,
	// so coercion sees one representation regardless of engine.
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func (d *mysqlDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *mysqlDialect) Placeholder(index int) string { return "?" }

func (d *mysqlDialect) TablesQuery() string {
	return `SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`
}

func (d *mysqlDialect) ColumnsQuery() string {
	return `SELECT column_name, data_type, is_nullable = 'YES',
			numeric_precision, numeric_scale, character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`
}

func (d *mysqlDialect) PrimaryKeyQuery() string {
	return `SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND table_name = ?
			AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position`
}

func (d *mysqlDialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?`
}

func (d *mysqlDialect) TagForType(declared string) TypeTag {
	switch strings.ToLower(declared) {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint":
		return TagInteger
	case "decimal", "numeric":
		return TagDecimal
	case "char", "varchar", "text", "tinytext", "mediumtext", "longtext":
		return TagText
	case "date":
		return TagDate
	case "datetime", "timestamp":
		return TagTimestamp
	case "bool", "boolean":
		return TagBoolean
	default:
		return TagUnknown
	}
}

func (d *mysqlDialect) TypeName(tag TypeTag, precision, scale, maxLength int) string {
	switch tag {
	case TagInteger:
		return "bigint"
	case TagDecimal:
		if precision > 0 {
			return fmt.Sprintf("decimal(%d,%d)", precision, scale)
		}
		// Widest decimal MySQL accepts with a usable scale.
		return "decimal(65,30)"
	case TagText:
		if maxLength > 0 && maxLength <= 16383 {
			return fmt.Sprintf("varchar(%d)", maxLength)
		}
		return "longtext"
	case TagDate:
		return "date"
	case TagTimestamp:
		return "datetime"
	case TagBoolean:
		return "tinyint(1)"
	default:
		return ""
	}
}

// MySQL's boolean is an alias for tinyint(1), so boolean values are written
// as 0/1 integers.
func (d *mysqlDialect) HasBoolean() bool { return false }

func (d *mysqlDialect) MaxDecimalPrecision() int { return 65 }
func (d *mysqlDialect) MaxDecimalScale() int     { return 30 }
