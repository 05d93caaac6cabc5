// Package schema enumerates tables, columns and primary keys from a live
// connection using the dialect's catalog queries.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"

	"github.com/reyya31/dbmigrate/internal/driver"
	"github.com/reyya31/dbmigrate/internal/logging"
)

// IntrospectionError means a table's metadata could not be read.
// It is fatal for the affected table; an unrecognized column type is not an
// IntrospectionError (those fall back to TagUnknown).
type IntrospectionError struct {
	Table string
	Err   error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("introspecting table %s: %v", e.Table, e.Err)
}

func (e *IntrospectionError) Unwrap() error {
	return e.Err
}

// Introspector reads catalog metadata through one connection.
type Introspector struct {
	db      *sql.DB
	dialect driver.Dialect
}

// NewIntrospector creates an introspector over an open connection.
func NewIntrospector(db *sql.DB, dialect driver.Dialect) *Introspector {
	return &Introspector{db: db, dialect: dialect}
}

// ListTables enumerates all base tables with their columns and primary keys,
// in the engine's catalog order. Two calls against an unmodified database
// return identical descriptors.
func (in *Introspector) ListTables(ctx context.Context) ([]driver.Table, error) {
	rows, err := in.db.QueryContext(ctx, in.dialect.TablesQuery())
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}

	tables := make([]driver.Table, 0, len(names))
	for _, name := range names {
		t, err := in.DescribeTable(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, nil
}

// DescribeTable reads one table's column and primary key metadata.
func (in *Introspector) DescribeTable(ctx context.Context, name string) (*driver.Table, error) {
	cols, err := in.columns(ctx, name)
	if err != nil {
		return nil, &IntrospectionError{Table: name, Err: err}
	}
	if len(cols) == 0 {
		return nil, &IntrospectionError{Table: name, Err: fmt.Errorf("no columns found")}
	}

	pk, err := in.primaryKey(ctx, name)
	if err != nil {
		return nil, &IntrospectionError{Table: name, Err: err}
	}

	return &driver.Table{Name: name, Columns: cols, PrimaryKey: pk}, nil
}

func (in *Introspector) columns(ctx context.Context, table string) ([]driver.Column, error) {
	rows, err := in.db.QueryContext(ctx, in.dialect.ColumnsQuery(), table)
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	defer rows.Close()

	var cols []driver.Column
	for rows.Next() {
		var (
			name, declared           string
			nullable                 bool
			precision, scale, length sql.NullInt64
		)
		if err := rows.Scan(&name, &declared, &nullable, &precision, &scale, &length); err != nil {
			return nil, fmt.Errorf("scanning column metadata: %w", err)
		}

		col := driver.Column{
			Name:         name,
			Tag:          in.dialect.TagForType(baseTypeName(declared)),
			DeclaredType: declared,
			Nullable:     nullable,
			Precision:    int(precision.Int64),
			Scale:        int(scale.Int64),
			MaxLength:    int(length.Int64),
		}

		// Engines without catalog precision columns (SQLite) carry the
		// shape inside the declared type, e.g. DECIMAL(10,2), VARCHAR(50).
		if !precision.Valid && !length.Valid {
			p, s, ok := parseTypeArgs(declared)
			if ok {
				switch col.Tag {
				case driver.TagDecimal:
					col.Precision, col.Scale = p, s
				case driver.TagText:
					col.MaxLength = p
				}
			}
		}

		if col.Tag == driver.TagUnknown {
			logging.Debug("table %s: column %s has unmapped type %q, tagged UNKNOWN",
				table, name, declared)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (in *Introspector) primaryKey(ctx context.Context, table string) ([]string, error) {
	rows, err := in.db.QueryContext(ctx, in.dialect.PrimaryKeyQuery(), table)
	if err != nil {
		return nil, fmt.Errorf("reading primary key: %w", err)
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning primary key column: %w", err)
		}
		pk = append(pk, name)
	}
	return pk, rows.Err()
}

var typeArgsRe = regexp.MustCompile(`\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)`)

// parseTypeArgs extracts (precision) or (precision,scale) from a declared
// type string such as "DECIMAL(10,2)" or "VARCHAR(50)".
func parseTypeArgs(declared string) (precision, scale int, ok bool) {
	m := typeArgsRe.FindStringSubmatch(declared)
	if m == nil {
		return 0, 0, false
	}
	precision, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		scale, _ = strconv.Atoi(m[2])
	}
	return precision, scale, true
}

// baseTypeName strips any parenthesized arguments from a declared type so
// dialects only see the bare name.
func baseTypeName(declared string) string {
	if i := typeArgsRe.FindStringIndex(declared); i != nil {
		return declared[:i[0]] + declared[i[1]:]
	}
	return declared
}
