package driver

// TypeTag classifies a column's declared type into the portable type system
// used for cross-engine planning. Engine-specific type names are normalized
// into one of these tags during introspection.
type TypeTag int

const (
	// TagUnknown is the fallback for types no dialect recognizes.
	TagUnknown TypeTag = iota
	// TagInteger covers all integer widths.
	TagInteger
	// TagDecimal covers fixed-precision numerics (decimal, numeric, money).
	TagDecimal
	// TagText covers character data, bounded or unbounded.
	TagText
	// TagDate covers calendar dates without time of day.
	TagDate
	// TagTimestamp covers date-plus-time types, with or without zone.
	TagTimestamp
	// TagBoolean covers true/false types, including bit-valued ones.
	TagBoolean
)

// String returns the tag name used in plans, reports and logs.
func (t TypeTag) String() string {
	switch t {
	case TagInteger:
		return "INTEGER"
	case TagDecimal:
		return "DECIMAL"
	case TagText:
		return "TEXT"
	case TagDate:
		return "DATE"
	case TagTimestamp:
		return "TIMESTAMP"
	case TagBoolean:
		return "BOOLEAN"
	default:
		return "UNKNOWN"
	}
}

// IsNumeric reports whether columns of this tag participate in
// SUM/COUNT aggregate validation.
func (t TypeTag) IsNumeric() bool {
	return t == TagInteger || t == TagDecimal
}

// Column describes one column of a source table.
type Column struct {
	Name         string  `json:"name"`
	Tag          TypeTag `json:"tag"`
	DeclaredType string  `json:"declared_type"`
	Nullable     bool    `json:"nullable"`
	Precision    int     `json:"precision,omitempty"`  // numeric precision, 0 if undeclared
	Scale        int     `json:"scale,omitempty"`      // numeric scale, 0 if undeclared
	MaxLength    int     `json:"max_length,omitempty"` // character length limit, 0 if unbounded
}

// Table describes one source table: its columns in catalog order and the
// primary key columns in key order. Immutable once produced by introspection.
type Table struct {
	Name       string   `json:"name"`
	Columns    []Column `json:"columns"`
	PrimaryKey []string `json:"primary_key,omitempty"`
}

// HasPK returns true if the table has a primary key.
func (t *Table) HasPK() bool {
	return len(t.PrimaryKey) > 0
}

// ColumnNames returns the column names in catalog order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// NumericColumns returns the columns that participate in aggregate validation.
func (t *Table) NumericColumns() []Column {
	var cols []Column
	for _, c := range t.Columns {
		if c.Tag.IsNumeric() {
			cols = append(cols, c)
		}
	}
	return cols
}
