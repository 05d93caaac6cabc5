package driver

// Dialect abstracts the engine-specific pieces of introspection, DDL and DML
// generation. Each supported engine provides one implementation and registers
// it from an init function.
type Dialect interface {
	// Engine returns the canonical engine name (e.g. "postgres", "sqlite").
	Engine() string

	// Aliases returns alternate names accepted in configuration
	// (e.g. "postgresql" for postgres).
	Aliases() []string

	// DriverName returns the database/sql driver name to open connections with.
	DriverName() string

	// BuildDSN builds a connection string from a descriptor.
	BuildDSN(d Descriptor) string

	// QuoteIdentifier quotes a table or column name.
	// PostgreSQL/SQLite: "name", MSSQL: [name], MySQL: `name`
	QuoteIdentifier(name string) string

	// Placeholder returns the parameter placeholder for a 1-based index.
	// PostgreSQL: $1, MSSQL: @p1, MySQL/SQLite: ?
	Placeholder(index int) string

	// TablesQuery returns a query yielding one base-table name per row,
	// in the engine's catalog order, for the connected database.
	TablesQuery() string

	// ColumnsQuery returns a query taking the table name as its single
	// parameter and yielding per column, in ordinal order:
	// name, declared type, nullable (bool or 0/1), numeric precision,
	// numeric scale, character max length (the last three nullable).
	ColumnsQuery() string

	// PrimaryKeyQuery returns a query taking the table name as its single
	// parameter and yielding primary key column names in key order.
	PrimaryKeyQuery() string

	// TableExistsQuery returns a query taking the table name as its single
	// parameter and yielding a count: nonzero if the table exists.
	TableExistsQuery() string

	// TagForType normalizes a declared type name to a TypeTag.
	// Unrecognized types must return TagUnknown, never an error.
	TagForType(declared string) TypeTag

	// TypeName renders the DDL type for a planned column on this engine.
	// An empty string means the tag cannot be represented.
	TypeName(tag TypeTag, precision, scale, maxLength int) string

	// HasBoolean reports whether the engine has a native boolean type.
	// Engines without one receive 0/1 integer values instead.
	HasBoolean() bool

	// MaxDecimalPrecision and MaxDecimalScale bound the engine's
	// fixed-precision numeric support. Zero means the engine does not
	// enforce declared precision (SQLite).
	MaxDecimalPrecision() int
	MaxDecimalScale() int
}
