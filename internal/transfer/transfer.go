// Package transfer copies one table's rows from source to target in bounded
// batches, applying the per-column coercion strategy from the type plan.
package transfer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/reyya31/dbmigrate/internal/driver"
	"github.com/reyya31/dbmigrate/internal/logging"
	"github.com/reyya31/dbmigrate/internal/typemap"
)

// Mode selects how the target table is prepared before writing.
type Mode int

const (
	// ModeReplace drops and recreates the target table. Idempotent.
	ModeReplace Mode = iota
	// ModeAppend inserts into the target table and fails with ConflictError
	// if it already exists, unless forced.
	ModeAppend
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "replace", "":
		return ModeReplace, nil
	case "append":
		return ModeAppend, nil
	default:
		return ModeReplace, fmt.Errorf("unknown transfer mode: %q (valid: replace, append)", s)
	}
}

func (m Mode) String() string {
	if m == ModeAppend {
		return "APPEND"
	}
	return "REPLACE"
}

// ConflictError means the target table pre-exists in append mode.
// Fatal for the affected table; not retried.
type ConflictError struct {
	Table string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("target table %s already exists (append mode requires --force or an absent table)", e.Table)
}

// Outcome classifies one table's transfer.
type Outcome int

const (
	// OutcomeSuccess means every source row was written.
	OutcomeSuccess Outcome = iota
	// OutcomePartial means some rows were skipped but each skip is recorded
	// with a row identifier.
	OutcomePartial
	// OutcomeFailed means the table was not transferred; no partial write
	// is left behind.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomePartial:
		return "PARTIAL"
	default:
		return "FAILED"
	}
}

// MarshalJSON renders the outcome as its name.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// RowError records one skipped row: its primary key value (or ordinal
// position for keyless tables) and the reason.
type RowError struct {
	Row    string `json:"row"`
	Reason string `json:"reason"`
}

// Result reports one table transfer. Row errors are never silently dropped.
type Result struct {
	Table       string        `json:"table"`
	RowsRead    int64         `json:"rows_read"`
	RowsWritten int64         `json:"rows_written"`
	Elapsed     time.Duration `json:"elapsed"`
	Outcome     Outcome       `json:"outcome"`
	RowErrors   []RowError    `json:"row_errors,omitempty"`
}

// Options tunes one transfer.
type Options struct {
	// BatchSize bounds rows per insert batch; peak memory is independent of
	// table size. Defaults to 1000.
	BatchSize int
	// SkipUnmapped drops columns with a REJECT plan instead of failing
	// the table.
	SkipUnmapped bool
	// Force allows append mode to write into a pre-existing table.
	Force bool
	// Progress, if set, is advanced once per written row.
	Progress *progressbar.ProgressBar
}

// DefaultBatchSize bounds memory regardless of table size.
const DefaultBatchSize = 1000

// Engine copies tables between one source and one target connection.
type Engine struct {
	src, dst   *sql.DB
	srcDialect driver.Dialect
	dstDialect driver.Dialect
}

// New creates a transfer engine over open source and target connections.
func New(src, dst *sql.DB, srcDialect, dstDialect driver.Dialect) *Engine {
	return &Engine{src: src, dst: dst, srcDialect: srcDialect, dstDialect: dstDialect}
}

// Transfer copies one table according to its column plans. The returned
// Result is always populated; a non-nil error means the table failed as a
// whole (the Result's outcome is FAILED).
func (e *Engine) Transfer(ctx context.Context, table driver.Table, plans []typemap.Plan, mode Mode, opts Options) (*Result, error) {
	start := time.Now()
	res := &Result{Table: table.Name, Outcome: OutcomeFailed}
	fail := func(err error) (*Result, error) {
		res.Elapsed = time.Since(start)
		return res, driver.WrapTimeout("table "+table.Name, err)
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	active, err := activePlans(table, plans, opts.SkipUnmapped)
	if err != nil {
		return fail(err)
	}

	if err := e.prepareTarget(ctx, table, active, mode, opts.Force); err != nil {
		return fail(err)
	}

	if err := e.copyRows(ctx, table, active, opts, res); err != nil {
		return fail(err)
	}

	if len(res.RowErrors) > 0 {
		res.Outcome = OutcomePartial
	} else {
		res.Outcome = OutcomeSuccess
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// activePlans filters REJECT columns. Rejected values are never written:
// either the column is dropped (skipUnmapped) or the table halts.
func activePlans(table driver.Table, plans []typemap.Plan, skipUnmapped bool) ([]typemap.Plan, error) {
	active := make([]typemap.Plan, 0, len(plans))
	for _, p := range plans {
		if p.Strategy != typemap.StrategyReject {
			active = append(active, p)
			continue
		}
		if !skipUnmapped {
			return nil, fmt.Errorf("table %s: %s", table.Name, p.Warning)
		}
		logging.Warn("table %s: skipping unmapped column %s (%s)",
			table.Name, p.Column.Name, p.Column.DeclaredType)
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("table %s: no mappable columns", table.Name)
	}
	return active, nil
}

func (e *Engine) prepareTarget(ctx context.Context, table driver.Table, plans []typemap.Plan, mode Mode, force bool) error {
	qname := e.dstDialect.QuoteIdentifier(table.Name)

	exists, err := e.targetExists(ctx, table.Name)
	if err != nil {
		return err
	}

	switch mode {
	case ModeReplace:
		if exists {
			if _, err := e.dst.ExecContext(ctx, "DROP TABLE "+qname); err != nil {
				return fmt.Errorf("dropping target table %s: %w", table.Name, err)
			}
		}
	case ModeAppend:
		if exists {
			if !force {
				return &ConflictError{Table: table.Name}
			}
			return nil
		}
	}

	ddl := buildCreateTable(e.dstDialect, table, plans)
	logging.Debug("creating target table: %s", ddl)
	if _, err := e.dst.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating target table %s: %w", table.Name, err)
	}
	return nil
}

func (e *Engine) targetExists(ctx context.Context, name string) (bool, error) {
	var n int64
	if err := e.dst.QueryRowContext(ctx, e.dstDialect.TableExistsQuery(), name).Scan(&n); err != nil {
		return false, fmt.Errorf("checking target table %s: %w", name, err)
	}
	return n > 0, nil
}

// buildCreateTable renders target DDL from the column plans, preserving
// nullability and the primary key.
func buildCreateTable(d driver.Dialect, table driver.Table, plans []typemap.Plan) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(d.QuoteIdentifier(table.Name))
	b.WriteString(" (")
	for i, p := range plans {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdentifier(p.Column.Name))
		b.WriteByte(' ')
		b.WriteString(p.TargetType)
		if !p.Column.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	if table.HasPK() {
		b.WriteString(", PRIMARY KEY (")
		for i, col := range table.PrimaryKey {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.QuoteIdentifier(col))
		}
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String()
}

// buildSelect reads rows in primary-key order when a key exists, so partial
// failures attribute errors to reproducible rows; otherwise natural order.
func buildSelect(d driver.Dialect, table driver.Table, plans []typemap.Plan) string {
	cols := make([]string, len(plans))
	for i, p := range plans {
		cols[i] = d.QuoteIdentifier(p.Column.Name)
	}
	q := "SELECT " + strings.Join(cols, ", ") + " FROM " + d.QuoteIdentifier(table.Name)
	if table.HasPK() {
		pk := make([]string, len(table.PrimaryKey))
		for i, col := range table.PrimaryKey {
			pk[i] = d.QuoteIdentifier(col)
		}
		q += " ORDER BY " + strings.Join(pk, ", ")
	}
	return q
}

func buildInsert(d driver.Dialect, table driver.Table, plans []typemap.Plan, rowCount int) string {
	cols := make([]string, len(plans))
	for i, p := range plans {
		cols[i] = d.QuoteIdentifier(p.Column.Name)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.QuoteIdentifier(table.Name))
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")
	idx := 1
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range plans {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(idx))
			idx++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// maxPlaceholders keeps multi-row inserts under the strictest engine limit
// (SQL Server allows 2100 parameters per statement).
const maxPlaceholders = 2000

func (e *Engine) copyRows(ctx context.Context, table driver.Table, plans []typemap.Plan, opts Options, res *Result) error {
	batchRows := opts.BatchSize
	if batchRows*len(plans) > maxPlaceholders {
		batchRows = maxPlaceholders / len(plans)
		if batchRows < 1 {
			batchRows = 1
		}
	}

	// pkIdx locates primary key values inside the scanned row for error
	// attribution.
	pkIdx := make([]int, 0, len(table.PrimaryKey))
	for _, key := range table.PrimaryKey {
		for i, p := range plans {
			if p.Column.Name == key {
				pkIdx = append(pkIdx, i)
			}
		}
	}
	hasPK := len(pkIdx) > 0

	// Keyless tables get a single transaction: either every row lands or
	// none do, because a partial table with no row identity is unauditable.
	var tx *sql.Tx
	if !hasPK {
		var err error
		tx, err = e.dst.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning target transaction: %w", err)
		}
		defer tx.Rollback()
	}

	rows, err := e.src.QueryContext(ctx, buildSelect(e.srcDialect, table, plans))
	if err != nil {
		return fmt.Errorf("reading table %s: %w", table.Name, err)
	}
	defer rows.Close()

	batch := make([][]any, 0, batchRows)
	batchIDs := make([]string, 0, batchRows)

	// Rows flushed inside the keyless transaction are provisional: they only
	// count as written once the commit lands, so a rollback reports zero.
	var pending int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := e.writeBatch(ctx, tx, table, plans, batch, batchIDs, hasPK, res)
		if err != nil {
			return err
		}
		if hasPK {
			res.RowsWritten += n
		} else {
			pending += n
		}
		if opts.Progress != nil {
			opts.Progress.Add(len(batch))
		}
		batch = batch[:0]
		batchIDs = batchIDs[:0]
		return nil
	}

	var ordinal int64
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			// Cancelled mid-table: the extent of partial writes is not
			// validated, so the whole table is failed.
			return err
		}

		raw := make([]any, len(plans))
		ptrs := make([]any, len(plans))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scanning row from %s: %w", table.Name, err)
		}
		ordinal++
		res.RowsRead++

		rowID := rowIdentifier(raw, pkIdx, ordinal)
		coerced := make([]any, len(plans))
		var rowErr error
		for i, p := range plans {
			coerced[i], rowErr = coerceValue(raw[i], p)
			if rowErr != nil {
				break
			}
		}
		if rowErr != nil {
			if !hasPK {
				return fmt.Errorf("table %s has no primary key; row %s failed coercion: %w",
					table.Name, rowID, rowErr)
			}
			res.RowErrors = append(res.RowErrors, RowError{Row: rowID, Reason: rowErr.Error()})
			continue
		}

		batch = append(batch, coerced)
		batchIDs = append(batchIDs, rowID)
		if len(batch) >= batchRows {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading table %s: %w", table.Name, err)
	}
	if err := flush(); err != nil {
		return err
	}

	if !hasPK {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing table %s: %w", table.Name, err)
		}
		res.RowsWritten += pending
	}
	return nil
}

// writeBatch inserts one batch and returns how many rows landed. On failure
// with a keyed table it retries row by row so the error lands on the
// responsible rows; a keyless table's enclosing transaction is simply
// poisoned.
func (e *Engine) writeBatch(ctx context.Context, tx *sql.Tx, table driver.Table, plans []typemap.Plan, batch [][]any, batchIDs []string, hasPK bool, res *Result) (int64, error) {
	query := buildInsert(e.dstDialect, table, plans, len(batch))
	args := make([]any, 0, len(batch)*len(plans))
	for _, row := range batch {
		args = append(args, row...)
	}

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = e.dst.ExecContext(ctx, query, args...)
	}
	if err == nil {
		return int64(len(batch)), nil
	}
	if !hasPK {
		return 0, fmt.Errorf("writing batch to %s: %w", table.Name, err)
	}

	logging.Debug("table %s: batch insert failed (%v), retrying row by row", table.Name, err)
	single := buildInsert(e.dstDialect, table, plans, 1)
	var written int64
	for i, row := range batch {
		if _, rerr := e.dst.ExecContext(ctx, single, row...); rerr != nil {
			res.RowErrors = append(res.RowErrors, RowError{Row: batchIDs[i], Reason: rerr.Error()})
			continue
		}
		written++
	}
	return written, nil
}

// rowIdentifier renders the primary key value for error attribution, or the
// 1-based ordinal position for keyless tables.
func rowIdentifier(raw []any, pkIdx []int, ordinal int64) string {
	if len(pkIdx) == 0 {
		return fmt.Sprintf("#%d", ordinal)
	}
	parts := make([]string, len(pkIdx))
	for i, idx := range pkIdx {
		v := raw[idx]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, "/")
}
