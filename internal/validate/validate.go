// Package validate proves a transfer by comparing row counts and numeric
// aggregates between source and target. Comparison is read-only.
package validate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/reyya31/dbmigrate/internal/driver"
)

// AggregateComparison is one metric compared across both sides.
type AggregateComparison struct {
	Metric          string `json:"metric"`
	Source          string `json:"source"`
	Target          string `json:"target"`
	WithinTolerance bool   `json:"within_tolerance"`
}

// Report holds one table's validation outcome. Row counts are always
// compared exactly; numeric aggregates honor the configured tolerance.
type Report struct {
	Table      string                `json:"table"`
	SourceRows int64                 `json:"source_rows"`
	TargetRows int64                 `json:"target_rows"`
	Aggregates []AggregateComparison `json:"aggregates,omitempty"`
}

// Passed reports whether every comparison is within tolerance.
// Row count tolerance is always zero.
func (r *Report) Passed() bool {
	if r.SourceRows != r.TargetRows {
		return false
	}
	for _, a := range r.Aggregates {
		if !a.WithinTolerance {
			return false
		}
	}
	return true
}

// Mismatches lists the failed comparisons for display.
func (r *Report) Mismatches() []string {
	var out []string
	if r.SourceRows != r.TargetRows {
		out = append(out, fmt.Sprintf("row count source=%d target=%d", r.SourceRows, r.TargetRows))
	}
	for _, a := range r.Aggregates {
		if !a.WithinTolerance {
			out = append(out, fmt.Sprintf("%s source=%s target=%s", a.Metric, a.Source, a.Target))
		}
	}
	return out
}

// Engine compares one source/target connection pair.
type Engine struct {
	src, dst   *sql.DB
	srcDialect driver.Dialect
	dstDialect driver.Dialect
	tolerance  decimal.Decimal // relative tolerance for numeric aggregates
}

// New creates a validation engine. tolerance is the maximum acceptable
// relative discrepancy for numeric aggregates; zero requires exact equality.
func New(src, dst *sql.DB, srcDialect, dstDialect driver.Dialect, tolerance float64) *Engine {
	return &Engine{
		src:        src,
		dst:        dst,
		srcDialect: srcDialect,
		dstDialect: dstDialect,
		tolerance:  decimal.NewFromFloat(tolerance),
	}
}

// Validate compares row counts and, for numeric columns, SUM and
// COUNT-of-non-null on both sides. Sums are compared as exact decimals so
// float drift cannot mask a mismatch.
func (v *Engine) Validate(ctx context.Context, table driver.Table) (*Report, error) {
	r, err := v.validate(ctx, table)
	if err != nil {
		return nil, driver.WrapTimeout("table "+table.Name, err)
	}
	return r, nil
}

func (v *Engine) validate(ctx context.Context, table driver.Table) (*Report, error) {
	report := &Report{Table: table.Name}

	var err error
	report.SourceRows, err = rowCount(ctx, v.src, v.srcDialect, table.Name)
	if err != nil {
		return nil, fmt.Errorf("counting source rows: %w", err)
	}
	report.TargetRows, err = rowCount(ctx, v.dst, v.dstDialect, table.Name)
	if err != nil {
		return nil, fmt.Errorf("counting target rows: %w", err)
	}

	for _, col := range table.NumericColumns() {
		srcSum, srcCount, err := columnAggregates(ctx, v.src, v.srcDialect, table.Name, col.Name)
		if err != nil {
			return nil, fmt.Errorf("aggregating source column %s: %w", col.Name, err)
		}
		dstSum, dstCount, err := columnAggregates(ctx, v.dst, v.dstDialect, table.Name, col.Name)
		if err != nil {
			return nil, fmt.Errorf("aggregating target column %s: %w", col.Name, err)
		}

		report.Aggregates = append(report.Aggregates,
			AggregateComparison{
				Metric:          fmt.Sprintf("sum(%s)", col.Name),
				Source:          srcSum.String(),
				Target:          dstSum.String(),
				WithinTolerance: v.within(srcSum, dstSum),
			},
			AggregateComparison{
				Metric: fmt.Sprintf("count(%s)", col.Name),
				Source: srcCount.String(),
				Target: dstCount.String(),
				// Non-null counts never tolerate drift.
				WithinTolerance: srcCount.Equal(dstCount),
			})
	}
	return report, nil
}

// within compares two aggregates under the relative tolerance:
// |source-target| <= tolerance * max(|source|, |target|).
func (v *Engine) within(source, target decimal.Decimal) bool {
	if source.Equal(target) {
		return true
	}
	if v.tolerance.Sign() <= 0 {
		return false
	}
	delta := source.Sub(target).Abs()
	scale := source.Abs()
	if t := target.Abs(); t.GreaterThan(scale) {
		scale = t
	}
	return delta.LessThanOrEqual(v.tolerance.Mul(scale))
}

func rowCount(ctx context.Context, db *sql.DB, d driver.Dialect, table string) (int64, error) {
	var n int64
	q := "SELECT COUNT(*) FROM " + d.QuoteIdentifier(table)
	if err := db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func columnAggregates(ctx context.Context, db *sql.DB, d driver.Dialect, table, column string) (sum, count decimal.Decimal, err error) {
	qcol := d.QuoteIdentifier(column)
	q := fmt.Sprintf("SELECT COALESCE(SUM(%s), 0), COUNT(%s) FROM %s",
		qcol, qcol, d.QuoteIdentifier(table))

	var rawSum, rawCount any
	if err = db.QueryRowContext(ctx, q).Scan(&rawSum, &rawCount); err != nil {
		return
	}
	if sum, err = scanDecimal(rawSum); err != nil {
		return
	}
	count, err = scanDecimal(rawCount)
	return
}

// scanDecimal converts a driver-provided aggregate into an exact decimal.
// Engines return sums as int64, float64, or numeric text depending on the
// column type.
func scanDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, nil
	case int64:
		return decimal.NewFromInt(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case []byte:
		return decimal.NewFromString(strings.TrimSpace(string(n)))
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	default:
		return decimal.Decimal{}, fmt.Errorf("cannot read %T as numeric aggregate", v)
	}
}
