package validate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/reyya31/dbmigrate/internal/driver"
)

func openPair(t *testing.T) (*sql.DB, *sql.DB, driver.Dialect) {
	t.Helper()
	d, err := driver.Get("sqlite")
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	src, err := sql.Open(d.DriverName(), filepath.Join(dir, "src.db"))
	if err != nil {
		t.Fatal(err)
	}
	dst, err := sql.Open(d.DriverName(), filepath.Join(dir, "dst.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		src.Close()
		dst.Close()
	})
	return src, dst, d
}

func seed(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

var claimsTable = driver.Table{
	Name: "claims",
	Columns: []driver.Column{
		{Name: "claim_id", Tag: driver.TagInteger},
		{Name: "amount", Tag: driver.TagDecimal, Precision: 10, Scale: 2},
		{Name: "note", Tag: driver.TagText},
	},
	PrimaryKey: []string{"claim_id"},
}

const claimsDDL = `CREATE TABLE claims (claim_id INTEGER PRIMARY KEY, amount DECIMAL(10,2), note TEXT)`

func TestValidateMatch(t *testing.T) {
	src, dst, d := openPair(t)
	for _, db := range []*sql.DB{src, dst} {
		seed(t, db, claimsDDL,
			`INSERT INTO claims VALUES (1, 100.25, 'a')`,
			`INSERT INTO claims VALUES (2, 200.50, NULL)`,
			`INSERT INTO claims VALUES (3, NULL, 'c')`,
		)
	}

	rep, err := New(src, dst, d, d, 0).Validate(context.Background(), claimsTable)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Passed() {
		t.Errorf("identical tables must validate clean: %v", rep.Mismatches())
	}
	if rep.SourceRows != 3 || rep.TargetRows != 3 {
		t.Errorf("row counts = %d/%d, want 3/3", rep.SourceRows, rep.TargetRows)
	}
	// claim_id and amount are numeric, sum and count for each.
	if len(rep.Aggregates) != 4 {
		t.Errorf("got %d aggregate comparisons, want 4", len(rep.Aggregates))
	}
}

func TestValidateSumMismatchAtZeroTolerance(t *testing.T) {
	src, dst, d := openPair(t)
	seed(t, src, claimsDDL, `INSERT INTO claims VALUES (1, 100.25, 'a')`)
	seed(t, dst, claimsDDL, `INSERT INTO claims VALUES (1, 100.26, 'a')`)

	rep, err := New(src, dst, d, d, 0).Validate(context.Background(), claimsTable)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Passed() {
		t.Error("one cent of drift must fail at tolerance zero")
	}
	var flagged bool
	for _, a := range rep.Aggregates {
		if a.Metric == "sum(amount)" && !a.WithinTolerance {
			flagged = true
		}
	}
	if !flagged {
		t.Errorf("sum(amount) mismatch not flagged: %+v", rep.Aggregates)
	}
}

func TestValidateToleranceAbsorbsDrift(t *testing.T) {
	src, dst, d := openPair(t)
	seed(t, src, claimsDDL, `INSERT INTO claims VALUES (1, 1000.00, NULL)`)
	seed(t, dst, claimsDDL, `INSERT INTO claims VALUES (1, 1000.01, NULL)`)

	// Relative drift here is 1e-5; a 1e-4 tolerance accepts it.
	rep, err := New(src, dst, d, d, 1e-4).Validate(context.Background(), claimsTable)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Passed() {
		t.Errorf("drift within tolerance must pass: %v", rep.Mismatches())
	}
}

func TestValidateRowCountNeverTolerant(t *testing.T) {
	src, dst, d := openPair(t)
	seed(t, src, claimsDDL,
		`INSERT INTO claims VALUES (1, 10, NULL)`,
		`INSERT INTO claims VALUES (2, 20, NULL)`,
	)
	seed(t, dst, claimsDDL, `INSERT INTO claims VALUES (1, 30, NULL)`)

	// Even a huge tolerance does not excuse a missing row.
	rep, err := New(src, dst, d, d, 10).Validate(context.Background(), claimsTable)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Passed() {
		t.Error("row count mismatch must fail regardless of tolerance")
	}
}

func TestValidateNonNullCountExact(t *testing.T) {
	src, dst, d := openPair(t)
	// Same sum on both sides but a NULL swapped for a zero.
	seed(t, src, claimsDDL,
		`INSERT INTO claims VALUES (1, 50, NULL)`,
		`INSERT INTO claims VALUES (2, NULL, NULL)`,
	)
	seed(t, dst, claimsDDL,
		`INSERT INTO claims VALUES (1, 50, NULL)`,
		`INSERT INTO claims VALUES (2, 0, NULL)`,
	)

	rep, err := New(src, dst, d, d, 10).Validate(context.Background(), claimsTable)
	if err != nil {
		t.Fatal(err)
	}
	var flagged bool
	for _, a := range rep.Aggregates {
		if a.Metric == "count(amount)" && !a.WithinTolerance {
			flagged = true
		}
	}
	if !flagged {
		t.Error("non-null count drift must be flagged even under tolerance")
	}
}

func TestWithin(t *testing.T) {
	dec := func(s string) decimal.Decimal {
		d, err := decimal.NewFromString(s)
		if err != nil {
			t.Fatal(err)
		}
		return d
	}

	tests := []struct {
		name      string
		tolerance float64
		source    string
		target    string
		want      bool
	}{
		{"exact at zero", 0, "100.25", "100.25", true},
		{"drift at zero", 0, "100.25", "100.26", false},
		{"drift inside", 0.001, "1000", "1000.5", true},
		{"drift outside", 0.001, "1000", "1002", false},
		{"both zero", 0, "0", "0", true},
		{"negative sums", 0.01, "-1000", "-1005", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Engine{tolerance: decimal.NewFromFloat(tt.tolerance)}
			if got := e.within(dec(tt.source), dec(tt.target)); got != tt.want {
				t.Errorf("within(%s, %s) tol %g = %v, want %v",
					tt.source, tt.target, tt.tolerance, got, tt.want)
			}
		})
	}
}

func TestScanDecimal(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "0"},
		{"int64", int64(42), "42"},
		{"float64", float64(10.5), "10.5"},
		{"bytes", []byte(" 100.25 "), "100.25"},
		{"string", "3.14", "3.14"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := scanDecimal(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if d.String() != tt.want {
				t.Errorf("scanDecimal(%v) = %s, want %s", tt.in, d, tt.want)
			}
		})
	}

	if _, err := scanDecimal(struct{}{}); err == nil {
		t.Error("scanDecimal on an unsupported type should fail")
	}
}
