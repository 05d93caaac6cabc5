package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reyya31/dbmigrate/internal/driver"
	"github.com/reyya31/dbmigrate/internal/schema"
	"github.com/reyya31/dbmigrate/internal/typemap"
)

type testPair struct {
	src, dst *sql.DB
	dialect  driver.Dialect
	engine   *Engine
}

func newTestPair(t *testing.T) *testPair {
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
	return &testPair{src: src, dst: dst, dialect: d, engine: New(src, dst, d, d)}
}

func (p *testPair) mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func (p *testPair) describe(t *testing.T, name string) (driver.Table, []typemap.Plan) {
	t.Helper()
	table, err := schema.NewIntrospector(p.src, p.dialect).DescribeTable(context.Background(), name)
	if err != nil {
		t.Fatal(err)
	}
	return *table, typemap.ResolveTable(*table, p.dialect)
}

func (p *testPair) count(t *testing.T, db *sql.DB, table string) int64 {
	t.Helper()
	var n int64
	if err := db.QueryRow("SELECT COUNT(*) FROM " + p.dialect.QuoteIdentifier(table)).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestTransferEmptyTable(t *testing.T) {
	p := newTestPair(t)
	p.mustExec(t, p.src, `CREATE TABLE claims (claim_id INTEGER PRIMARY KEY, amount DECIMAL(10,2))`)

	table, plans := p.describe(t, "claims")
	res, err := p.engine.Transfer(context.Background(), table, plans, ModeReplace, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %s, want SUCCESS", res.Outcome)
	}
	if res.RowsRead != 0 || res.RowsWritten != 0 {
		t.Errorf("rows read/written = %d/%d, want 0/0", res.RowsRead, res.RowsWritten)
	}
	if len(res.RowErrors) != 0 {
		t.Errorf("unexpected row errors: %v", res.RowErrors)
	}
	if got := p.count(t, p.dst, "claims"); got != 0 {
		t.Errorf("target has %d rows, want 0", got)
	}
}

func TestTransferNullPreservation(t *testing.T) {
	p := newTestPair(t)
	p.mustExec(t, p.src, `CREATE TABLE members (
		member_id INTEGER PRIMARY KEY,
		name TEXT,
		risk_score DECIMAL(5,2),
		active BOOLEAN
	)`)
	p.mustExec(t, p.src, `INSERT INTO members VALUES (1, NULL, NULL, NULL)`)
	p.mustExec(t, p.src, `INSERT INTO members VALUES (2, 'Jordan', 3.25, 1)`)

	table, plans := p.describe(t, "members")
	res, err := p.engine.Transfer(context.Background(), table, plans, ModeReplace, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeSuccess || res.RowsWritten != 2 {
		t.Fatalf("outcome %s written %d, want SUCCESS/2", res.Outcome, res.RowsWritten)
	}

	var name, score, active any
	err = p.dst.QueryRow(`SELECT "name", "risk_score", "active" FROM "members" WHERE "member_id" = 1`).
		Scan(&name, &score, &active)
	if err != nil {
		t.Fatal(err)
	}
	if name != nil || score != nil || active != nil {
		t.Errorf("NULLs not preserved: name=%v score=%v active=%v", name, score, active)
	}
}

func TestTransferReplaceIdempotent(t *testing.T) {
	p := newTestPair(t)
	p.mustExec(t, p.src, `CREATE TABLE plans (plan_id INTEGER PRIMARY KEY, premium DECIMAL(10,2))`)
	for i := 1; i <= 5; i++ {
		p.mustExec(t, p.src, `INSERT INTO plans VALUES (?, ?)`, i, float64(i)*100.25)
	}

	table, plans := p.describe(t, "plans")
	for run := 0; run < 2; run++ {
		res, err := p.engine.Transfer(context.Background(), table, plans, ModeReplace, Options{})
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if res.Outcome != OutcomeSuccess || res.RowsWritten != 5 {
			t.Fatalf("run %d: outcome %s written %d", run, res.Outcome, res.RowsWritten)
		}
		if got := p.count(t, p.dst, "plans"); got != 5 {
			t.Fatalf("run %d: target has %d rows, want 5", run, got)
		}
	}
}

func TestTransferAppendConflict(t *testing.T) {
	p := newTestPair(t)
	p.mustExec(t, p.src, `CREATE TABLE plans (plan_id INTEGER PRIMARY KEY, name TEXT)`)
	p.mustExec(t, p.src, `INSERT INTO plans VALUES (1, 'bronze')`)

	table, plans := p.describe(t, "plans")
	if _, err := p.engine.Transfer(context.Background(), table, plans, ModeReplace, Options{}); err != nil {
		t.Fatal(err)
	}

	res, err := p.engine.Transfer(context.Background(), table, plans, ModeAppend, Options{})
	if err == nil {
		t.Fatal("append onto existing table should conflict")
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("error is %T, want *ConflictError", err)
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want FAILED", res.Outcome)
	}
}

func TestTransferAppendForced(t *testing.T) {
	p := newTestPair(t)
	p.mustExec(t, p.src, `CREATE TABLE log (entry_id INTEGER PRIMARY KEY, note TEXT)`)
	p.mustExec(t, p.src, `INSERT INTO log VALUES (1, 'first')`)

	table, plans := p.describe(t, "log")
	if _, err := p.engine.Transfer(context.Background(), table, plans, ModeReplace, Options{}); err != nil {
		t.Fatal(err)
	}

	// Shift the key so the forced append does not collide.
	p.mustExec(t, p.src, `UPDATE log SET entry_id = 2`)
	res, err := p.engine.Transfer(context.Background(), table, plans, ModeAppend, Options{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %s, want SUCCESS", res.Outcome)
	}
	if got := p.count(t, p.dst, "log"); got != 2 {
		t.Errorf("target has %d rows, want 2", got)
	}
}

// The claims scenario: 100 rows, 3 with a denial_reason longer than the
// target limit. Expect 97 written, PARTIAL, 3 recorded row errors.
func TestTransferPartialWithBadRows(t *testing.T) {
	p := newTestPair(t)
	p.mustExec(t, p.src, `CREATE TABLE claims (
		claim_id INTEGER PRIMARY KEY,
		amount DECIMAL(10,2),
		denial_reason VARCHAR(20)
	)`)
	long := strings.Repeat("x", 40)
	for i := 1; i <= 100; i++ {
		reason := "ok"
		if i%33 == 0 { // rows 33, 66, 99
			reason = long
		}
		p.mustExec(t, p.src, `INSERT INTO claims VALUES (?, ?, ?)`, i, float64(i), reason)
	}

	table, plans := p.describe(t, "claims")
	res, err := p.engine.Transfer(context.Background(), table, plans, ModeReplace, Options{BatchSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomePartial {
		t.Errorf("outcome = %s, want PARTIAL", res.Outcome)
	}
	if res.RowsRead != 100 {
		t.Errorf("rows read = %d, want 100", res.RowsRead)
	}
	if res.RowsWritten != 97 {
		t.Errorf("rows written = %d, want 97", res.RowsWritten)
	}
	if len(res.RowErrors) != 3 {
		t.Fatalf("got %d row errors, want 3: %v", len(res.RowErrors), res.RowErrors)
	}
	wantRows := []string{"33", "66", "99"}
	for i, re := range res.RowErrors {
		if re.Row != wantRows[i] {
			t.Errorf("row error %d attributed to %q, want %q", i, re.Row, wantRows[i])
		}
	}
	if got := p.count(t, p.dst, "claims"); got != 97 {
		t.Errorf("target has %d rows, want 97", got)
	}
}

// Without a primary key a bad row fails the whole table atomically: a
// partial table with no row identity is unauditable. The bad row sits in the
// third position with a batch size of two, so an earlier batch has already
// been flushed into the transaction and must not be reported as written
// after the rollback.
func TestTransferNoPKFailsAtomically(t *testing.T) {
	p := newTestPair(t)
	p.mustExec(t, p.src, `CREATE TABLE notes (body VARCHAR(10))`)
	p.mustExec(t, p.src, `INSERT INTO notes VALUES ('fine')`)
	p.mustExec(t, p.src, `INSERT INTO notes VALUES ('also fine')`)
	p.mustExec(t, p.src, `INSERT INTO notes VALUES ('way too long for ten')`)
	p.mustExec(t, p.src, `INSERT INTO notes VALUES ('trailing')`)

	table, plans := p.describe(t, "notes")
	res, err := p.engine.Transfer(context.Background(), table, plans, ModeReplace, Options{BatchSize: 2})
	if err == nil {
		t.Fatal("expected table-level failure")
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want FAILED", res.Outcome)
	}
	if res.RowsWritten != 0 {
		t.Errorf("rows written = %d, want 0 (no partial write accepted)", res.RowsWritten)
	}
	if got := p.count(t, p.dst, "notes"); got != 0 {
		t.Errorf("target has %d rows, want 0", got)
	}
}

func TestTransferCancelled(t *testing.T) {
	p := newTestPair(t)
	p.mustExec(t, p.src, `CREATE TABLE big (n INTEGER PRIMARY KEY)`)
	tx, err := p.src.Begin()
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 10000; i++ {
		if _, err := tx.Exec(`INSERT INTO big VALUES (?)`, i); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	table, plans := p.describe(t, "big")

	// Prepare the target first so cancellation lands inside the copy loop.
	if _, err := p.engine.Transfer(context.Background(), table, plans, ModeReplace, Options{}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.engine.Transfer(ctx, table, plans, ModeReplace, Options{})
	if err == nil {
		t.Fatal("cancelled transfer must fail")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want FAILED (never PARTIAL on cancellation)", res.Outcome)
	}
}

// Deadline expiry on a database call classifies as a connection failure,
// unlike an explicit interrupt.
func TestTransferTimeout(t *testing.T) {
	p := newTestPair(t)
	p.mustExec(t, p.src, `CREATE TABLE plans (plan_id INTEGER PRIMARY KEY)`)
	p.mustExec(t, p.src, `INSERT INTO plans VALUES (1)`)

	table, plans := p.describe(t, "plans")

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	res, err := p.engine.Transfer(ctx, table, plans, ModeReplace, Options{})
	if err == nil {
		t.Fatal("expired deadline must fail the transfer")
	}
	var connErr *driver.ConnectionError
	if !errors.As(err, &connErr) {
		t.Errorf("error is %T (%v), want *driver.ConnectionError", err, err)
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want FAILED", res.Outcome)
	}
}

func TestTransferRejectColumn(t *testing.T) {
	p := newTestPair(t)
	p.mustExec(t, p.src, `CREATE TABLE files (file_id INTEGER PRIMARY KEY, name TEXT, body BLOB)`)
	p.mustExec(t, p.src, `INSERT INTO files VALUES (1, 'a', x'00ff')`)

	table, plans := p.describe(t, "files")
	// Force a REJECT plan for the blob column.
	for i := range plans {
		if plans[i].Column.Name == "body" {
			plans[i].Strategy = typemap.StrategyReject
			plans[i].Warning = fmt.Sprintf("column %s cannot be represented", plans[i].Column.Name)
		}
	}

	if _, err := p.engine.Transfer(context.Background(), table, plans, ModeReplace, Options{}); err == nil {
		t.Fatal("REJECT without skip_unmapped must halt the table")
	}

	res, err := p.engine.Transfer(context.Background(), table, plans, ModeReplace, Options{SkipUnmapped: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeSuccess || res.RowsWritten != 1 {
		t.Fatalf("outcome %s written %d, want SUCCESS/1", res.Outcome, res.RowsWritten)
	}

	rows, err := p.dst.Query(`SELECT * FROM "files"`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cols {
		if c == "body" {
			t.Error("rejected column was written to the target")
		}
	}
}

func TestBuildInsertPlaceholders(t *testing.T) {
	pg, err := driver.Get("postgres")
	if err != nil {
		t.Fatal(err)
	}
	table := driver.Table{Name: "t", Columns: []driver.Column{
		{Name: "a", Tag: driver.TagInteger},
		{Name: "b", Tag: driver.TagText},
	}}
	plans := typemap.ResolveTable(table, pg)

	got := buildInsert(pg, table, plans, 2)
	want := `INSERT INTO "t" ("a", "b") VALUES ($1, $2), ($3, $4)`
	if got != want {
		t.Errorf("buildInsert = %q, want %q", got, want)
	}
}

func TestBuildSelectOrdersByPK(t *testing.T) {
	sq, err := driver.Get("sqlite")
	if err != nil {
		t.Fatal(err)
	}
	table := driver.Table{
		Name: "enrollments",
		Columns: []driver.Column{
			{Name: "member_id", Tag: driver.TagInteger},
			{Name: "plan_id", Tag: driver.TagInteger},
		},
		PrimaryKey: []string{"member_id", "plan_id"},
	}
	plans := typemap.ResolveTable(table, sq)

	got := buildSelect(sq, table, plans)
	if !strings.HasSuffix(got, `ORDER BY "member_id", "plan_id"`) {
		t.Errorf("select must order by the full primary key: %s", got)
	}

	table.PrimaryKey = nil
	got = buildSelect(sq, table, plans)
	if strings.Contains(got, "ORDER BY") {
		t.Errorf("keyless select must not impose an order: %s", got)
	}
}
