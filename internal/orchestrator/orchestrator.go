// Package orchestrator sequences introspection, per-table planning, transfer
// and validation, and assembles the final migration report.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/reyya31/dbmigrate/internal/config"
	"github.com/reyya31/dbmigrate/internal/driver"
	"github.com/reyya31/dbmigrate/internal/logging"
	"github.com/reyya31/dbmigrate/internal/report"
	"github.com/reyya31/dbmigrate/internal/schema"
	"github.com/reyya31/dbmigrate/internal/transfer"
	"github.com/reyya31/dbmigrate/internal/typemap"
	"github.com/reyya31/dbmigrate/internal/validate"
)

// Per-table states. Failed absorbs from any non-done state; one table's
// failure never transitions its siblings.
const (
	StatePending      = "PENDING"
	StatePlanning     = "PLANNING"
	StateTransferring = "TRANSFERRING"
	StateValidating   = "VALIDATING"
	StateDone         = "DONE"
	StateFailed       = "FAILED"
)

// Orchestrator coordinates one migration run. All state is per-run; nothing
// survives across runs.
type Orchestrator struct {
	cfg *config.Config

	// ShowProgress enables the row progress bar (off for JSON output).
	ShowProgress bool
}

// New creates an orchestrator for the given configuration.
func New(cfg *config.Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// Run executes a migration: introspect, then per-table plan, transfer and
// validate across a bounded worker pool. A non-nil error means the run
// aborted before any table was attempted (catalog-level failure); per-table
// failures live in the report.
func (o *Orchestrator) Run(ctx context.Context) (*report.Migration, error) {
	runID := uuid.New().String()[:8]
	mode, err := transfer.ParseMode(o.cfg.Migration.Mode)
	if err != nil {
		return nil, err
	}

	m := &report.Migration{
		RunID:     runID,
		Mode:      mode.String(),
		DryRun:    o.cfg.Migration.DryRun,
		StartedAt: time.Now(),
	}
	logging.Info("starting migration run %s: %s -> %s (mode %s)",
		runID, o.cfg.Source.Descriptor().Redacted(),
		o.cfg.Target.Descriptor().Redacted(), mode)

	tables, dstDialect, err := o.introspect(ctx)
	if err != nil {
		// Catalog-level failure: fail fast before any table enters planning.
		return nil, err
	}
	logging.Info("found %d tables to migrate", len(tables))

	m.Tables = make([]report.Table, len(tables))
	for i, t := range tables {
		m.Tables[i] = report.Table{Table: t.Name, State: StatePending}
	}

	var bar *progressbar.ProgressBar
	if o.ShowProgress && !o.cfg.Migration.DryRun {
		bar = progressbar.NewOptions64(-1,
			progressbar.OptionSetDescription("rows"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetRenderBlankState(false),
		)
	}

	// Workers produce their slot's result and hand it back over the
	// channel; this goroutine is the sole mutator of the report.
	type slotResult struct {
		idx int
		tbl report.Table
	}
	results := make(chan slotResult, len(tables))

	sem := make(chan struct{}, o.cfg.Migration.Workers)
	var wg sync.WaitGroup
	for i, t := range tables {
		wg.Add(1)
		go func(idx int, table driver.Table) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- slotResult{idx: idx, tbl: o.processTable(ctx, table, dstDialect, mode, bar)}
		}(i, t)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		m.Tables[r.idx] = r.tbl
	}
	if bar != nil {
		bar.Finish()
		logging.Print("\n")
	}

	m.Elapsed = time.Since(m.StartedAt)
	m.Finalize()
	logging.Info("run %s finished: %s in %s", runID, m.Overall, m.Elapsed.Round(time.Millisecond))
	return m, nil
}

// introspect opens a catalog connection to the source, lists the tables and
// applies the configured filters. The target dialect is resolved here so
// planning can run even for a dry run that never touches the target.
func (o *Orchestrator) introspect(ctx context.Context) ([]driver.Table, driver.Dialect, error) {
	dstDialect, err := driver.Get(o.cfg.Target.Engine)
	if err != nil {
		return nil, nil, err
	}

	db, srcDialect, err := driver.Open(ctx, o.cfg.Source.Descriptor(), o.cfg.Migration.ConnectRetries)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()

	tables, err := schema.NewIntrospector(db, srcDialect).ListTables(ctx)
	if err != nil {
		return nil, nil, err
	}

	tables = filterTables(tables, o.cfg.Migration.Tables, o.cfg.Migration.ExcludeTables)
	if len(tables) == 0 {
		return nil, nil, fmt.Errorf("no tables to migrate after applying filters")
	}
	return tables, dstDialect, nil
}

// processTable walks one table through the state machine. It always returns
// a populated slot; failures are recorded, never swallowed.
func (o *Orchestrator) processTable(ctx context.Context, table driver.Table, dstDialect driver.Dialect, mode transfer.Mode, bar *progressbar.ProgressBar) report.Table {
	slot := report.Table{Table: table.Name, State: StatePlanning}
	fail := func(err error) report.Table {
		slot.State = StateFailed
		slot.Error = err.Error()
		logging.Error("table %s: %v", table.Name, err)
		return slot
	}

	plans := typemap.ResolveTable(table, dstDialect)
	for _, p := range plans {
		if p.Warning != "" {
			logging.Warn("table %s: %s", table.Name, p.Warning)
		}
	}

	if o.cfg.Migration.DryRun {
		slot.Plans = plans
		slot.State = StateDone
		return slot
	}

	// Each worker acquires its own connections, released on completion or
	// failure; no connection is shared across concurrent table transfers.
	srcDB, srcDialect, err := driver.Open(ctx, o.cfg.Source.Descriptor(), o.cfg.Migration.ConnectRetries)
	if err != nil {
		return fail(err)
	}
	defer srcDB.Close()

	dstDB, _, err := driver.Open(ctx, o.cfg.Target.Descriptor(), o.cfg.Migration.ConnectRetries)
	if err != nil {
		return fail(err)
	}
	defer dstDB.Close()

	slot.State = StateTransferring
	engine := transfer.New(srcDB, dstDB, srcDialect, dstDialect)
	result, err := engine.Transfer(ctx, table, plans, mode, transfer.Options{
		BatchSize:    o.cfg.Migration.BatchSize,
		SkipUnmapped: o.cfg.Migration.SkipUnmapped,
		Force:        o.cfg.Migration.Force,
		Progress:     bar,
	})
	slot.Transfer = result
	if err != nil {
		// A cancelled or failed transfer is never validated: the extent of
		// its partial writes is unknown.
		return fail(err)
	}

	slot.State = StateValidating
	v := validate.New(srcDB, dstDB, srcDialect, dstDialect, o.cfg.Migration.NumericTolerance)
	vr, err := v.Validate(ctx, table)
	if err != nil {
		return fail(err)
	}
	slot.Validation = vr

	slot.State = StateDone
	return slot
}

// Plan performs a dry run: introspect and type-map only, no writes.
func (o *Orchestrator) Plan(ctx context.Context) (*report.Migration, error) {
	saved := o.cfg.Migration.DryRun
	o.cfg.Migration.DryRun = true
	defer func() { o.cfg.Migration.DryRun = saved }()
	return o.Run(ctx)
}

// ValidateOnly re-runs validation against an already-migrated target.
func (o *Orchestrator) ValidateOnly(ctx context.Context) (*report.Migration, error) {
	m := &report.Migration{
		RunID:     uuid.New().String()[:8],
		Mode:      "VALIDATE",
		StartedAt: time.Now(),
	}

	tables, dstDialect, err := o.introspect(ctx)
	if err != nil {
		return nil, err
	}

	srcDB, srcDialect, err := driver.Open(ctx, o.cfg.Source.Descriptor(), o.cfg.Migration.ConnectRetries)
	if err != nil {
		return nil, err
	}
	defer srcDB.Close()

	dstDB, _, err := driver.Open(ctx, o.cfg.Target.Descriptor(), o.cfg.Migration.ConnectRetries)
	if err != nil {
		return nil, err
	}
	defer dstDB.Close()

	v := validate.New(srcDB, dstDB, srcDialect, dstDialect, o.cfg.Migration.NumericTolerance)
	for _, t := range tables {
		slot := report.Table{Table: t.Name, State: StateValidating}
		vr, err := v.Validate(ctx, t)
		if err != nil {
			slot.State = StateFailed
			slot.Error = err.Error()
		} else {
			slot.Validation = vr
			slot.State = StateDone
		}
		m.Tables = append(m.Tables, slot)
	}

	m.Elapsed = time.Since(m.StartedAt)
	m.Finalize()
	return m, nil
}

// filterTables applies include/exclude glob patterns to the table list.
func filterTables(tables []driver.Table, include, exclude []string) []driver.Table {
	if len(include) == 0 && len(exclude) == 0 {
		return tables
	}

	var filtered []driver.Table
	var skipped []string

	for _, t := range tables {
		name := strings.ToLower(t.Name)

		if len(include) > 0 {
			matched := false
			for _, pattern := range include {
				if ok, _ := filepath.Match(strings.ToLower(pattern), name); ok {
					matched = true
					break
				}
			}
			if !matched {
				skipped = append(skipped, t.Name)
				continue
			}
		}

		excluded := false
		for _, pattern := range exclude {
			if ok, _ := filepath.Match(strings.ToLower(pattern), name); ok {
				excluded = true
				skipped = append(skipped, t.Name)
				break
			}
		}
		if excluded {
			continue
		}

		filtered = append(filtered, t)
	}

	if len(skipped) > 0 {
		logging.Info("skipped %d tables by filter: %v", len(skipped), skipped)
	}
	return filtered
}
