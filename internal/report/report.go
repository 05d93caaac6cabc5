// Package report assembles the per-table transfer and validation results
// into the final migration report.
package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/reyya31/dbmigrate/internal/logging"
	"github.com/reyya31/dbmigrate/internal/transfer"
	"github.com/reyya31/dbmigrate/internal/typemap"
	"github.com/reyya31/dbmigrate/internal/validate"
)

// Overall classifies a whole run.
const (
	OverallSuccess = "SUCCESS"
	OverallPartial = "PARTIAL"
	OverallFailed  = "FAILED"
)

// Table is one table's slot in the migration report. Every attempted table
// appears exactly once; there is no swallowed failure.
type Table struct {
	Table      string           `json:"table"`
	State      string           `json:"state"`
	Plans      []typemap.Plan   `json:"plans,omitempty"` // populated for dry runs
	Transfer   *transfer.Result `json:"transfer,omitempty"`
	Validation *validate.Report `json:"validation,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Succeeded reports whether the table transferred fully and validated clean.
func (t *Table) Succeeded() bool {
	if t.Error != "" {
		return false
	}
	if t.Transfer != nil && t.Transfer.Outcome != transfer.OutcomeSuccess {
		return false
	}
	if t.Validation != nil && !t.Validation.Passed() {
		return false
	}
	return true
}

// Migration is the final report for one run, serializable for machine
// consumption and renderable for humans.
type Migration struct {
	RunID     string        `json:"run_id"`
	Mode      string        `json:"mode"`
	DryRun    bool          `json:"dry_run,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Tables    []Table       `json:"tables"`
	Overall   string        `json:"overall"`
}

// Finalize computes the overall outcome: SUCCESS only if every table
// succeeded and every validation is within tolerance. Hard table failures
// dominate partial ones.
func (m *Migration) Finalize() {
	m.Overall = OverallSuccess
	for _, t := range m.Tables {
		if t.Succeeded() {
			continue
		}
		if t.Error != "" || (t.Transfer != nil && t.Transfer.Outcome == transfer.OutcomeFailed) {
			m.Overall = OverallFailed
			return
		}
		m.Overall = OverallPartial
	}
}

// Success reports whether the whole run succeeded.
func (m *Migration) Success() bool {
	return m.Overall == OverallSuccess
}

// HardFailed reports whether any table failed outright, as opposed to
// partial transfers or validation mismatches.
func (m *Migration) HardFailed() bool {
	return m.Overall == OverallFailed
}

// ValidationOnlyFailure reports whether every table transferred fully but at
// least one validation is outside tolerance.
func (m *Migration) ValidationOnlyFailure() bool {
	if m.Overall != OverallPartial {
		return false
	}
	for _, t := range m.Tables {
		if t.Transfer != nil && t.Transfer.Outcome != transfer.OutcomeSuccess {
			return false
		}
	}
	return true
}

// WriteJSON serializes the report.
func (m *Migration) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// Render prints the human-readable report through the logger.
func (m *Migration) Render() {
	logging.Print("\nMigration Report (run %s, mode %s)\n", m.RunID, m.Mode)
	logging.Print("-------------------------------------------\n")
	for _, t := range m.Tables {
		switch {
		case t.Error != "":
			logging.Print("%-30s %-7s %s\n", t.Table, t.State, t.Error)
		case m.DryRun:
			logging.Print("%-30s planned (%d columns)\n", t.Table, len(t.Plans))
			for _, p := range t.Plans {
				line := "  " + p.Column.Name + " " + p.Column.DeclaredType +
					" -> " + p.TargetType + " [" + p.Strategy.String() + "]"
				if p.Warning != "" {
					line += "  ! " + p.Warning
				}
				logging.Print("%s\n", line)
			}
		case t.Transfer == nil:
			logging.Print("%-30s %s\n", t.Table, t.State)
		default:
			logging.Print("%-30s %-7s read=%d written=%d elapsed=%s\n",
				t.Table, t.Transfer.Outcome, t.Transfer.RowsRead,
				t.Transfer.RowsWritten, t.Transfer.Elapsed.Round(time.Millisecond))
			for _, re := range t.Transfer.RowErrors {
				logging.Print("  row %s: %s\n", re.Row, re.Reason)
			}
			if t.Validation != nil {
				for _, mm := range t.Validation.Mismatches() {
					logging.Print("  MISMATCH %s\n", mm)
				}
			}
		}
	}
	logging.Print("-------------------------------------------\n")
	logging.Print("Overall: %s (%s)\n", m.Overall, m.Elapsed.Round(time.Millisecond))
}
