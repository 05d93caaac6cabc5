// Package typemap resolves source column types into target column plans.
//
// Resolution is a pure function of the column descriptor and the target
// dialect: no I/O, no state. The orchestrator relies on this to re-run
// planning for dry runs before any data is touched.
package typemap

import (
	"fmt"

	"github.com/reyya31/dbmigrate/internal/driver"
)

// Strategy is the rule applied to convert one column's values from source
// representation to target representation.
type Strategy int

const (
	// StrategyDirect passes values through unchanged.
	StrategyDirect Strategy = iota
	// StrategyCastNumeric rewrites values into the target's numeric shape
	// (booleans to 0/1, decimals to an unbounded numeric).
	StrategyCastNumeric
	// StrategyCastText stringifies values. Lossy; always flagged.
	StrategyCastText
	// StrategyTruncatePrecision narrows decimals to the target's scale.
	// Lossy; always flagged, never applied silently.
	StrategyTruncatePrecision
	// StrategyReject marks a column the target cannot represent. Rejected
	// values are never written.
	StrategyReject
)

// String returns the strategy name used in plans, reports and logs.
func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "DIRECT"
	case StrategyCastNumeric:
		return "CAST_NUMERIC"
	case StrategyCastText:
		return "CAST_TEXT"
	case StrategyTruncatePrecision:
		return "TRUNCATE_PRECISION"
	case StrategyReject:
		return "REJECT"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Plan pairs a source column with its resolved target type and the single
// coercion strategy that will be applied to its values.
type Plan struct {
	Column     driver.Column  `json:"column"`
	TargetTag  driver.TypeTag `json:"target_tag"`
	TargetType string         `json:"target_type"` // DDL type on the target engine
	// Target scale for StrategyTruncatePrecision; otherwise the source scale.
	TargetScale int      `json:"target_scale,omitempty"`
	Strategy    Strategy `json:"strategy"`
	Warning     string   `json:"warning,omitempty"` // set for every lossy mapping
}

// ResolveColumn maps one source column onto the target engine.
// Deterministic and side-effect free.
func ResolveColumn(col driver.Column, target driver.Dialect) Plan {
	plan := Plan{
		Column:      col,
		TargetTag:   col.Tag,
		TargetScale: col.Scale,
		Strategy:    StrategyDirect,
	}

	switch col.Tag {
	case driver.TagInteger, driver.TagText, driver.TagDate, driver.TagTimestamp:
		// Direct

	case driver.TagDecimal:
		resolveDecimal(&plan, col, target)

	case driver.TagBoolean:
		if !target.HasBoolean() {
			plan.Strategy = StrategyCastNumeric
		}

	default: // TagUnknown
		plan.TargetTag = driver.TagText
		plan.Strategy = StrategyCastText
		plan.Warning = fmt.Sprintf("column %s: unmapped source type %q written as text",
			col.Name, col.DeclaredType)
	}

	precision, scale := plan.Column.Precision, plan.TargetScale
	if plan.Strategy == StrategyCastNumeric && col.Tag == driver.TagDecimal {
		// Unbounded numeric on the target; drop the declared shape.
		precision, scale = 0, 0
	}
	plan.TargetType = target.TypeName(plan.TargetTag, precision, scale, col.MaxLength)
	if plan.TargetType == "" {
		plan.Strategy = StrategyReject
		plan.Warning = fmt.Sprintf("column %s: type %s has no representation on %s",
			col.Name, col.Tag, target.Engine())
	}
	return plan
}

func resolveDecimal(plan *Plan, col driver.Column, target driver.Dialect) {
	maxPrec, maxScale := target.MaxDecimalPrecision(), target.MaxDecimalScale()

	switch {
	case maxPrec == 0:
		// Target does not enforce declared precision; values are cast to
		// its generic numeric type.
		plan.Strategy = StrategyCastNumeric
		plan.Warning = fmt.Sprintf("column %s: %s does not enforce decimal(%d,%d) precision",
			col.Name, target.Engine(), col.Precision, col.Scale)
	case col.Precision == 0:
		// Undeclared shape; map to an unbounded numeric.
		plan.Strategy = StrategyCastNumeric
	case col.Scale > maxScale || col.Precision > maxPrec:
		plan.Strategy = StrategyTruncatePrecision
		plan.TargetScale = col.Scale
		if plan.TargetScale > maxScale {
			plan.TargetScale = maxScale
		}
		plan.Warning = fmt.Sprintf("column %s: decimal(%d,%d) exceeds %s limits, values truncated to scale %d",
			col.Name, col.Precision, col.Scale, target.Engine(), plan.TargetScale)
	}

	if plan.Strategy == StrategyTruncatePrecision && plan.Column.Precision > maxPrec {
		plan.Column.Precision = maxPrec
	}
}

// ResolveTable resolves every column of a table in catalog order.
func ResolveTable(t driver.Table, target driver.Dialect) []Plan {
	plans := make([]Plan, len(t.Columns))
	for i, col := range t.Columns {
		plans[i] = ResolveColumn(col, target)
	}
	return plans
}
