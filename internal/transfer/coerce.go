package transfer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/reyya31/dbmigrate/internal/driver"
	"github.com/reyya31/dbmigrate/internal/typemap"
)

// CoercionError is a single-row, single-column conversion failure. It is
// recorded against the row and never escalates above table scope.
type CoercionError struct {
	Column string
	Err    error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("column %s: %v", e.Column, e.Err)
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}

// coerceValue applies the plan's strategy to one source value.
// NULL maps to NULL regardless of strategy.
func coerceValue(v any, plan typemap.Plan) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch plan.Strategy {
	case typemap.StrategyDirect:
		if plan.TargetTag == driver.TagText {
			return coerceText(v, plan)
		}
		return v, nil

	case typemap.StrategyCastNumeric:
		if plan.Column.Tag == driver.TagBoolean {
			return boolToInt(v, plan)
		}
		d, err := toDecimal(v)
		if err != nil {
			return nil, &CoercionError{Column: plan.Column.Name, Err: err}
		}
		return d.String(), nil

	case typemap.StrategyCastText:
		return asString(v), nil

	case typemap.StrategyTruncatePrecision:
		d, err := toDecimal(v)
		if err != nil {
			return nil, &CoercionError{Column: plan.Column.Name, Err: err}
		}
		// Truncate toward zero: the observed delta stays below one unit in
		// the last kept digit.
		return d.Truncate(int32(plan.TargetScale)).String(), nil

	default: // StrategyReject
		return nil, &CoercionError{
			Column: plan.Column.Name,
			Err:    fmt.Errorf("rejected value of type %s", plan.Column.Tag),
		}
	}
}

func coerceText(v any, plan typemap.Plan) (any, error) {
	s := asString(v)
	if limit := plan.Column.MaxLength; limit > 0 && utf8.RuneCountInString(s) > limit {
		return nil, &CoercionError{
			Column: plan.Column.Name,
			Err:    fmt.Errorf("value of %d characters exceeds limit %d", utf8.RuneCountInString(s), limit),
		}
	}
	return s, nil
}

func boolToInt(v any, plan typemap.Plan) (any, error) {
	switch b := v.(type) {
	case bool:
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case int64:
		if b == 0 || b == 1 {
			return b, nil
		}
	case []byte:
		return parseBool(string(b), plan)
	case string:
		return parseBool(b, plan)
	}
	return nil, &CoercionError{
		Column: plan.Column.Name,
		Err:    fmt.Errorf("cannot read %T as boolean", v),
	}
}

func parseBool(s string, plan typemap.Plan) (any, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes":
		return int64(1), nil
	case "0", "f", "false", "n", "no":
		return int64(0), nil
	}
	return nil, &CoercionError{
		Column: plan.Column.Name,
		Err:    fmt.Errorf("cannot read %q as boolean", s),
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case int64:
		return decimal.NewFromInt(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case []byte:
		return decimal.NewFromString(strings.TrimSpace(string(n)))
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	case bool:
		if n {
			return decimal.NewFromInt(1), nil
		}
		return decimal.NewFromInt(0), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("cannot read %T as numeric", v)
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
