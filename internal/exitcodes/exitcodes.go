// Package exitcodes defines the CLI exit codes so schedulers can distinguish
// partial success from hard failure.
package exitcodes

import (
	"context"
	"errors"

	"github.com/reyya31/dbmigrate/internal/driver"
	"github.com/reyya31/dbmigrate/internal/report"
	"github.com/reyya31/dbmigrate/internal/schema"
	"github.com/reyya31/dbmigrate/internal/transfer"
)

const (
	// Success - migration completed, every table SUCCESS and validated clean
	Success = 0

	// ConfigError - configuration parsing or validation errors (don't retry)
	ConfigError = 1

	// ConnectionError - source/target unreachable or timed out (recoverable)
	ConnectionError = 2

	// TransferError - introspection, DDL or data transfer failed
	TransferError = 3

	// ValidationError - transfer completed but aggregates are outside tolerance
	ValidationError = 4

	// Cancelled - user cancelled via SIGINT/SIGTERM (recoverable)
	Cancelled = 5
)

// FromError classifies a run-aborting error.
func FromError(err error) int {
	if err == nil {
		return Success
	}

	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	// Deadline expiry means the database stopped answering in time, which is
	// the recoverable connection class, not a user interrupt.
	if errors.Is(err, context.DeadlineExceeded) {
		return ConnectionError
	}

	var connErr *driver.ConnectionError
	if errors.As(err, &connErr) {
		return ConnectionError
	}

	var introErr *schema.IntrospectionError
	if errors.As(err, &introErr) {
		return TransferError
	}

	var conflictErr *transfer.ConflictError
	if errors.As(err, &conflictErr) {
		return TransferError
	}

	return TransferError
}

// FromReport classifies a completed run by its report: clean success,
// validation-only mismatches, or table-level failures.
func FromReport(m *report.Migration) int {
	switch {
	case m.Success():
		return Success
	case m.ValidationOnlyFailure():
		return ValidationError
	default:
		return TransferError
	}
}

// FromOutcome classifies a finished run, giving the context's verdict
// precedence: a run interrupted mid-transfer exits Cancelled (or
// ConnectionError on deadline expiry) even though its report carries the
// failed tables.
func FromOutcome(ctxErr error, m *report.Migration) int {
	if ctxErr != nil {
		return FromError(ctxErr)
	}
	return FromReport(m)
}

// IsRecoverable returns true if the error is recoverable (safe to retry).
func IsRecoverable(code int) bool {
	return code == ConnectionError || code == Cancelled
}

// Description returns a human-readable description of the exit code.
func Description(code int) string {
	switch code {
	case Success:
		return "success"
	case ConfigError:
		return "configuration error"
	case ConnectionError:
		return "connection error (recoverable)"
	case TransferError:
		return "transfer error"
	case ValidationError:
		return "validation error"
	case Cancelled:
		return "cancelled (recoverable)"
	default:
		return "unknown error"
	}
}
