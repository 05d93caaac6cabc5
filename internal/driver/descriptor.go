package driver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/reyya31/dbmigrate/internal/logging"
)

// Descriptor identifies one database. Credentials are owned by the caller
// and are never persisted or logged by this package.
type Descriptor struct {
	Engine   string
	Host     string
	Port     int
	Path     string // file path for embedded engines (sqlite)
	Database string
	User     string
	Password string
	SSLMode  string // postgres only: disable, require, verify-ca, verify-full
}

// Redacted returns a loggable identification of the database with the
// password stripped.
func (d Descriptor) Redacted() string {
	if d.Path != "" {
		return fmt.Sprintf("%s:%s", d.Engine, d.Path)
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s", d.Engine, d.User, d.Host, d.Port, d.Database)
}

// ConnectionError wraps failures to reach or authenticate against a database,
// including timeouts. It is the only error class retried, and only at the
// connection layer.
type ConnectionError struct {
	Descriptor string // redacted
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database unreachable (%s): %v", e.Descriptor, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// WrapTimeout reclassifies deadline expiry on a database call as a
// ConnectionError, so it counts as recoverable. Explicit cancellation and
// every other error pass through unchanged.
func WrapTimeout(descriptor string, err error) error {
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return err
	}
	return &ConnectionError{Descriptor: descriptor, Err: err}
}

// connectBackoff is the base delay between connection attempts; attempt n
// waits n times this long.
const connectBackoff = 500 * time.Millisecond

// Open resolves the descriptor's dialect, opens a connection and verifies it
// with a ping. Failed pings are retried up to retries additional times with
// linear backoff. All failures surface as *ConnectionError.
func Open(ctx context.Context, d Descriptor, retries int) (*sql.DB, Dialect, error) {
	dialect, err := Get(d.Engine)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(dialect.DriverName(), dialect.BuildDSN(d))
	if err != nil {
		return nil, nil, &ConnectionError{Descriptor: d.Redacted(), Err: err}
	}

	for attempt := 0; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			return db, dialect, nil
		}
		if attempt >= retries || ctx.Err() != nil {
			break
		}
		logging.Warn("connection to %s failed (attempt %d/%d): %v",
			d.Redacted(), attempt+1, retries+1, err)
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(time.Duration(attempt+1) * connectBackoff):
			continue
		}
		break
	}

	db.Close()
	return nil, nil, &ConnectionError{Descriptor: d.Redacted(), Err: err}
}
