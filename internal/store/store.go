// Package store defines the tabular store the sync pass reads from and writes
// to, plus an in-memory implementation used for dry runs and tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/ocpp-log-etl/internal/domain"
)

// Table names.
const (
	TableLogs     = "ocpp_logs"
	TableBackup   = "ocpp_logs_backup"
	TableChargers = "chargers"
)

// ConflictKey is the column upserts are keyed on.
const ConflictKey = "unique_id"

var (
	ErrUnknownTable        = errors.New("unknown table")
	ErrUnsupportedConflict = errors.New("unsupported conflict key")
)

// Filter narrows Select and Delete. The zero value matches every row.
type Filter struct {
	// Since keeps rows whose record timestamp is at or after it.
	Since time.Time
	// Limit caps the number of rows returned by Select. Zero means no limit.
	Limit int
}

// Matches reports whether rec passes the filter's row predicate.
func (f Filter) Matches(rec domain.NormalizedRecord) bool {
	if f.Since.IsZero() {
		return true
	}
	t, ok := rec.EventTime()
	return ok && !t.Before(f.Since)
}

// Store is the record store. Implementations must make Upsert idempotent on
// the conflict key.
type Store interface {
	Select(ctx context.Context, table string, filter Filter) ([]domain.NormalizedRecord, error)
	Insert(ctx context.Context, table string, rows []domain.NormalizedRecord) error
	Delete(ctx context.Context, table string, filter Filter) error
	Upsert(ctx context.Context, table string, rows []domain.NormalizedRecord, conflictKey string) error
}

// PortRegistry lists the charging ports a sync pass fetches logs for.
type PortRegistry interface {
	ListPorts(ctx context.Context) ([]domain.ChargerPort, error)
}

// ValidateRecordTable rejects tables that do not hold log records.
func ValidateRecordTable(table string) error {
	switch table {
	case TableLogs, TableBackup:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
}
