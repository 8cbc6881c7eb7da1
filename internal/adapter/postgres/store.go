// Package postgres implements the record store and charger registry on
// PostgreSQL through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/couchcryptid/ocpp-log-etl/internal/domain"
	"github.com/couchcryptid/ocpp-log-etl/internal/store"
)

const (
	defaultMaxOpenConns = 10
	defaultMaxIdleConns = 5
	defaultConnLifetime = time.Hour
	defaultConnIdleTime = 30 * time.Minute
	defaultPingTimeout  = 5 * time.Second
)

// Open creates a pgx-backed *sql.DB pool and validates the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres: empty DSN")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnLifetime)
	db.SetConnMaxIdleTime(defaultConnIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Store implements store.Store and store.PortRegistry.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Ping checks the database connection; used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Select(ctx context.Context, table string, filter store.Filter) ([]domain.NormalizedRecord, error) {
	if err := store.ValidateRecordTable(table); err != nil {
		return nil, err
	}

	var (
		q    strings.Builder
		args []any
	)
	fmt.Fprintf(&q, "SELECT %s FROM %s", strings.Join(recordColumns, ", "), quote(table))
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		fmt.Fprintf(&q, " WHERE record_timestamp >= $%d", len(args))
	}
	q.WriteString(" ORDER BY record_timestamp NULLS FIRST, unique_id")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&q, " LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out []domain.NormalizedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return out, nil
}

// Insert writes rows in a single transaction. A duplicate unique_id fails the
// whole batch.
func (s *Store) Insert(ctx context.Context, table string, rows []domain.NormalizedRecord) error {
	if err := store.ValidateRecordTable(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return s.execBatch(ctx, table, insertStatement(table, ""), rows)
}

func (s *Store) Delete(ctx context.Context, table string, filter store.Filter) error {
	if err := store.ValidateRecordTable(table); err != nil {
		return err
	}

	q := "DELETE FROM " + quote(table)
	var args []any
	if !filter.Since.IsZero() {
		q += " WHERE record_timestamp >= $1"
		args = append(args, filter.Since)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.logger.Debug("rows deleted", "table", table, "count", n)
	}
	return nil
}

// Upsert inserts rows, replacing every column of rows whose conflict key
// already exists.
func (s *Store) Upsert(ctx context.Context, table string, rows []domain.NormalizedRecord, conflictKey string) error {
	if err := store.ValidateRecordTable(table); err != nil {
		return err
	}
	if conflictKey != store.ConflictKey {
		return fmt.Errorf("%w: %q", store.ErrUnsupportedConflict, conflictKey)
	}
	if len(rows) == 0 {
		return nil
	}
	return s.execBatch(ctx, table, insertStatement(table, conflictKey), rows)
}

// ListPorts returns the tracked charging ports from the chargers table.
func (s *Store) ListPorts(ctx context.Context) ([]domain.ChargerPort, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT port_uuid, post_id, status FROM "+quote(store.TableChargers)+" ORDER BY port_uuid")
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	defer rows.Close()

	var ports []domain.ChargerPort
	for rows.Next() {
		var (
			p              domain.ChargerPort
			postID, status sql.NullString
		)
		if err := rows.Scan(&p.PortID, &postID, &status); err != nil {
			return nil, fmt.Errorf("scan charger: %w", err)
		}
		p.PostID = postID.String
		p.Status = status.String
		ports = append(ports, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	return ports, nil
}

func (s *Store) execBatch(ctx context.Context, table, statement string, rows []domain.NormalizedRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s batch: %w", table, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, statement)
	if err != nil {
		return fmt.Errorf("prepare %s batch: %w", table, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err = stmt.ExecContext(ctx, recordArgs(r)...); err != nil {
			return fmt.Errorf("write %s row %s: %w", table, r.Identity(), err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s batch: %w", table, err)
	}
	return nil
}

// insertStatement builds the INSERT for table. A non-empty conflictKey turns
// it into an upsert that overwrites every other column.
func insertStatement(table, conflictKey string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(recordColumns, ", "), placeholders(1, len(recordColumns)))
	if conflictKey == "" {
		return b.String()
	}

	fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET ", conflictKey)
	first := true
	for _, c := range recordColumns {
		if c == conflictKey {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s = EXCLUDED.%s", c, c)
	}
	return b.String()
}

func quote(table string) string {
	return pgx.Identifier{table}.Sanitize()
}
