package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hashibuto/MiGreat/internal/common"
)

// DBTX is the statement-execution subset of database/sql satisfied by both
// *sql.DB and *sql.Tx. Migration units and the store both operate through it,
// which is what lets recordApplied share the unit's transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store tracks which migration versions have been applied, one append-only
// row per version, in a dedicated table inside the service schema.
type Store struct {
	db      *sql.DB
	dialect Dialect
	schema  string
	table   string
}

// New returns a Store bound to an open connection. The connection's lifetime
// is owned by the caller.
func New(db *sql.DB, dialect Dialect, schema, table string) *Store {
	return &Store{db: db, dialect: dialect, schema: schema, table: table}
}

func (s *Store) qualified() string {
	return s.dialect.QualifiedTable(s.schema, s.table)
}

// Ensure creates the version table if it does not exist. Idempotent; safe to
// run on every invocation.
func (s *Store) Ensure(ctx context.Context) error {
	logger := common.GetLogger().WithComponent("store").WithSchema(s.schema)
	q := s.dialect.EnsureStatement(s.qualified())
	logger.Debug("ensuring version table", "table", s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure version table %s: %w", s.qualified(), err)
	}
	return nil
}

// Applied returns the set of sequence numbers already recorded.
func (s *Store) Applied(ctx context.Context) (map[int]struct{}, error) {
	q := fmt.Sprintf("SELECT version FROM %s", s.qualified())
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]struct{})
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied version: %w", err)
		}
		applied[v] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}
	return applied, nil
}

// RecordApplied inserts the row marking version as applied. It executes on
// the supplied handle so callers can place it inside a unit's transaction, or
// issue it as an independent statement for non-transactional units.
func (s *Store) RecordApplied(ctx context.Context, dbtx DBTX, version int) error {
	q := fmt.Sprintf("INSERT INTO %s (version, applied_at) VALUES (%s, %s)",
		s.qualified(), s.dialect.Placeholder(1), s.dialect.Placeholder(2))
	if _, err := dbtx.ExecContext(ctx, q, version, time.Now().UTC()); err != nil {
		return fmt.Errorf("record applied version %d: %w", version, err)
	}
	return nil
}

// Remove deletes the row for version. The engine never calls this during an
// upgrade; it exists for operator-driven downgrade bookkeeping.
func (s *Store) Remove(ctx context.Context, dbtx DBTX, version int) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE version = %s",
		s.qualified(), s.dialect.Placeholder(1))
	if _, err := dbtx.ExecContext(ctx, q, version); err != nil {
		return fmt.Errorf("remove applied version %d: %w", version, err)
	}
	return nil
}
