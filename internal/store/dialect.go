package store

import (
	"fmt"
	"strings"
)

// Dialect abstracts the SQL differences between the production target
// (PostgreSQL) and the lightweight backend used by tests (SQLite).
type Dialect interface {
	// Placeholder returns the bind-parameter syntax for position index.
	Placeholder(index int) string
	// QualifiedTable returns the quoted, schema-qualified version table name.
	// Qualification matters because recordApplied may run on the privileged
	// connection, whose search path is not bound to the service schema.
	QualifiedTable(schema, table string) string
	// EnsureStatement returns the idempotent version-table creation statement.
	EnsureStatement(qualified string) string
	// Name identifies the dialect for logging.
	Name() string
}

// PostgresDialect is the dialect migrations run against in production.
type PostgresDialect struct{}

func (PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (PostgresDialect) QualifiedTable(schema, table string) string {
	return QuoteIdent(schema) + "." + QuoteIdent(table)
}

func (PostgresDialect) EnsureStatement(qualified string) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (version INTEGER PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)",
		qualified)
}

func (PostgresDialect) Name() string { return "postgresql" }

// SQLiteDialect backs store and orchestrator tests without a running server.
// SQLite has no schemas, so the qualified name collapses to the table name.
type SQLiteDialect struct{}

func (SQLiteDialect) Placeholder(int) string { return "?" }

func (SQLiteDialect) QualifiedTable(_, table string) string {
	return QuoteIdent(table)
}

func (SQLiteDialect) EnsureStatement(qualified string) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (version INTEGER PRIMARY KEY, applied_at TIMESTAMP NOT NULL)",
		qualified)
}

func (SQLiteDialect) Name() string { return "sqlite" }

// QuoteIdent double-quotes an identifier, escaping embedded quotes. Schema and
// table names come from config, not from migration unit input, but quoting
// keeps unusual names (mixed case, hyphens) working.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
