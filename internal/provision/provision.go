package provision

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hashibuto/MiGreat/internal/common"
	"github.com/hashibuto/MiGreat/internal/config"
	"github.com/hashibuto/MiGreat/internal/retry"
	"github.com/hashibuto/MiGreat/internal/store"
)

// Error reports a failure provisioning the schema, grants, or version table.
// Fatal: migrations never run after a provisioning failure.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bootstrap %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// contentionRetry bounds the retries applied to first-time operations that
// can race with sibling services provisioning the same group concurrently.
var contentionRetry = retry.Config{MaxRetries: 4, Interval: 750 * time.Millisecond}

// Provisioner performs one-time environment provisioning under the
// privileged identity: service role, schema, grants, search path, version
// table, and optional shared group membership. Every step is an explicit
// existence-check-then-create, so re-running on a provisioned database is a
// no-op.
type Provisioner struct {
	Cfg *config.Config
}

func New(cfg *config.Config) *Provisioner {
	return &Provisioner{Cfg: cfg}
}

// Provision brings the database to the provisioned state. db must be a
// privileged session.
func (p *Provisioner) Provision(ctx context.Context, db *sql.DB) error {
	logger := common.GetLogger().WithComponent("provision").WithSchema(p.Cfg.ServiceSchema)

	if err := p.ensureRole(ctx, db, logger); err != nil {
		return &Error{Stage: "service role", Err: err}
	}
	if err := p.ensureSchema(ctx, db, logger); err != nil {
		return &Error{Stage: "schema", Err: err}
	}
	if err := p.ensureVersionTable(ctx, db, logger); err != nil {
		return &Error{Stage: "version table", Err: err}
	}
	if p.Cfg.Group != "" {
		if err := p.ensureGroup(ctx, db, logger); err != nil {
			return &Error{Stage: "group", Err: err}
		}
	}
	return nil
}

func (p *Provisioner) ensureRole(ctx context.Context, db *sql.DB, logger *common.Logger) error {
	exists, err := rowExists(ctx, db, "SELECT 1 FROM pg_roles WHERE rolname = $1", p.Cfg.ServiceDBUsername)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	logger.Info("creating service user", "user", p.Cfg.ServiceDBUsername)
	// CREATE USER does not accept bind parameters, so the password is quoted
	// as a literal.
	q := fmt.Sprintf("CREATE USER %s WITH ENCRYPTED PASSWORD %s",
		store.QuoteIdent(p.Cfg.ServiceDBUsername), quoteLiteral(p.Cfg.ServiceDBPassword))
	_, err = db.ExecContext(ctx, q)
	return err
}

func (p *Provisioner) ensureSchema(ctx context.Context, db *sql.DB, logger *common.Logger) error {
	exists, err := rowExists(ctx, db,
		"SELECT 1 FROM information_schema.schemata WHERE schema_name = $1", p.Cfg.ServiceSchema)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	logger.Info("creating schema", "schema", p.Cfg.ServiceSchema)
	schema := store.QuoteIdent(p.Cfg.ServiceSchema)
	user := store.QuoteIdent(p.Cfg.ServiceDBUsername)
	stmts := []string{
		fmt.Sprintf("CREATE SCHEMA %s", schema),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON SCHEMA %s TO %s", schema, user),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON ALL TABLES IN SCHEMA %s TO %s", schema, user),
		// Bind the service identity's default object resolution to its own
		// schema so unqualified names only see that namespace.
		fmt.Sprintf("ALTER ROLE %s SET search_path TO %s, PUBLIC", user, schema),
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provisioner) ensureVersionTable(ctx context.Context, db *sql.DB, logger *common.Logger) error {
	exists, err := rowExists(ctx, db, `
		SELECT 1 FROM pg_catalog.pg_class cat
		JOIN pg_catalog.pg_namespace ns ON ns.oid = cat.relnamespace
		WHERE ns.nspname = $1 AND cat.relname = $2 AND cat.relkind = 'r'`,
		p.Cfg.ServiceSchema, p.Cfg.MigrationTable)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	logger.Info("creating version table", "table", p.Cfg.MigrationTable)
	dialect := store.PostgresDialect{}
	qualified := dialect.QualifiedTable(p.Cfg.ServiceSchema, p.Cfg.MigrationTable)
	if _, err := db.ExecContext(ctx, dialect.EnsureStatement(qualified)); err != nil {
		return err
	}
	grant := fmt.Sprintf("GRANT ALL PRIVILEGES ON TABLE %s TO %s",
		qualified, store.QuoteIdent(p.Cfg.ServiceDBUsername))
	_, err = db.ExecContext(ctx, grant)
	return err
}

// ensureGroup creates the shared group if needed and adds the service user to
// it. Multiple services can provision the same group concurrently for the
// first time, so creation failures and membership grants tolerate contention.
func (p *Provisioner) ensureGroup(ctx context.Context, db *sql.DB, logger *common.Logger) error {
	exists, err := rowExists(ctx, db, "SELECT 1 FROM pg_roles WHERE rolname = $1", p.Cfg.Group)
	if err != nil {
		return err
	}
	if !exists {
		q := fmt.Sprintf("CREATE GROUP %s", store.QuoteIdent(p.Cfg.Group))
		if _, err := db.ExecContext(ctx, q); err != nil {
			// Lost the race to a sibling service creating the same group.
			logger.Info("group creation contended, continuing", "group", p.Cfg.Group, "error", err)
		}
	}

	member, err := p.isGroupMember(ctx, db)
	if err != nil {
		return err
	}
	if member {
		return nil
	}

	logger.Info("adding service user to group", "group", p.Cfg.Group)
	group := store.QuoteIdent(p.Cfg.Group)
	schema := store.QuoteIdent(p.Cfg.ServiceSchema)
	user := store.QuoteIdent(p.Cfg.ServiceDBUsername)
	return retry.Do(ctx, contentionRetry, func() error {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("ALTER GROUP %s ADD USER %s", group, user)); err != nil {
			return err
		}
		_, err := db.ExecContext(ctx, fmt.Sprintf("GRANT USAGE ON SCHEMA %s TO GROUP %s", schema, group))
		return err
	})
}

func (p *Provisioner) isGroupMember(ctx context.Context, db *sql.DB) (bool, error) {
	return rowExists(ctx, db, `
		SELECT 1
		FROM pg_catalog.pg_roles cr
		JOIN pg_catalog.pg_auth_members m ON (m.member = cr.oid)
		JOIN pg_roles r ON (m.roleid = r.oid)
		WHERE cr.rolname = $1 AND r.rolname = $2`,
		p.Cfg.ServiceDBUsername, p.Cfg.Group)
}

// Decommission removes everything Provision created: group membership, the
// schema with all contents, and the service user. Used when the config marks
// the service dead. Idempotent.
func (p *Provisioner) Decommission(ctx context.Context, db *sql.DB) error {
	logger := common.GetLogger().WithComponent("provision").WithSchema(p.Cfg.ServiceSchema)
	logger.Info("decommissioning service", "user", p.Cfg.ServiceDBUsername)

	if p.Cfg.Group != "" {
		member, err := p.isGroupMember(ctx, db)
		if err != nil {
			return &Error{Stage: "decommission group", Err: err}
		}
		if member {
			q := fmt.Sprintf("ALTER GROUP %s DROP USER %s",
				store.QuoteIdent(p.Cfg.Group), store.QuoteIdent(p.Cfg.ServiceDBUsername))
			if err := retry.Do(ctx, contentionRetry, func() error {
				_, err := db.ExecContext(ctx, q)
				return err
			}); err != nil {
				return &Error{Stage: "decommission group", Err: err}
			}
		}
	}

	stmts := []string{
		fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", store.QuoteIdent(p.Cfg.ServiceSchema)),
		fmt.Sprintf("DROP USER IF EXISTS %s", store.QuoteIdent(p.Cfg.ServiceDBUsername)),
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return &Error{Stage: "decommission", Err: err}
		}
	}
	return nil
}

func rowExists(ctx context.Context, db *sql.DB, query string, args ...any) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// quoteLiteral single-quotes a SQL string literal, escaping embedded quotes.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
