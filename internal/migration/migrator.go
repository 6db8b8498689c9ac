package migration

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hashibuto/MiGreat/internal/common"
	"github.com/hashibuto/MiGreat/internal/config"
	"github.com/hashibuto/MiGreat/internal/conn"
	"github.com/hashibuto/MiGreat/internal/store"
)

// MigrationError reports the first unit whose apply step failed. Prior units
// stay recorded as applied; later units were never attempted.
type MigrationError struct {
	Version int
	Name    string
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %d (%s) failed: %v", e.Version, e.Name, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// Applied identifies one unit applied during a run.
type Applied struct {
	Version int
	Name    string
}

// Acquirer hands out database sessions per identity.
type Acquirer interface {
	Acquire(ctx context.Context, identity conn.Identity) (*sql.DB, error)
}

// Provisioner performs the one-time environment bootstrap (and teardown)
// under the privileged identity.
type Provisioner interface {
	Provision(ctx context.Context, db *sql.DB) error
	Decommission(ctx context.Context, db *sql.DB) error
}

// Migrator is the control loop: discover pending units, execute each in
// order under the configured identity, record success, halt on first failure.
type Migrator struct {
	Config      *config.Config
	Acquirer    Acquirer
	Provisioner Provisioner
	// Dialect defaults to PostgreSQL; tests substitute SQLite.
	Dialect store.Dialect

	// Units is an explicit compiled-in registry. When nil, manifests are
	// discovered from Dir on every run.
	Units []Unit
	Dir   string
}

func (m *Migrator) dialect() store.Dialect {
	if m.Dialect != nil {
		return m.Dialect
	}
	return store.PostgresDialect{}
}

func (m *Migrator) discover() ([]Unit, error) {
	if m.Units != nil {
		return Validate(m.Units)
	}
	return DiscoverDir(m.Dir)
}

// Run executes one upgrade pass. It returns the units applied during this
// invocation; on failure the returned error identifies the stage or unit and
// everything applied before the failure stays applied.
func (m *Migrator) Run(ctx context.Context) ([]Applied, error) {
	cfg := m.Config
	logger := common.GetLogger().WithComponent("migrator").WithSchema(cfg.ServiceSchema)

	if cfg.Dead {
		logger.Info("service is marked dead, removing migration controls")
		priv, err := m.Acquirer.Acquire(ctx, conn.Priv)
		if err != nil {
			return nil, err
		}
		defer func() { _ = priv.Close() }()
		return nil, m.Provisioner.Decommission(ctx, priv)
	}

	// Discovery runs before any database contact so numbering problems never
	// touch the target.
	units, err := m.discover()
	if err != nil {
		return nil, err
	}

	priv, err := m.Acquirer.Acquire(ctx, conn.Priv)
	if err != nil {
		return nil, err
	}
	defer func() { _ = priv.Close() }()

	if err := m.Provisioner.Provision(ctx, priv); err != nil {
		return nil, err
	}

	svc, err := m.Acquirer.Acquire(ctx, conn.Service)
	if err != nil {
		return nil, err
	}
	defer func() { _ = svc.Close() }()

	st := store.New(svc, m.dialect(), cfg.ServiceSchema, cfg.MigrationTable)
	if err := st.Ensure(ctx); err != nil {
		return nil, err
	}
	appliedSet, err := st.Applied(ctx)
	if err != nil {
		return nil, err
	}

	var pending []Unit
	for _, u := range units {
		if _, ok := appliedSet[u.Version]; !ok {
			pending = append(pending, u)
		}
	}
	if len(pending) == 0 {
		logger.Info("migrations are already up to date")
		return nil, nil
	}

	applied := make([]Applied, 0, len(pending))
	for _, u := range pending {
		db := svc
		if u.Options.RunAsPriv {
			db = priv
		}
		ulog := logger.WithVersion(u.Version).WithIdentity(identityFor(u).String())
		ulog.Info("applying migration", "name", u.Name, "transact", u.Options.Transact)

		if err := m.applyOne(ctx, st, db, u); err != nil {
			ulog.Error("migration failed", "error", err)
			return applied, &MigrationError{Version: u.Version, Name: u.Name, Err: err}
		}
		applied = append(applied, Applied{Version: u.Version, Name: u.Name})
	}

	logger.Info("migrations complete", "applied", len(applied))
	return applied, nil
}

func identityFor(u Unit) conn.Identity {
	if u.Options.RunAsPriv {
		return conn.Priv
	}
	return conn.Service
}

// applyOne executes a single unit. Transactional units commit their effects
// and version record atomically; non-transactional units record immediately
// after the apply step returns.
func (m *Migrator) applyOne(ctx context.Context, st *store.Store, db *sql.DB, u Unit) error {
	if !u.Options.Transact {
		if err := u.Apply(ctx, db); err != nil {
			return err
		}
		return st.RecordApplied(ctx, db, u.Version)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := u.Apply(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := st.RecordApplied(ctx, tx, u.Version); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
