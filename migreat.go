// Package migreat applies an ordered sequence of schema migrations to a
// PostgreSQL database on behalf of a single microservice, keeping each
// service isolated inside its own schema. Provisioning (role, schema,
// grants, search path) runs under a privileged identity; migrations run
// under the service's own schema-scoped identity unless a unit opts in to
// privileged execution.
package migreat

import (
	"context"

	"github.com/hashibuto/MiGreat/internal/config"
	"github.com/hashibuto/MiGreat/internal/conn"
	imig "github.com/hashibuto/MiGreat/internal/migration"
	"github.com/hashibuto/MiGreat/internal/provision"
	"github.com/hashibuto/MiGreat/internal/store"
)

// Re-export commonly used types for public API

// Config is the resolved configuration consumed by the engine.
type Config = config.Config

// LoadConfig reads and validates a MiGreat.yaml file, interpolating
// ${ENV_VAR} values from the process environment.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Unit is a single sequence-numbered schema change.
type Unit = imig.Unit

// Options controls transactionality and execution identity of a unit.
type Options = imig.Options

// DefaultOptions returns the documented option defaults.
func DefaultOptions() Options { return imig.DefaultOptions() }

// DBTX is the statement handle passed to a unit's Apply and Revert.
type DBTX = store.DBTX

// Applied identifies a unit applied during a run.
type Applied = imig.Applied

// Error taxonomy. All are fatal for the run; see each type for scope.

type ConnectionError = conn.Error

type DiscoveryError = imig.DiscoveryError

type BootstrapError = provision.Error

type MigrationError = imig.MigrationError

// Migrator is the migration control loop. Most callers construct one through
// NewMigrator rather than wiring the fields directly.
type Migrator = imig.Migrator

// NewMigrator wires a Migrator against the real database: pgx connections
// with retry, privileged provisioning, and manifest discovery from the
// configured migration directory.
func NewMigrator(cfg *Config) *Migrator {
	return &Migrator{
		Config:      cfg,
		Acquirer:    conn.NewManager(cfg),
		Provisioner: provision.New(cfg),
		Dir:         cfg.MigrateDir,
	}
}

// Upgrade runs bootstrap plus all pending migrations discovered from the
// configured migration directory.
func Upgrade(ctx context.Context, cfg *Config) ([]Applied, error) {
	return NewMigrator(cfg).Run(ctx)
}

// UpgradeUnits runs bootstrap plus all pending migrations from a compiled-in
// registry, for services that embed their migrations as Go code.
func UpgradeUnits(ctx context.Context, cfg *Config, units []Unit) ([]Applied, error) {
	m := NewMigrator(cfg)
	m.Units = units
	return m.Run(ctx)
}
