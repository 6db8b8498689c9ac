package conn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hashibuto/MiGreat/internal/common"
	"github.com/hashibuto/MiGreat/internal/config"
	"github.com/hashibuto/MiGreat/internal/retry"
)

// Identity selects which credential set a session is opened under.
type Identity int

const (
	// Priv is the elevated identity used for provisioning and for units that
	// explicitly opt in via run_as_priv.
	Priv Identity = iota
	// Service is the schema-scoped identity migrations normally run as.
	Service
)

func (i Identity) String() string {
	if i == Priv {
		return "privileged"
	}
	return "service"
}

// Error is the terminal failure surfaced when connection retries are
// exhausted. It aborts the whole run.
type Error struct {
	Identity Identity
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("unable to establish %s connection after %d attempts: %v",
		e.Identity, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// openFunc opens and verifies a database handle for a DSN. Swappable in tests.
type openFunc func(ctx context.Context, dsn string) (*sql.DB, error)

func pgxOpen(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Manager acquires database sessions under either identity with bounded,
// fixed-interval retry. Connection acquisition is the only stage the engine
// retries automatically.
type Manager struct {
	cfg  *config.Config
	open openFunc
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{cfg: cfg, open: pgxOpen}
}

func (m *Manager) dsn(identity Identity) string {
	if identity == Priv {
		return m.cfg.DSN(m.cfg.PrivDBUsername, m.cfg.PrivDBPassword)
	}
	return m.cfg.DSN(m.cfg.ServiceDBUsername, m.cfg.ServiceDBPassword)
}

// Acquire opens a session under the requested identity. Failures are retried
// up to max_conn_retries additional times with conn_retry_interval between
// attempts; exhaustion returns a *Error. The caller owns the returned handle
// and must close it on every exit path.
func (m *Manager) Acquire(ctx context.Context, identity Identity) (*sql.DB, error) {
	logger := common.GetLogger().WithComponent("conn").WithIdentity(identity.String())
	logger.Debug("connecting",
		"host", m.cfg.Hostname,
		"port", m.cfg.Port,
		"database", m.cfg.Database)

	cfg := retry.Config{
		MaxRetries: m.cfg.MaxConnRetries,
		Interval:   time.Duration(m.cfg.ConnRetryInterval) * time.Second,
	}

	var db *sql.DB
	err := retry.Do(ctx, cfg, func() error {
		var err error
		db, err = m.open(ctx, m.dsn(identity))
		return err
	})
	if err != nil {
		logger.Error("connection failed", "error", err)
		return nil, &Error{Identity: identity, Attempts: cfg.MaxRetries + 1, Err: err}
	}
	logger.Debug("connection established")
	return db, nil
}
