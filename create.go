package migreat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashibuto/MiGreat/internal/migration"
)

// ConfigFileName is the workspace configuration file written by Init.
const ConfigFileName = "MiGreat.yaml"

const configTemplate = `# MiGreat service migration configuration.
# Values of the form ${ENV_VAR} are resolved from the environment at run time.
hostname: localhost
port: 5432
database: postgres
priv_db_username: postgres
priv_db_password: ${PRIV_DB_PASSWORD}
service_db_username: my_service
service_db_password: ${SERVICE_DB_PASSWORD}
service_schema: my_service

# Optional shared group other services can be granted USAGE through.
# group: shared_services

# migration_table: migrate_version
# max_conn_retries: 10
# conn_retry_interval: 5
# migrate_dir: versions

# logging:
#   level: info
#   format: text
`

const unitTemplate = `# Migration unit. Statements run in order; the whole unit applies exactly
# once, in one transaction together with its version record.
up:
  statements:
    - |
      SELECT 1

down:
  statements:
    - |
      SELECT 1

# Unspecified options keep their defaults.
# options:
#   transact: true
#   run_as_priv: false
`

// InitOptions configures Init.
type InitOptions struct {
	// Dir is the workspace root. Defaults to the current directory.
	Dir string
}

// Init scaffolds a new migration workspace: the config file and an empty
// migration directory. It refuses to overwrite an existing workspace and
// never contacts a database.
func Init(opts InitOptions) error {
	root := opts.Dir
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	versions := filepath.Join(root, "versions")
	if err := os.Mkdir(versions, 0o750); err != nil {
		return fmt.Errorf("create migration directory %s: %w", versions, err)
	}
	cfgPath := filepath.Join(root, ConfigFileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	}
	if err := os.WriteFile(cfgPath, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", cfgPath, err)
	}
	return nil
}

// CreateOptions configures CreateMigration.
type CreateOptions struct {
	// Name becomes the descriptive part of the filename, snake_cased.
	Name string
	// Dir is the migration directory the unit is written into.
	Dir string
}

// CreateMigration writes a templated migration manifest with the next unused
// sequence number and returns its path. Numbering reuses the same parsing as
// discovery, so scaffolded files always extend the existing series. No
// database contact.
func CreateMigration(opts CreateOptions) (string, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return "", fmt.Errorf("migration directory is required")
	}
	next, err := migration.NextVersion(opts.Dir)
	if err != nil {
		return "", fmt.Errorf("determine next version: %w", err)
	}
	filename := migration.FormatFilename(next, snakeCase(opts.Name))
	path := filepath.Join(opts.Dir, filename)
	if err := os.WriteFile(path, []byte(unitTemplate), 0o600); err != nil {
		return "", fmt.Errorf("write migration %s: %w", path, err)
	}
	return path, nil
}

func snakeCase(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
