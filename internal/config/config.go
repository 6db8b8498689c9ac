package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashibuto/MiGreat/internal/env"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields the config file leaves unset.
const (
	DefaultPort              = 5432
	DefaultMaxConnRetries    = 10
	DefaultConnRetryInterval = 5
	DefaultMigrationTable    = "migrate_version"
	DefaultMigrateDir        = "versions"
)

// LoggingConfig controls log output of the CLI.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // error, warn, info, debug
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// Config is the resolved configuration consumed by the migration engine.
// Secrets are already interpolated by the time a Config exists; the engine
// treats the whole struct as read-only for the duration of a run.
type Config struct {
	Hostname          string `mapstructure:"hostname" yaml:"hostname"`
	Port              int    `mapstructure:"port" yaml:"port"`
	Database          string `mapstructure:"database" yaml:"database"`
	PrivDBUsername    string `mapstructure:"priv_db_username" yaml:"priv_db_username"`
	PrivDBPassword    string `mapstructure:"priv_db_password" yaml:"priv_db_password"`
	ServiceDBUsername string `mapstructure:"service_db_username" yaml:"service_db_username"`
	ServiceDBPassword string `mapstructure:"service_db_password" yaml:"service_db_password"`
	ServiceSchema     string `mapstructure:"service_schema" yaml:"service_schema"`

	// Group optionally names a shared database group the service user is added
	// to during provisioning, so sibling services can grant each other USAGE.
	Group string `mapstructure:"group" yaml:"group"`

	// LegacySQLAlchemy is recognized for compatibility with existing config
	// files. The engine itself does not branch on it.
	LegacySQLAlchemy bool `mapstructure:"legacy_sqlalchemy" yaml:"legacy_sqlalchemy"`

	MaxConnRetries    int    `mapstructure:"max_conn_retries" yaml:"max_conn_retries"`
	ConnRetryInterval int    `mapstructure:"conn_retry_interval" yaml:"conn_retry_interval"`
	MigrationTable    string `mapstructure:"migration_table" yaml:"migration_table"`

	// Dead marks the service as decommissioned: the next upgrade run tears
	// down the schema, user, and group membership instead of migrating.
	Dead bool `mapstructure:"dead" yaml:"dead"`

	MigrateDir string        `mapstructure:"migrate_dir" yaml:"migrate_dir"`
	Logging    LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// Load reads a YAML config file, resolves ${ENV_VAR} references against the
// process environment, and decodes the result into a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is the operator-supplied config location
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, env.OSLookup)
}

// Parse decodes raw YAML config bytes using the supplied environment lookup.
func Parse(data []byte, lookup env.Lookup) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode config yaml: %w", err)
	}
	raw = env.InterpolateMap(raw, lookup)

	c := &Config{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.MaxConnRetries == 0 {
		c.MaxConnRetries = DefaultMaxConnRetries
	}
	if c.ConnRetryInterval == 0 {
		c.ConnRetryInterval = DefaultConnRetryInterval
	}
	if strings.TrimSpace(c.MigrationTable) == "" {
		c.MigrationTable = DefaultMigrationTable
	}
	if strings.TrimSpace(c.MigrateDir) == "" {
		c.MigrateDir = DefaultMigrateDir
	}
}

// Validate checks that every field the engine depends on is present.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"hostname", c.Hostname},
		{"database", c.Database},
		{"priv_db_username", c.PrivDBUsername},
		{"priv_db_password", c.PrivDBPassword},
		{"service_db_username", c.ServiceDBUsername},
		{"service_db_password", c.ServiceDBPassword},
		{"service_schema", c.ServiceSchema},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("config: %s is required", r.name)
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.MaxConnRetries < 0 {
		return fmt.Errorf("config: max_conn_retries must not be negative")
	}
	if c.ConnRetryInterval < 0 {
		return fmt.Errorf("config: conn_retry_interval must not be negative")
	}
	return nil
}

// DSN builds a pgx stdlib connection string for the given credentials.
func (c *Config) DSN(username, password string) string {
	return "postgres://" + username + ":" + password + "@" + c.Hostname + ":" +
		strconv.Itoa(c.Port) + "/" + c.Database
}
