package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashibuto/MiGreat/internal/store"
	"gopkg.in/yaml.v3"
)

// manifestStep is one direction of a YAML-defined unit. Either a single sql
// blob or an ordered statement list may be given.
type manifestStep struct {
	SQL        string   `yaml:"sql"`
	Statements []string `yaml:"statements"`
}

func (s manifestStep) statements() []string {
	stmts := make([]string, 0, len(s.Statements)+1)
	if s.SQL != "" {
		stmts = append(stmts, s.SQL)
	}
	stmts = append(stmts, s.Statements...)
	return stmts
}

// manifest is the on-disk shape of a declarative migration unit.
type manifest struct {
	Up   manifestStep `yaml:"up"`
	Down manifestStep `yaml:"down"`
	// Options is kept as a raw mapping so only the keys the author wrote
	// overlay the defaults.
	Options map[string]interface{} `yaml:"options"`
}

// LoadManifest parses one NNNN_name.yaml file into a Unit whose Apply and
// Revert execute the manifest's statements in order.
func LoadManifest(path string) (Unit, error) {
	filename := filepath.Base(path)
	version, name, err := ParseSequence(filename)
	if err != nil {
		return Unit{}, &DiscoveryError{Msg: err.Error()}
	}

	clean := filepath.Clean(path)
	data, err := os.ReadFile(clean) // #nosec G304 -- path comes from controlled directory listing of migration files
	if err != nil {
		return Unit{}, fmt.Errorf("read manifest %s: %w", filename, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Unit{}, fmt.Errorf("decode manifest %s: %w", filename, err)
	}

	up := m.Up.statements()
	if len(up) == 0 {
		return Unit{}, &DiscoveryError{Msg: fmt.Sprintf("manifest %s has no up statements", filename)}
	}
	opts, err := OverlayOptions(m.Options)
	if err != nil {
		return Unit{}, &DiscoveryError{Msg: fmt.Sprintf("manifest %s: %v", filename, err)}
	}

	down := m.Down.statements()
	return Unit{
		Version: version,
		Name:    name,
		Apply:   execStatements(up),
		Revert:  revertStatements(filename, down),
		Options: opts,
	}, nil
}

func execStatements(stmts []string) Func {
	return func(ctx context.Context, db store.DBTX) error {
		for _, q := range stmts {
			if _, err := db.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("exec %q: %w", firstLine(q), err)
			}
		}
		return nil
	}
}

func revertStatements(filename string, stmts []string) Func {
	if len(stmts) == 0 {
		return func(context.Context, store.DBTX) error {
			return fmt.Errorf("manifest %s defines no down statements", filename)
		}
	}
	return execStatements(stmts)
}

func firstLine(q string) string {
	for i, r := range q {
		if r == '\n' {
			return q[:i]
		}
	}
	return q
}
