package migration

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashibuto/MiGreat/internal/store"
)

// Options controls how a single migration unit is executed.
type Options struct {
	// Transact wraps the unit's apply step and its version record in one
	// transaction. Units that cannot run inside a transaction (for example
	// CREATE INDEX CONCURRENTLY) opt out and accept the crash window between
	// the unit completing and the record landing.
	Transact bool `mapstructure:"transact" yaml:"transact"`
	// RunAsPriv executes the unit on the privileged connection instead of the
	// schema-scoped service connection.
	RunAsPriv bool `mapstructure:"run_as_priv" yaml:"run_as_priv"`
}

// DefaultOptions returns the documented defaults: transactional, service
// identity.
func DefaultOptions() Options {
	return Options{Transact: true, RunAsPriv: false}
}

// OverlayOptions merges a sparse options mapping onto the defaults: keys the
// unit provides override, everything else keeps its default. Unknown keys are
// rejected so a typo like "transcat" fails loudly instead of silently running
// with defaults.
func OverlayOptions(raw map[string]interface{}) (Options, error) {
	opts := DefaultOptions()
	if len(raw) == 0 {
		return opts, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return opts, err
	}
	if err := dec.Decode(raw); err != nil {
		return opts, fmt.Errorf("migration options: %w", err)
	}
	return opts, nil
}

// Func is one direction of a migration unit. It receives an open statement
// handle: a *sql.Tx when the unit is transactional, the bare connection
// otherwise.
type Func func(ctx context.Context, db store.DBTX) error

// Unit is one schema-change step. Identity is Version; units are immutable
// once discovered for a run.
type Unit struct {
	Version int
	Name    string
	Apply   Func
	// Revert undoes the unit. The engine never invokes it during an upgrade;
	// it exists for operator-driven downgrades.
	Revert  Func
	Options Options
}
