package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DiscoveryError reports malformed, duplicate, or gapped sequence numbering
// among migration units. It always surfaces before any database contact.
type DiscoveryError struct {
	Msg string
}

func (e *DiscoveryError) Error() string {
	return "discovery: " + e.Msg
}

// unitFileRegex matches migration manifests: a numeric sequence prefix, an
// underscore, a descriptive name, and a yaml extension.
var unitFileRegex = regexp.MustCompile(`^(\d+)_(.+)\.(ya?ml)$`)

// ParseSequence extracts the sequence number and name from a manifest
// filename such as "0002_create_enum_type.yaml".
func ParseSequence(filename string) (int, string, error) {
	m := unitFileRegex.FindStringSubmatch(filename)
	if m == nil {
		return 0, "", fmt.Errorf("%s does not match NNNN_name.yaml", filename)
	}
	seq, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", fmt.Errorf("%s: bad sequence prefix: %w", filename, err)
	}
	return seq, m[2], nil
}

// Validate orders units ascending by sequence number, failing on non-positive
// numbers, duplicates, and gaps. Gaps fail because migrations build on prior
// schema state; a missing number usually means a unit was lost in a merge.
func Validate(units []Unit) ([]Unit, error) {
	byVersion := make(map[int]string, len(units))
	out := make([]Unit, len(units))
	copy(out, units)

	for _, u := range out {
		if u.Version < 1 {
			return nil, &DiscoveryError{Msg: fmt.Sprintf("unit %q has non-positive sequence number %d", u.Name, u.Version)}
		}
		if prev, ok := byVersion[u.Version]; ok {
			return nil, &DiscoveryError{Msg: fmt.Sprintf("units %q and %q share sequence number %d", prev, u.Name, u.Version)}
		}
		byVersion[u.Version] = u.Name
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })

	for i, u := range out {
		if u.Version != i+1 {
			return nil, &DiscoveryError{Msg: fmt.Sprintf("sequence number %d is missing from the series", i+1)}
		}
	}
	return out, nil
}

// DiscoverDir loads and validates all migration manifests in dir. Files that
// do not match the naming convention are ignored, matching how editors drop
// swap files next to real ones.
func DiscoverDir(dir string) ([]Unit, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &DiscoveryError{Msg: fmt.Sprintf("read migration directory %s: %v", dir, err)}
	}
	var units []Unit
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !unitFileRegex.MatchString(name) {
			continue
		}
		u, err := LoadManifest(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return Validate(units)
}

// NextVersion returns the next unused sequence number for dir, for the create
// scaffold. It shares ParseSequence with discovery so numbering stays
// consistent between scaffolding and runs.
func NextVersion(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		seq, _, err := ParseSequence(e.Name())
		if err != nil {
			continue
		}
		if seq > highest {
			highest = seq
		}
	}
	return highest + 1, nil
}

// FormatFilename builds the zero-padded manifest filename for a new unit.
func FormatFilename(version int, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "unnamed_migrator"
	}
	return fmt.Sprintf("%04d_%s.yaml", version, name)
}
