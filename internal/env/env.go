package env

import (
	"os"
	"regexp"
)

// varSubstRegex matches config values of the form ${ENV_VAR_NAME}.
var varSubstRegex = regexp.MustCompile(`^\$\{(.+)\}$`)

// Lookup abstracts environment access so tests can substitute a fixed map.
type Lookup func(name string) (string, bool)

// OSLookup reads from the process environment.
func OSLookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

// Interpolate resolves a single config value. Values shaped like ${NAME} are
// replaced with the environment variable NAME (empty string when unset, which
// matches how unset secrets behave in container environments); anything else
// is returned verbatim.
func Interpolate(value string, lookup Lookup) string {
	if lookup == nil {
		lookup = OSLookup
	}
	m := varSubstRegex.FindStringSubmatch(value)
	if m == nil {
		return value
	}
	v, _ := lookup(m[1])
	return v
}

// InterpolateMap resolves ${NAME} references in every string value of a raw
// config mapping. Non-string values pass through untouched.
func InterpolateMap(raw map[string]interface{}, lookup Lookup) map[string]interface{} {
	if raw == nil {
		return nil
	}
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = Interpolate(s, lookup)
			continue
		}
		out[k] = v
	}
	return out
}
