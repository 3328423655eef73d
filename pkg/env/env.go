// Package env reads the handful of settings needed before config.Load runs.
package env

import (
	"os"
	"strings"
)

// Prefix namespaces every bazaar variable.
const Prefix = "BAZAAR_"

// Get returns BAZAAR_<name>, then the unprefixed <name>, then fallback.
// Blank values count as unset.
func Get(name, fallback string) string {
	name = strings.TrimPrefix(name, Prefix)
	for _, key := range []string{Prefix + name, name} {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}
