package enums

import (
	"fmt"
	"slices"
	"strings"
)

// parse matches raw against valid, ignoring case and surrounding space.
func parse[T ~string](kind, raw string, valid []T) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(raw)))
	if slices.Contains(valid, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
