package migrate

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/pressly/goose/v3"
	"go.uber.org/multierr"
)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

var sqlFileRe = regexp.MustCompile(`^\d{14}_([a-z0-9_]+)\.sql$`)

// ValidateDir checks the migrations in dir, or the embedded set when dir is
// empty or the default.
func ValidateDir(dir string) error {
	fsys, root := source(dir)
	return ValidateFS(fsys, root)
}

// ValidateFS checks filenames, version and name uniqueness, and goose section
// markers. Every problem found is reported, not just the first.
func ValidateFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var (
		errs     error
		found    int
		versions = map[int64]string{}
		names    = map[string]string{}
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		found++

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		version, err := goose.NumericComponent(name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("migration %q: %w", name, err))
			continue
		}
		if prev, ok := versions[version]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %d in %q and %q", version, prev, name))
		}
		versions[version] = name
		if prev, ok := names[m[1]]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration name %q in %q and %q", m[1], prev, name))
		}
		names[m[1]] = name

		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read file %q: %w", name, err))
			continue
		}
		errs = multierr.Append(errs, checkSections(name, string(body)))
	}
	if found == 0 {
		return fmt.Errorf("no migrations found in %q", dir)
	}
	return errs
}

func checkSections(name, body string) error {
	up := strings.Index(body, upMarker)
	down := strings.Index(body, downMarker)
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing %q", name, upMarker)
	case down < 0:
		return fmt.Errorf("migration %q missing %q", name, downMarker)
	case down < up:
		return fmt.Errorf("migration %q has its Down section before Up", name)
	}
	return nil
}
