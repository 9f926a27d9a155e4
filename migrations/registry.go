package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	ghlmp "github.com/BETO-17/caso-mercadopago-GHL"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const embeddedRoot = "data/sql/migrations"

// FilesystemSpec pairs one dialect with the migration filesystem that serves
// it.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives one dialect's migration filesystem. The persistence
// client's RegisterSQLMigrations is the usual target.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if cleaned := normalizeDialects(targets); len(cleaned) > 0 {
			r.ValidationTargets = cleaned
		}
	}
}

// Filesystems resolves the per-dialect migration filesystems from the
// embedded tree, or from an explicit override for tests. Postgres files sit at
// the tree root and the sqlite variants in a subdirectory.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := ghlmp.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	layout := []struct {
		dialect string
		sub     string
	}{
		{dialect: DialectPostgres, sub: embeddedRoot},
		{dialect: DialectSQLite, sub: embeddedRoot + "/sqlite"},
	}

	specs := make([]FilesystemSpec, 0, len(layout))
	for _, entry := range layout {
		fsys, err := fs.Sub(root, entry.sub)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s tree %q is missing: %w", entry.dialect, entry.sub, err)
		}
		if err := requireUpMigrations(fsys, entry.dialect, entry.sub); err != nil {
			return nil, err
		}
		specs = append(specs, FilesystemSpec{Dialect: entry.dialect, Path: entry.sub, FS: fsys})
	}
	return specs, nil
}

// Register hands each validated dialect's filesystem to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       "ghlmp",
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	wanted := make(map[string]bool, len(reg.ValidationTargets))
	for _, dialect := range normalizeDialects(reg.ValidationTargets) {
		wanted[dialect] = true
	}
	if len(wanted) == 0 {
		return reg, fmt.Errorf("migrations: validation targets are required")
	}

	specs, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = specs

	for _, spec := range specs {
		if !wanted[spec.Dialect] {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s from %q: %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

func requireUpMigrations(fsys fs.FS, dialect, path string) error {
	matches, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: scan %s tree %q: %w", dialect, path, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("migrations: %s tree %q carries no *.up.sql files", dialect, path)
	}
	return nil
}

func normalizeDialects(values []string) []string {
	seen := make(map[string]bool, len(values))
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		dialect := strings.ToLower(strings.TrimSpace(value))
		if dialect == "" || seen[dialect] {
			continue
		}
		seen[dialect] = true
		cleaned = append(cleaned, dialect)
	}
	return cleaned
}
