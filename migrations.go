package access

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"path"
	"slices"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files, one directory per dialect.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// MigrationsDir returns the migrations directory for a bun dialect.
func MigrationsDir(name dialect.Name) (string, error) {
	switch name {
	case dialect.SQLite:
		return "data/sql/migrations/sqlite", nil
	case dialect.PG:
		return "data/sql/migrations/postgres", nil
	default:
		return "", goerrors.New("unsupported database dialect", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"dialect": name.String()})
	}
}

// Migrate creates the schema. Every statement is idempotent so it can run on
// each start.
func Migrate(ctx context.Context, db *bun.DB) error {
	dir, err := MigrationsDir(db.Dialect().Name())
	if err != nil {
		return err
	}

	files, err := fs.Glob(migrationsFS, path.Join(dir, "*.up.sql"))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not list migrations")
	}
	slices.Sort(files)

	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, file := range files {
			body, err := migrationsFS.ReadFile(file)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not read migration").
					WithMetadata(map[string]any{"file": file})
			}
			for _, stmt := range splitStatements(string(body)) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return goerrors.Wrap(err, goerrors.CategoryInternal, "migration failed").
						WithMetadata(map[string]any{"file": file, "statement": stmt})
				}
			}
		}
		return nil
	})
}

func splitStatements(body string) []string {
	var out []string
	for _, stmt := range strings.Split(body, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
