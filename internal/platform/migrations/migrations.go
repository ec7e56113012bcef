// Package migrations owns the database schema. The SQL sources are embedded
// so the server can bootstrap its own schema at startup and the migrate
// command can walk the same versioned files up and down.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed sql/*.sql
var files embed.FS

// Dir is the embedded directory migration tooling reads from.
const Dir = "sql"

// FS exposes the embedded migration sources.
func FS() fs.FS {
	return files
}

// Apply runs every up migration in version order against db. All statements
// are idempotent, so Apply is safe to run on every startup.
func Apply(ctx context.Context, db *sql.DB) error {
	names, err := fs.Glob(files, Dir+"/*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(raw)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}
