// Package migrations embeds SQL migration files and provides a function to apply them.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

// Supported dialects.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

//go:embed sqlite/*.sql postgres/*.sql
var embedded embed.FS

// FS returns the migration files of dialect, rooted at their directory.
func FS(dialect string) (fs.FS, error) {
	switch dialect {
	case SQLite, Postgres:
		return fs.Sub(embedded, dialect)
	default:
		return nil, fmt.Errorf("unknown dialect %q", dialect)
	}
}

// Setup points goose at the embedded files of dialect.
func Setup(dialect string) error {
	fsys, err := FS(dialect)
	if err != nil {
		return err
	}
	goose.SetBaseFS(fsys)

	gooseDialect := "sqlite3"
	if dialect == Postgres {
		gooseDialect = "postgres"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return nil
}

// Run applies all pending migrations to the given database.
func Run(db *sql.DB, dialect string) error {
	if err := Setup(dialect); err != nil {
		return err
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
