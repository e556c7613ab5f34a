package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver registration ("pgx").
	_ "modernc.org/sqlite"             // SQLite driver registration.

	"job_distributor/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQL implements Storage on database/sql for the SQLite and Postgres dialects.
// Queries are written with ? placeholders and rebound for Postgres.
type SQL struct {
	db      *sql.DB
	dialect string
}

// Open connects to the database for driver ("sqlite" or "postgres") and runs
// pending migrations.
func Open(driver, dsn string) (*SQL, error) {
	switch driver {
	case migrations.SQLite:
		return NewSQLite(dsn)
	case migrations.Postgres:
		return NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQL, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dsn == ":memory:" {
		// Every connection gets its own in-memory database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQL{db: db, dialect: migrations.SQLite}, nil
}

// NewPostgres opens a Postgres database through pgx and runs pending migrations.
func NewPostgres(dsn string) (*SQL, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrations.Run(db, migrations.Postgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQL{db: db, dialect: migrations.Postgres}, nil
}

// New wraps an already open and migrated database.
func New(db *sql.DB, dialect string) *SQL {
	return &SQL{db: db, dialect: dialect}
}

// Close closes the underlying database connection.
func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQL) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQL) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// insertID runs an INSERT ... RETURNING id statement.
func (s *SQL) insertID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := s.queryRow(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (s *SQL) rebind(query string) string {
	if s.dialect != migrations.Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type scannable interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := formatTime(*t)
	return &v
}

func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, ns.String)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("scan %s: %w", what, err)
}

// prefixed qualifies every column of a comma separated list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
