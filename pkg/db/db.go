package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Supported database/sql driver names.
const (
	DriverCGO  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

// Open opens the SQLite database at path with the given driver. In-memory
// databases are pinned to a single connection so every caller sees the same
// database.
func Open(driver, path string) (*sql.DB, error) {
	dsn := path
	switch driver {
	case DriverCGO:
		if path != ":memory:" {
			dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
		}
	case DriverPure:
		if path != ":memory:" {
			dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s %q: %w", driver, path, err)
	}
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s %q: %w", driver, path, err)
	}
	return conn, nil
}

// InitDB runs the embedded migrations on the given DB connection. Each call
// uses its own goose provider, so concurrent calls on different connections
// share no state.
func InitDB(ctx context.Context, db *sql.DB) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
