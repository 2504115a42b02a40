// Package database owns the connection to the guarded database and the
// dialect-specific SQL the guard needs (introspection, placeholders, DDL).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL flavour of the connected database.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// DefaultURL is used when DATABASE_URL is unset.
const DefaultURL = "sqlite:database.db"

// SQLite DSN parameters, same hardening as a single-writer metastore.
const (
	sqliteBusyTimeout = "5000"
	sqliteJournalMode = "WAL"
)

// DB is the single connection pool shared by the store, the syncer and the
// tool handlers. Callers own it and must Close it.
type DB struct {
	*sql.DB
	dialect Dialect
	target  string // redacted connection target for logs
}

// Open parses a connection URL (sqlite:<path>, postgres://, postgresql://,
// mysql://) and returns a pinged pool.
func Open(ctx context.Context, rawURL string) (*DB, error) {
	if rawURL == "" {
		rawURL = DefaultURL
	}

	driver, dsn, dialect, target, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	switch dialect {
	case SQLite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(time.Hour)
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("Open: ping %s: %w", dialect, err)
	}

	return &DB{DB: db, dialect: dialect, target: target}, nil
}

// Wrap adopts an existing pool, used by tests with sqlmock or in-memory SQLite.
func Wrap(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, dialect: dialect, target: string(dialect)}
}

// Dialect returns the SQL flavour of the connection.
func (d *DB) Dialect() Dialect { return d.dialect }

// Target returns a log-safe description of the connection.
func (d *DB) Target() string { return d.target }

// Rebind rewrites ? placeholders into the dialect's positional form.
func (d *DB) Rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseURL(rawURL string) (driver, dsn string, dialect Dialect, target string, err error) {
	switch {
	case strings.HasPrefix(rawURL, "sqlite:"):
		path := strings.TrimPrefix(rawURL, "sqlite:")
		path = strings.TrimPrefix(path, "//")
		if path == "" {
			return "", "", "", "", fmt.Errorf("parseURL: empty sqlite path")
		}
		if path != ":memory:" && !strings.HasPrefix(path, "file:") {
			if abs, absErr := filepath.Abs(path); absErr == nil {
				path = abs
			}
		}
		return "sqlite3", sqliteDSN(path), SQLite, "sqlite:" + path, nil

	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		u, perr := url.Parse(rawURL)
		if perr != nil {
			return "", "", "", "", fmt.Errorf("parseURL: %w", perr)
		}
		return "pgx", rawURL, Postgres, u.Redacted(), nil

	case strings.HasPrefix(rawURL, "mysql://"):
		u, perr := url.Parse(rawURL)
		if perr != nil {
			return "", "", "", "", fmt.Errorf("parseURL: %w", perr)
		}
		cfg := mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		cfg.ParseTime = true
		if u.User != nil {
			cfg.User = u.User.Username()
			cfg.Passwd, _ = u.User.Password()
		}
		return "mysql", cfg.FormatDSN(), MySQL, u.Redacted(), nil
	}

	return "", "", "", "", fmt.Errorf("unsupported DATABASE_URL format %q: use sqlite:<path>, postgresql://... or mysql://...", redactRaw(rawURL))
}

func sqliteDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	params := url.Values{}
	params.Set("_journal_mode", sqliteJournalMode)
	params.Set("_busy_timeout", sqliteBusyTimeout)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params.Encode()
}

func redactRaw(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.User != nil {
		return u.Redacted()
	}
	return rawURL
}
