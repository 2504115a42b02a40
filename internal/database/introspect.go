package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ListTables returns the lowercase names of the live, non-system base tables
// of the connected database, sorted. Names in exclude (lowercase) are skipped.
func (d *DB) ListTables(ctx context.Context, exclude ...string) ([]string, error) {
	var query string
	switch d.dialect {
	case SQLite:
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`
	case Postgres:
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`
	case MySQL:
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'`
	default:
		return nil, fmt.Errorf("ListTables: unsupported dialect %q", d.dialect)
	}

	rows, err := d.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListTables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[strings.ToLower(e)] = struct{}{}
	}

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ListTables: %w", err)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := skip[name]; ok {
			continue
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTables: %w", err)
	}

	sort.Strings(tables)
	return tables, nil
}

// TableExists reports whether table is among the live tables.
func (d *DB) TableExists(ctx context.Context, table string) (bool, error) {
	tables, err := d.ListTables(ctx)
	if err != nil {
		return false, err
	}
	table = strings.ToLower(table)
	for _, t := range tables {
		if t == table {
			return true, nil
		}
	}
	return false, nil
}

// Columns returns the lowercase column names of table.
func (d *DB) Columns(ctx context.Context, table string) (map[string]bool, error) {
	var (
		query string
		args  []any
	)
	switch d.dialect {
	case SQLite:
		// PRAGMA does not accept bound parameters; table is an internal constant.
		query = fmt.Sprintf(`SELECT name FROM pragma_table_info('%s')`, table)
	case Postgres:
		query = `SELECT column_name FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1`
		args = []any{table}
	case MySQL:
		query = `SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ?`
		args = []any{table}
	default:
		return nil, fmt.Errorf("Columns: unsupported dialect %q", d.dialect)
	}

	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("Columns: %w", err)
		}
		cols[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Columns: %w", err)
	}
	return cols, nil
}
