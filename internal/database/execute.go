package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// rowKeywords start statements that produce a result set.
var rowKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"PRAGMA":   true,
	"SHOW":     true,
	"EXPLAIN":  true,
	"VALUES":   true,
	"DESCRIBE": true,
	"DESC":     true,
	"TABLE":    true,
}

// Result is the outcome of one raw statement.
type Result struct {
	Columns      []string
	Rows         []map[string]any
	RowsAffected int64
	ReturnsRows  bool
	Duration     time.Duration
}

// ReturnsRows reports whether the statement is run as a query rather than an exec.
func ReturnsRows(query string) bool {
	fields := strings.Fields(strings.ToUpper(query))
	if len(fields) == 0 {
		return false
	}
	first := strings.TrimLeft(fields[0], "(")
	return rowKeywords[first] || strings.Contains(strings.ToUpper(query), " RETURNING ")
}

// Execute runs a raw statement verbatim. Errors are the driver's own.
func (d *DB) Execute(ctx context.Context, query string) (*Result, error) {
	start := time.Now()

	if !ReturnsRows(query) {
		res, err := d.ExecContext(ctx, query)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = 0
		}
		return &Result{RowsAffected: affected, Duration: time.Since(start)}, nil
	}

	rows, err := d.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("Execute: columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("Execute: column types: %w", err)
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i], columnTypes[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Columns:     columns,
		Rows:        results,
		ReturnsRows: true,
		Duration:    time.Since(start),
	}, nil
}

// convertValue turns driver values into JSON-friendly Go values.
func convertValue(val any, colType *sql.ColumnType) any {
	b, ok := val.([]byte)
	if !ok {
		return val
	}
	typeName := strings.ToUpper(colType.DatabaseTypeName())
	switch {
	case strings.Contains(typeName, "BLOB"), strings.Contains(typeName, "BINARY"), typeName == "BYTEA":
		return b
	default:
		// TEXT, CHAR, DECIMAL, JSON and untyped values: keep as string
		return string(b)
	}
}
