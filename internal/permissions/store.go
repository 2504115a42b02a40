// Package permissions persists the per-table read/write policy inside the
// guarded database and keeps it reconciled with the live schema.
package permissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/triage-ai/palisade/services/sql_guard/internal/database"
	"go.uber.org/zap"
)

// Reader is the read path the guard depends on.
type Reader interface {
	// Lookup returns the records for the given lowercase table names.
	// Tables without a record are absent from the map.
	Lookup(ctx context.Context, tables []string) (map[string]Record, error)
}

// Store is the full permission store.
type Store interface {
	Reader
	// Get returns the record for a table, or nil if none exists.
	Get(ctx context.Context, table string) (*Record, error)
	List(ctx context.Context) ([]Record, error)
	Insert(ctx context.Context, rec Record) error
	// SetFlag updates one flag of an existing record, or inserts defaults
	// plus the flag when the table has no record yet.
	SetFlag(ctx context.Context, table string, kind Kind, enabled bool, defaults Policy) (*Record, error)
	Delete(ctx context.Context, table string) error
}

// SQLStore keeps records in InternalTable. Writes are serialized; every
// statement commits on its own.
type SQLStore struct {
	db     *database.DB
	logger *zap.Logger
	mu     sync.Mutex
}

// SQLStoreConfig configures the SQLStore.
type SQLStoreConfig struct {
	DB     *database.DB
	Logger *zap.Logger
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(cfg SQLStoreConfig) *SQLStore {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{db: cfg.DB, logger: logger}
}

// EnsureTable creates InternalTable if absent.
func (s *SQLStore) EnsureTable(ctx context.Context) error {
	nameType := "TEXT"
	if s.db.Dialect() == database.MySQL {
		nameType = "VARCHAR(255)"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		table_name %s PRIMARY KEY,
		can_read BOOLEAN NOT NULL DEFAULT TRUE,
		can_write BOOLEAN NOT NULL DEFAULT FALSE
	)`, InternalTable, nameType)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("EnsureTable: %w", err)
	}
	return nil
}

// MigrateLegacy upgrades a single-flag is_allowed table by adding the
// missing columns and copying is_allowed into both. The old column stays.
// Reports whether a migration ran.
func (s *SQLStore) MigrateLegacy(ctx context.Context) (bool, error) {
	cols, err := s.db.Columns(ctx, InternalTable)
	if err != nil {
		return false, fmt.Errorf("MigrateLegacy: %w", err)
	}
	if !cols["is_allowed"] || (cols["can_read"] && cols["can_write"]) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !cols["can_read"] {
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN can_read BOOLEAN NOT NULL DEFAULT TRUE`, InternalTable)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return false, fmt.Errorf("MigrateLegacy: add can_read: %w", err)
		}
	}
	if !cols["can_write"] {
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN can_write BOOLEAN NOT NULL DEFAULT FALSE`, InternalTable)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return false, fmt.Errorf("MigrateLegacy: add can_write: %w", err)
		}
	}
	stmt := fmt.Sprintf(`UPDATE %s SET can_read = is_allowed, can_write = is_allowed`, InternalTable)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return false, fmt.Errorf("MigrateLegacy: copy is_allowed: %w", err)
	}
	return true, nil
}

func (s *SQLStore) Lookup(ctx context.Context, tables []string) (map[string]Record, error) {
	out := make(map[string]Record, len(tables))
	if len(tables) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tables)), ",")
	args := make([]any, len(tables))
	for i, t := range tables {
		args[i] = NormalizeName(t)
	}
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT table_name, can_read, can_write FROM %s WHERE table_name IN (%s)`,
		InternalTable, placeholders,
	))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Lookup: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.TableName, &r.CanRead, &r.CanWrite); err != nil {
			return nil, fmt.Errorf("Lookup: %w", err)
		}
		r.TableName = NormalizeName(r.TableName)
		out[r.TableName] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Lookup: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Get(ctx context.Context, table string) (*Record, error) {
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT table_name, can_read, can_write FROM %s WHERE table_name = ?`, InternalTable,
	))
	var r Record
	err := s.db.QueryRowContext(ctx, query, NormalizeName(table)).Scan(&r.TableName, &r.CanRead, &r.CanWrite)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &r, nil
}

func (s *SQLStore) List(ctx context.Context) ([]Record, error) {
	query := fmt.Sprintf(`SELECT table_name, can_read, can_write FROM %s ORDER BY table_name`, InternalTable)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]Record, 0)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.TableName, &r.CanRead, &r.CanWrite); err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return records, nil
}

func (s *SQLStore) Insert(ctx context.Context, rec Record) error {
	rec.TableName = NormalizeName(rec.TableName)
	if rec.TableName == InternalTable {
		return fmt.Errorf("Insert: %s cannot hold a record for itself", InternalTable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(ctx, rec)
}

func (s *SQLStore) insertLocked(ctx context.Context, rec Record) error {
	query := s.db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (table_name, can_read, can_write) VALUES (?, ?, ?)`, InternalTable,
	))
	if _, err := s.db.ExecContext(ctx, query, rec.TableName, rec.CanRead, rec.CanWrite); err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	return nil
}

func (s *SQLStore) SetFlag(ctx context.Context, table string, kind Kind, enabled bool, defaults Policy) (*Record, error) {
	table = NormalizeName(table)
	if table == InternalTable {
		return nil, fmt.Errorf("SetFlag: %s cannot hold a record for itself", InternalTable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Get(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("SetFlag: %w", err)
	}

	if existing == nil {
		rec := defaults.record(table)
		applyFlag(&rec, kind, enabled)
		if err := s.insertLocked(ctx, rec); err != nil {
			return nil, fmt.Errorf("SetFlag: %w", err)
		}
		return &rec, nil
	}

	query := s.db.Rebind(fmt.Sprintf(`UPDATE %s SET %s = ? WHERE table_name = ?`, InternalTable, kind.column()))
	if _, err := s.db.ExecContext(ctx, query, enabled, table); err != nil {
		return nil, fmt.Errorf("SetFlag: %w", err)
	}
	applyFlag(existing, kind, enabled)
	return existing, nil
}

func (s *SQLStore) Delete(ctx context.Context, table string) error {
	query := s.db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE table_name = ?`, InternalTable))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, query, NormalizeName(table)); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

func applyFlag(rec *Record, kind Kind, enabled bool) {
	if kind == KindWrite {
		rec.CanWrite = enabled
		return
	}
	rec.CanRead = enabled
}
