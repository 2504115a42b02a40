package gateway

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/triage-ai/palisade/services/sql_guard/internal/admin"
	"github.com/triage-ai/palisade/services/sql_guard/internal/audit"
	"github.com/triage-ai/palisade/services/sql_guard/internal/database"
	"github.com/triage-ai/palisade/services/sql_guard/internal/engine"
	"github.com/triage-ai/palisade/services/sql_guard/internal/engine/evaluators"
	"github.com/triage-ai/palisade/services/sql_guard/internal/permissions"
	"github.com/triage-ai/palisade/services/sql_guard/internal/sqlscan"
)

type recordingAudit struct {
	records []audit.Record
}

func (r *recordingAudit) Record(rec audit.Record) { r.records = append(r.records, rec) }

func (r *recordingAudit) last() audit.Record { return r.records[len(r.records)-1] }

type env struct {
	db      *database.DB
	store   *permissions.CachedStore
	gateway *Gateway
	admin   *admin.Service
	audit   *recordingAudit
}

type envOptions struct {
	allowMutations bool
	allowedTables  []string
}

func newEnv(t *testing.T, opts envOptions) *env {
	t.Helper()
	raw, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = raw.Close() })
	db := database.Wrap(raw, database.SQLite)

	ctx := context.Background()
	for _, ddl := range []string{
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, total REAL)`,
		`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT)`,
		`INSERT INTO orders (id, total) VALUES (1, 9.5), (2, 20)`,
		`INSERT INTO customers (id, name) VALUES (1, 'ada')`,
	} {
		_, err := db.ExecContext(ctx, ddl)
		require.NoError(t, err)
	}

	sqlStore := permissions.NewSQLStore(permissions.SQLStoreConfig{DB: db})
	store := permissions.NewCachedStore(permissions.CachedStoreConfig{Store: sqlStore})
	syncer := permissions.NewSyncer(permissions.SyncerConfig{
		Schema:  sqlStore,
		Store:   store,
		Tables:  db,
		Default: permissions.DefaultPolicy(),
	})
	_, err = syncer.Run(ctx)
	require.NoError(t, err)

	guard := engine.NewGuardEngine(sqlscan.NewKeywordClassifier(), evaluators.Default(evaluators.Options{
		AllowMutations: opts.allowMutations,
		AllowedTables:  opts.allowedTables,
		Store:          store,
	}), nil)

	rec := &recordingAudit{}
	return &env{
		db:      db,
		store:   store,
		audit:   rec,
		gateway: New(Config{Guard: guard, DB: db, Audit: rec}),
		admin: admin.NewService(admin.ServiceConfig{
			Store:    store,
			Tables:   db,
			Audit:    rec,
			Defaults: permissions.DefaultPolicy(),
		}),
	}
}

func requireDenied(t *testing.T, err error, contains string) {
	t.Helper()
	var denied *engine.DeniedError
	require.ErrorAs(t, err, &denied)
	if contains != "" {
		assert.Contains(t, denied.Reason, contains)
	}
}

func TestScenario_DefaultPolicy(t *testing.T) {
	e := newEnv(t, envOptions{allowMutations: true})
	ctx := context.Background()

	out, err := e.gateway.QueryDB(ctx, "SELECT * FROM orders")
	require.NoError(t, err)
	read, ok := out.(*ReadResult)
	require.True(t, ok)
	assert.True(t, read.Success)
	assert.Equal(t, 2, read.RowCount)
	assert.Equal(t, audit.StatusOK, e.audit.last().Status)

	_, err = e.gateway.ExecuteWriteQuery(ctx, "DELETE FROM orders WHERE id=1")
	requireDenied(t, err, "write access")
	assert.Equal(t, audit.StatusBlocked, e.audit.last().Status)
	assert.Equal(t, "table_permission", e.audit.last().Rule)
}

func TestScenario_ReadToggleIsIdempotent(t *testing.T) {
	e := newEnv(t, envOptions{allowMutations: true})
	ctx := context.Background()

	_, err := e.admin.Toggle(ctx, "orders", "read", false)
	require.NoError(t, err)
	_, err = e.gateway.QueryDB(ctx, "SELECT * FROM orders")
	requireDenied(t, err, "read access")

	for i := 0; i < 2; i++ {
		_, err = e.admin.Toggle(ctx, "orders", "read", true)
		require.NoError(t, err)
	}
	_, err = e.gateway.QueryDB(ctx, "SELECT * FROM orders")
	require.NoError(t, err)
}

func TestScenario_WriteToggleRoundTrip(t *testing.T) {
	e := newEnv(t, envOptions{allowMutations: true})
	ctx := context.Background()

	before, err := e.admin.List(ctx)
	require.NoError(t, err)
	require.Len(t, before, 2)

	_, err = e.admin.Toggle(ctx, "orders", "write", true)
	require.NoError(t, err)
	_, err = e.gateway.ExecuteWriteQuery(ctx, "UPDATE orders SET total = 1 WHERE id = 2")
	require.NoError(t, err)

	_, err = e.admin.Toggle(ctx, "orders", "write", false)
	require.NoError(t, err)

	after, err := e.admin.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = e.gateway.ExecuteWriteQuery(ctx, "UPDATE orders SET total = 2 WHERE id = 2")
	requireDenied(t, err, "write access")
}

func TestScenario_MutationSwitchOverridesCanWrite(t *testing.T) {
	e := newEnv(t, envOptions{allowMutations: false})
	ctx := context.Background()

	_, err := e.admin.Toggle(ctx, "orders", "write", true)
	require.NoError(t, err)

	for _, q := range []string{
		"INSERT INTO orders (id, total) VALUES (3, 1)",
		"UPDATE orders SET total = 0",
		"DROP TABLE orders",
	} {
		_, err = e.gateway.ExecuteWriteQuery(ctx, q)
		requireDenied(t, err, "ALLOW_MUTATIONS")
	}
}

func TestScenario_WriteAllowedWhenPermitted(t *testing.T) {
	e := newEnv(t, envOptions{allowMutations: true})
	ctx := context.Background()

	_, err := e.admin.Toggle(ctx, "orders", "write", true)
	require.NoError(t, err)

	res, err := e.gateway.ExecuteWriteQuery(ctx, "UPDATE orders SET total = 0")
	require.NoError(t, err)
	assert.Equal(t, &WriteResult{Success: true, AffectedRows: 2, Message: "Write query executed successfully"}, res)

	out, err := e.gateway.QueryDB(ctx, "DELETE FROM orders WHERE id = 1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.(*WriteResult).AffectedRows)
}

func TestScenario_Whitelist(t *testing.T) {
	e := newEnv(t, envOptions{allowMutations: true, allowedTables: []string{"orders"}})
	ctx := context.Background()

	_, err := e.gateway.QueryDB(ctx, "SELECT * FROM customers")
	requireDenied(t, err, "unauthorized tables: customers")

	_, err = e.gateway.QueryDB(ctx, "SELECT * FROM orders")
	require.NoError(t, err)
}

func TestScenario_InternalTableUnderAnyConfig(t *testing.T) {
	for _, opts := range []envOptions{
		{allowMutations: true},
		{allowMutations: false},
		{allowMutations: true, allowedTables: []string{"mcp_internal_permissions"}},
	} {
		e := newEnv(t, opts)
		_, err := e.gateway.QueryDB(context.Background(), "SELECT * FROM mcp_internal_permissions")
		requireDenied(t, err, "mcp_internal_permissions")
	}
}

func TestScenario_NoTableReference(t *testing.T) {
	e := newEnv(t, envOptions{allowMutations: false, allowedTables: []string{"orders"}})

	out, err := e.gateway.QueryDB(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, 1, out.(*ReadResult).RowCount)
}

func TestScenario_NewTableWithoutRecordIsDenied(t *testing.T) {
	e := newEnv(t, envOptions{allowMutations: true})
	ctx := context.Background()

	_, err := e.db.ExecContext(ctx, `CREATE TABLE invoices (id INTEGER)`)
	require.NoError(t, err)

	_, err = e.gateway.QueryDB(ctx, "SELECT * FROM invoices")
	requireDenied(t, err, "access denied to table invoices")
}

func TestExecuteWriteQuery_RejectsReads(t *testing.T) {
	e := newEnv(t, envOptions{allowMutations: true})

	_, err := e.gateway.ExecuteWriteQuery(context.Background(), "SELECT * FROM orders")
	assert.True(t, errors.Is(err, ErrNotMutation))
	assert.Equal(t, audit.StatusBlocked, e.audit.last().Status)
}

func TestQueryDB_ExecutionErrorIsAudited(t *testing.T) {
	e := newEnv(t, envOptions{allowMutations: true})

	_, err := e.gateway.QueryDB(context.Background(), "SELECT missing_column FROM orders")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.True(t, strings.Contains(execErr.Error(), "missing_column"))
	assert.Equal(t, audit.StatusError, e.audit.last().Status)
}

func TestQueryDB_EmptyStatement(t *testing.T) {
	e := newEnv(t, envOptions{allowMutations: true})

	_, err := e.gateway.QueryDB(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestListTables_HidesPermissionsTable(t *testing.T) {
	e := newEnv(t, envOptions{allowMutations: true})

	tables, err := e.gateway.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, tables)
	assert.Equal(t, "LIST_TABLES", e.audit.last().Query)
}
