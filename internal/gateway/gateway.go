// Package gateway implements the SQL tools the agent calls: every statement
// is judged by the guard, executed only when allowed and audited either way.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/triage-ai/palisade/services/sql_guard/internal/audit"
	"github.com/triage-ai/palisade/services/sql_guard/internal/database"
	"github.com/triage-ai/palisade/services/sql_guard/internal/engine"
	"github.com/triage-ai/palisade/services/sql_guard/internal/permissions"
	"github.com/triage-ai/palisade/services/sql_guard/internal/sqlscan"
	"go.uber.org/zap"
)

const (
	ToolQueryDB           = "query_db"
	ToolExecuteWriteQuery = "execute_write_query"
	ToolListTables        = "list_tables"

	listTablesAuditMessage = "LIST_TABLES"
)

// Guard decides whether a statement may run.
type Guard interface {
	Evaluate(ctx context.Context, query string) engine.Verdict
}

// Executor runs statements against the guarded database.
type Executor interface {
	Execute(ctx context.Context, query string) (*database.Result, error)
	ListTables(ctx context.Context, exclude ...string) ([]string, error)
}

// Observer receives guard and execution measurements.
type Observer interface {
	GuardDecision(rule string, allowed bool)
	ObserveQuery(tool string, d time.Duration)
}

// ReadResult is returned for statements that produce rows.
type ReadResult struct {
	Success  bool             `json:"success"`
	Data     []map[string]any `json:"data"`
	RowCount int              `json:"rowCount"`
}

// WriteResult is returned for INSERT, UPDATE and DELETE statements.
type WriteResult struct {
	Success      bool   `json:"success"`
	AffectedRows int64  `json:"affectedRows"`
	Message      string `json:"message"`
}

// Gateway wires the guard, the database and the audit log together.
type Gateway struct {
	guard    Guard
	db       Executor
	audit    audit.Recorder
	observer Observer
	logger   *zap.Logger
}

// Config holds constructor parameters for Gateway.
type Config struct {
	Guard    Guard
	DB       Executor
	Audit    audit.Recorder
	Observer Observer // optional
	Logger   *zap.Logger
}

func New(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		guard:    cfg.Guard,
		db:       cfg.DB,
		audit:    cfg.Audit,
		observer: cfg.Observer,
		logger:   logger,
	}
}

// QueryDB runs any statement the guard allows. The result is a *WriteResult
// when the statement starts with INSERT, UPDATE or DELETE and a *ReadResult
// otherwise.
func (g *Gateway) QueryDB(ctx context.Context, query string) (any, error) {
	res, err := g.run(ctx, ToolQueryDB, query)
	if err != nil {
		return nil, err
	}
	switch sqlscan.FirstKeyword(query) {
	case "INSERT", "UPDATE", "DELETE":
		return writeResult(res, "Query executed successfully"), nil
	}
	return readResult(res), nil
}

// ExecuteWriteQuery runs a mutation the guard allows. Statements without a
// mutation keyword are rejected before the guard runs.
func (g *Gateway) ExecuteWriteQuery(ctx context.Context, query string) (*WriteResult, error) {
	if !sqlscan.IsMutation(query) {
		g.record(ToolExecuteWriteQuery, audit.StatusBlocked, query, "", ErrNotMutation.Error())
		return nil, ErrNotMutation
	}
	res, err := g.run(ctx, ToolExecuteWriteQuery, query)
	if err != nil {
		return nil, err
	}
	return writeResult(res, "Write query executed successfully"), nil
}

// ListTables returns the live tables, without the permissions table.
func (g *Gateway) ListTables(ctx context.Context) ([]string, error) {
	tables, err := g.db.ListTables(ctx, permissions.InternalTable)
	if err != nil {
		g.record(ToolListTables, audit.StatusError, listTablesAuditMessage, "", err.Error())
		return nil, fmt.Errorf("ListTables: %w", err)
	}
	g.record(ToolListTables, audit.StatusOK, listTablesAuditMessage, "", "")
	if tables == nil {
		tables = []string{}
	}
	return tables, nil
}

func (g *Gateway) run(ctx context.Context, tool, query string) (*database.Result, error) {
	if strings.TrimSpace(query) == "" {
		g.record(tool, audit.StatusBlocked, query, "", ErrEmptyQuery.Error())
		return nil, ErrEmptyQuery
	}

	verdict := g.guard.Evaluate(ctx, query)
	if g.observer != nil {
		g.observer.GuardDecision(verdict.Rule, verdict.Allowed)
	}
	if !verdict.Allowed {
		g.record(tool, audit.StatusBlocked, query, verdict.Rule, verdict.Reason)
		g.logger.Info("query blocked",
			zap.String("tool", tool),
			zap.String("rule", verdict.Rule),
			zap.String("reason", verdict.Reason),
		)
		return nil, verdict.Err()
	}

	res, err := g.db.Execute(ctx, query)
	if err != nil {
		g.record(tool, audit.StatusError, query, "", err.Error())
		g.logger.Warn("query failed",
			zap.String("tool", tool),
			zap.Error(err),
		)
		return nil, &ExecutionError{Err: err}
	}

	g.record(tool, audit.StatusOK, query, "", "")
	if g.observer != nil {
		g.observer.ObserveQuery(tool, res.Duration)
	}
	return res, nil
}

func (g *Gateway) record(tool string, status audit.Status, query, rule, reason string) {
	if g.audit == nil {
		return
	}
	g.audit.Record(audit.Record{
		Tool:   tool,
		Status: status,
		Query:  query,
		Rule:   rule,
		Reason: reason,
	})
}

func readResult(res *database.Result) *ReadResult {
	rows := res.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return &ReadResult{Success: true, Data: rows, RowCount: len(rows)}
}

func writeResult(res *database.Result, message string) *WriteResult {
	affected := res.RowsAffected
	if res.ReturnsRows {
		affected = int64(len(res.Rows))
	}
	return &WriteResult{Success: true, AffectedRows: affected, Message: message}
}
