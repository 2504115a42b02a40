// Package server exposes the guarded SQL tools over the Model Context Protocol.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/triage-ai/palisade/services/sql_guard/internal/admin"
	"github.com/triage-ai/palisade/services/sql_guard/internal/audit"
	"github.com/triage-ai/palisade/services/sql_guard/internal/gateway"
	"github.com/triage-ai/palisade/services/sql_guard/internal/permissions"
	"go.uber.org/zap"
)

// QueryService is the agent-facing SQL surface.
type QueryService interface {
	QueryDB(ctx context.Context, query string) (any, error)
	ExecuteWriteQuery(ctx context.Context, query string) (*gateway.WriteResult, error)
	ListTables(ctx context.Context) ([]string, error)
}

// AdminService is the operator-facing permission surface.
type AdminService interface {
	List(ctx context.Context) ([]permissions.Record, error)
	Toggle(ctx context.Context, tableName, permissionType string, enabled bool) (*admin.ToggleResult, error)
}

// SQLGuardServer binds the tool names to the query and admin services.
type SQLGuardServer struct {
	queries   QueryService
	admin     AdminService
	validator *argValidator
	audit     audit.Recorder
	logger    *zap.Logger
}

// NewSQLGuardServer creates a new SQLGuardServer with the given dependencies.
// Calls rejected by argument validation are recorded on auditor, which may be
// nil.
func NewSQLGuardServer(queries QueryService, adminSvc AdminService, auditor audit.Recorder, logger *zap.Logger) (*SQLGuardServer, error) {
	validator, err := newArgValidator(toolDefs)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLGuardServer{
		queries:   queries,
		admin:     adminSvc,
		validator: validator,
		audit:     auditor,
		logger:    logger,
	}, nil
}

// MCPServer builds an MCP server with every tool registered.
func (s *SQLGuardServer) MCPServer(name, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	for _, d := range toolDefs {
		server.AddTool(&mcp.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		}, s.handler(d.Name))
	}
	return server
}

func (s *SQLGuardServer) handler(tool string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw json.RawMessage
		if req.Params != nil {
			raw = req.Params.Arguments
		}
		out, err := s.Call(ctx, tool, raw)
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(out)
	}
}

type sqlArgs struct {
	SQL string `json:"sql"`
}

type toggleArgs struct {
	TableName      string `json:"table_name"`
	PermissionType string `json:"permission_type"`
	Status         bool   `json:"status"`
}

// Call validates raw arguments and dispatches one tool invocation.
func (s *SQLGuardServer) Call(ctx context.Context, tool string, raw json.RawMessage) (any, error) {
	if err := s.validator.validate(tool, raw); err != nil {
		s.logger.Debug("tool arguments rejected", zap.String("tool", tool), zap.Error(err))
		if s.audit != nil {
			s.audit.Record(audit.Record{
				Tool:   tool,
				Status: audit.StatusBlocked,
				Query:  rejectedQuery(tool, raw),
				Rule:   "argument_validation",
				Reason: err.Error(),
			})
		}
		return nil, err
	}

	switch tool {
	case "query_db":
		var args sqlArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		return s.queries.QueryDB(ctx, args.SQL)
	case "execute_write_query":
		var args sqlArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		return s.queries.ExecuteWriteQuery(ctx, args.SQL)
	case "list_tables":
		return s.queries.ListTables(ctx)
	case "admin_list_permissions":
		return s.admin.List(ctx)
	case "admin_toggle_permission":
		var args toggleArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		return s.admin.Toggle(ctx, args.TableName, args.PermissionType, args.Status)
	}
	return nil, fmt.Errorf("unknown tool %q", tool)
}

// rejectedQuery is the audit text for a call that failed validation: the sql
// argument when it is a string, the raw arguments otherwise.
func rejectedQuery(tool string, raw json.RawMessage) string {
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err == nil {
		if q, ok := args["sql"].(string); ok && q != "" {
			return q
		}
	}
	return fmt.Sprintf("%s REJECTED: %s", strings.ToUpper(tool), raw)
}

func textResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
	}, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "ERROR: " + err.Error()}},
	}
}
