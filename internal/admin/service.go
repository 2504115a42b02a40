// Package admin lists and toggles per-table permissions on behalf of an
// operator.
package admin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/triage-ai/palisade/services/sql_guard/internal/audit"
	"github.com/triage-ai/palisade/services/sql_guard/internal/permissions"
	"go.uber.org/zap"
)

const (
	ListAuditMessage   = "ADMIN_LIST_PERMISSIONS"
	ToggleAuditMessage = "ADMIN_TOGGLE_PERMISSION"
)

var (
	tableNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)
	quoteStripper    = strings.NewReplacer(`'`, "", `"`, "", "`", "")
)

// TableChecker verifies a table against the live schema.
type TableChecker interface {
	TableExists(ctx context.Context, table string) (bool, error)
}

// ToggleCounter is notified of every toggle outcome.
type ToggleCounter interface {
	AdminToggle(result string)
}

// ToggleResult is returned by a successful toggle.
type ToggleResult struct {
	Success        bool                `json:"success"`
	TableName      string              `json:"table_name"`
	PermissionType string              `json:"permission_type"`
	Enabled        bool                `json:"enabled"`
	Record         *permissions.Record `json:"record"`
}

// Service is the admin permission API.
type Service struct {
	store    permissions.Store
	tables   TableChecker
	audit    audit.Recorder
	counter  ToggleCounter
	defaults permissions.Policy
	logger   *zap.Logger
}

// ServiceConfig holds constructor parameters for Service.
type ServiceConfig struct {
	Store    permissions.Store
	Tables   TableChecker
	Audit    audit.Recorder
	Counter  ToggleCounter // optional
	Defaults permissions.Policy
	Logger   *zap.Logger
}

func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    cfg.Store,
		tables:   cfg.Tables,
		audit:    cfg.Audit,
		counter:  cfg.Counter,
		defaults: cfg.Defaults,
		logger:   logger,
	}
}

// List returns every permission record.
func (s *Service) List(ctx context.Context) ([]permissions.Record, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		s.record("admin_list_permissions", audit.StatusError, ListAuditMessage, err.Error())
		return nil, fmt.Errorf("List: %w", err)
	}
	s.record("admin_list_permissions", audit.StatusOK, ListAuditMessage, "")
	if records == nil {
		records = []permissions.Record{}
	}
	return records, nil
}

// Toggle sets one flag on one table, creating the record from the default
// policy when it is missing. The other flag is left unchanged.
func (s *Service) Toggle(ctx context.Context, tableName, permissionType string, enabled bool) (*ToggleResult, error) {
	name, err := SanitizeTableName(tableName)
	if err != nil {
		s.count("invalid")
		s.record("admin_toggle_permission", audit.StatusBlocked, fmt.Sprintf("%s REJECTED: invalid table name", ToggleAuditMessage), err.Error())
		return nil, err
	}
	kind, err := permissions.ParseKind(permissionType)
	if err != nil {
		s.count("invalid")
		s.record("admin_toggle_permission", audit.StatusBlocked, fmt.Sprintf("%s REJECTED: %s invalid permission type", ToggleAuditMessage, name), err.Error())
		return nil, &ValidationError{Field: "permission_type", Msg: err.Error()}
	}

	exists, err := s.tables.TableExists(ctx, name)
	if err != nil {
		s.count("error")
		s.record("admin_toggle_permission", audit.StatusError, fmt.Sprintf("%s %s %s=%t", ToggleAuditMessage, name, kind, enabled), err.Error())
		return nil, fmt.Errorf("Toggle: %w", err)
	}
	if !exists {
		s.count("not_found")
		s.record("admin_toggle_permission", audit.StatusBlocked, fmt.Sprintf("%s FAILED: %s non-existent", ToggleAuditMessage, name), "")
		return nil, &NotFoundError{Table: name}
	}

	rec, err := s.store.SetFlag(ctx, name, kind, enabled, s.defaults)
	if err != nil {
		s.count("error")
		s.record("admin_toggle_permission", audit.StatusError, fmt.Sprintf("%s %s %s=%t", ToggleAuditMessage, name, kind, enabled), err.Error())
		return nil, fmt.Errorf("Toggle: %w", err)
	}

	s.count("ok")
	s.record("admin_toggle_permission", audit.StatusOK, fmt.Sprintf("%s %s %s=%t", ToggleAuditMessage, name, kind, enabled), "")
	s.logger.Info("permission toggled",
		zap.String("table", rec.TableName),
		zap.Bool("can_read", rec.CanRead),
		zap.Bool("can_write", rec.CanWrite),
	)
	return &ToggleResult{
		Success:        true,
		TableName:      name,
		PermissionType: string(kind),
		Enabled:        enabled,
		Record:         rec,
	}, nil
}

// SanitizeTableName lowercases and trims the name and strips quote
// characters. Anything left besides letters, digits and underscores is
// rejected, as is the internal permissions table.
func SanitizeTableName(raw string) (string, error) {
	name := quoteStripper.Replace(strings.ToLower(strings.TrimSpace(raw)))
	if name == "" {
		return "", &ValidationError{Field: "table_name", Msg: "must not be empty"}
	}
	if !tableNamePattern.MatchString(name) {
		return "", &ValidationError{Field: "table_name", Msg: "forbidden characters detected"}
	}
	if name == permissions.InternalTable {
		return "", &ValidationError{Field: "table_name", Msg: "the permissions table cannot be toggled"}
	}
	return name, nil
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	var ve *ValidationError
	var nf *NotFoundError
	return errors.As(err, &ve) || errors.As(err, &nf)
}

func (s *Service) record(tool string, status audit.Status, message, reason string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(audit.Record{
		Tool:   tool,
		Status: status,
		Query:  message,
		Reason: reason,
	})
}

func (s *Service) count(result string) {
	if s.counter != nil {
		s.counter.AdminToggle(result)
	}
}
