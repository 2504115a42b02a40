package main

import (
	"context"
	"fmt"

	"github.com/triage-ai/palisade/services/sql_guard/internal/admin"
	"github.com/triage-ai/palisade/services/sql_guard/internal/audit"
	"github.com/triage-ai/palisade/services/sql_guard/internal/config"
	"github.com/triage-ai/palisade/services/sql_guard/internal/database"
	"github.com/triage-ai/palisade/services/sql_guard/internal/engine"
	"github.com/triage-ai/palisade/services/sql_guard/internal/engine/evaluators"
	"github.com/triage-ai/palisade/services/sql_guard/internal/gateway"
	"github.com/triage-ai/palisade/services/sql_guard/internal/metrics"
	"github.com/triage-ai/palisade/services/sql_guard/internal/permissions"
	"github.com/triage-ai/palisade/services/sql_guard/internal/sqlscan"
	"go.uber.org/zap"
)

// app owns every long-lived resource. Construction order is the dependency
// order; close releases in reverse.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	db       *database.DB
	sqlStore *permissions.SQLStore
	store    permissions.Store
	metrics  *metrics.Metrics
	audit    *audit.Logger
	gateway  *gateway.Gateway
	admin    *admin.Service
}

func newApp(ctx context.Context, cfg config.Config, source string, logger *zap.Logger) (*app, error) {
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("database connected",
		zap.String("dialect", string(db.Dialect())),
		zap.String("target", db.Target()),
	)

	a := &app{cfg: cfg, logger: logger, db: db, metrics: metrics.New()}

	a.sqlStore = permissions.NewSQLStore(permissions.SQLStoreConfig{DB: db, Logger: logger})
	a.store = a.sqlStore
	if cfg.PermissionCacheTTL > 0 {
		a.store = permissions.NewCachedStore(permissions.CachedStoreConfig{
			Store:    a.sqlStore,
			CacheTTL: cfg.PermissionCacheTTL,
			Logger:   logger,
		})
	}

	a.audit = audit.NewLogger(audit.LoggerConfig{
		Writer:  buildAuditWriter(ctx, cfg.Audit, logger),
		Counter: a.metrics,
		Source:  source,
		Logger:  logger,
	})

	guard := engine.NewGuardEngine(sqlscan.NewKeywordClassifier(), evaluators.Default(evaluators.Options{
		AllowMutations: cfg.AllowMutations,
		AllowedTables:  cfg.AllowedTables,
		Store:          a.store,
	}), logger)

	a.gateway = gateway.New(gateway.Config{
		Guard:    guard,
		DB:       db,
		Audit:    a.audit,
		Observer: a.metrics,
		Logger:   logger,
	})
	a.admin = admin.NewService(admin.ServiceConfig{
		Store:    a.store,
		Tables:   db,
		Audit:    a.audit,
		Counter:  a.metrics,
		Defaults: cfg.DefaultPolicy,
		Logger:   logger,
	})
	return a, nil
}

// sync reconciles the permission table with the live schema. Only a failure
// to create the permission table is returned.
func (a *app) sync(ctx context.Context) (*permissions.SyncReport, error) {
	syncer := permissions.NewSyncer(permissions.SyncerConfig{
		Schema:  a.sqlStore,
		Store:   a.store,
		Tables:  a.db,
		Default: a.cfg.DefaultPolicy,
		Logger:  a.logger,
	})
	report, err := syncer.Run(ctx)
	if err != nil {
		return nil, err
	}
	if cached, ok := a.store.(*permissions.CachedStore); ok {
		cached.Invalidate()
	}
	a.logger.Info("permissions synchronised",
		zap.Bool("migrated", report.Migrated),
		zap.Strings("added", report.Added),
		zap.Strings("removed", report.Removed),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

func (a *app) close() {
	a.audit.Close()
	if err := a.db.Close(); err != nil {
		a.logger.Warn("database close failed", zap.Error(err))
	}
}

// buildAuditWriter always writes the local file; ClickHouse is added when a
// DSN is configured and reachable.
func buildAuditWriter(ctx context.Context, cfg config.AuditConfig, logger *zap.Logger) audit.EventWriter {
	writers := audit.MultiWriter{
		audit.NewFileWriter(audit.FileConfig{
			Path:       cfg.LogPath,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}, logger),
	}

	if cfg.ClickHouseDSN == "" {
		logger.Info("no CLICKHOUSE_DSN set, audit entries go to the log file only")
		return writers
	}
	chWriter, err := audit.NewClickHouseWriter(ctx, cfg.ClickHouseDSN, logger)
	if err != nil {
		logger.Warn("clickhouse connection failed, falling back to log writer",
			zap.Error(err),
		)
		return append(writers, audit.NewLogWriter(logger))
	}
	logger.Info("clickhouse audit writer connected")
	return append(writers, chWriter)
}
