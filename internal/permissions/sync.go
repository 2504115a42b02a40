package permissions

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// SchemaStore owns the DDL of InternalTable.
type SchemaStore interface {
	EnsureTable(ctx context.Context) error
	MigrateLegacy(ctx context.Context) (bool, error)
}

// TableLister enumerates live, non-system tables.
type TableLister interface {
	ListTables(ctx context.Context, exclude ...string) ([]string, error)
}

// Syncer reconciles the permission records against the live schema.
type Syncer struct {
	schema   SchemaStore
	store    Store
	tables   TableLister
	defaults Policy
	logger   *zap.Logger
}

// SyncerConfig configures the Syncer.
type SyncerConfig struct {
	Schema  SchemaStore
	Store   Store
	Tables  TableLister
	Default Policy
	Logger  *zap.Logger
}

// NewSyncer creates a new Syncer.
func NewSyncer(cfg SyncerConfig) *Syncer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		schema:   cfg.Schema,
		store:    cfg.Store,
		tables:   cfg.Tables,
		defaults: cfg.Default,
		logger:   logger,
	}
}

// SyncReport summarizes one reconciliation.
type SyncReport struct {
	Migrated bool
	Added    []string
	Removed  []string
	Errors   []error // non-fatal step failures
}

// Run performs the reconciliation. Only a failure to create InternalTable is
// returned as an error; later step failures are logged and collected in the
// report.
func (s *Syncer) Run(ctx context.Context) (*SyncReport, error) {
	report := &SyncReport{}

	if err := s.schema.EnsureTable(ctx); err != nil {
		return report, &SyncError{Step: StepEnsureTable, Err: err}
	}

	migrated, err := s.schema.MigrateLegacy(ctx)
	if err != nil {
		s.fail(report, &SyncError{Step: StepMigrateLegacy, Err: err})
	} else if migrated {
		report.Migrated = true
		s.logger.Info("migrated legacy is_allowed column to can_read/can_write")
	}

	live, err := s.tables.ListTables(ctx, InternalTable)
	if err != nil {
		s.fail(report, &SyncError{Step: StepListTables, Err: err})
		return report, nil
	}

	existing, err := s.store.List(ctx)
	if err != nil {
		s.fail(report, &SyncError{Step: StepListTables, Err: err})
		return report, nil
	}
	known := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		known[NormalizeName(r.TableName)] = struct{}{}
	}
	liveSet := make(map[string]struct{}, len(live))

	for _, t := range live {
		t = NormalizeName(t)
		liveSet[t] = struct{}{}
		if _, ok := known[t]; ok {
			continue
		}
		if err := s.store.Insert(ctx, s.defaults.record(t)); err != nil {
			s.fail(report, &SyncError{Step: StepInsertMissing, Table: t, Err: err})
			continue
		}
		report.Added = append(report.Added, t)
		s.logger.Info("added permission record",
			zap.String("table", t),
			zap.Bool("can_read", s.defaults.CanRead),
			zap.Bool("can_write", s.defaults.CanWrite),
		)
	}

	for _, r := range existing {
		t := NormalizeName(r.TableName)
		if _, ok := liveSet[t]; ok {
			continue
		}
		if err := s.store.Delete(ctx, t); err != nil {
			s.fail(report, &SyncError{Step: StepDeleteStale, Table: t, Err: err})
			continue
		}
		report.Removed = append(report.Removed, t)
		s.logger.Info("removed stale permission record", zap.String("table", t))
	}

	if inv, ok := s.store.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}

	s.logger.Info("permission sync complete",
		zap.Int("live_tables", len(live)),
		zap.Int("added", len(report.Added)),
		zap.Int("removed", len(report.Removed)),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

func (s *Syncer) fail(report *SyncReport, err *SyncError) {
	report.Errors = append(report.Errors, err)
	s.logger.Error("permission sync step failed",
		zap.String("step", string(err.Step)),
		zap.String("table", err.Table),
		zap.Error(err.Err),
	)
}

// IsFatal reports whether err came from a step that must abort startup.
func IsFatal(err error) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Step == StepEnsureTable
}
