package permissions

import "fmt"

// SyncStep names one reconciliation step.
type SyncStep string

const (
	StepEnsureTable   SyncStep = "ensure_table"
	StepMigrateLegacy SyncStep = "migrate_legacy"
	StepListTables    SyncStep = "list_tables"
	StepInsertMissing SyncStep = "insert_missing"
	StepDeleteStale   SyncStep = "delete_stale"
)

// SyncError is a failed reconciliation step. Only StepEnsureTable is fatal.
type SyncError struct {
	Step  SyncStep
	Table string // empty for schema-level steps
	Err   error
}

func (e *SyncError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("schema sync %s (%s): %v", e.Step, e.Table, e.Err)
	}
	return fmt.Sprintf("schema sync %s: %v", e.Step, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
