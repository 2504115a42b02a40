package evaluators

import (
	"context"
	"fmt"

	"github.com/triage-ai/palisade/services/sql_guard/internal/engine"
	"github.com/triage-ai/palisade/services/sql_guard/internal/permissions"
)

// TablePermissionEvaluator applies the per-table read/write flags. A table
// without a record is denied.
type TablePermissionEvaluator struct {
	store permissions.Reader
}

func NewTablePermissionEvaluator(store permissions.Reader) *TablePermissionEvaluator {
	return &TablePermissionEvaluator{store: store}
}

func (e *TablePermissionEvaluator) Name() string {
	return "table_permission"
}

func (e *TablePermissionEvaluator) Evaluate(ctx context.Context, req *engine.EvalRequest) (*engine.EvalResult, error) {
	class := req.Classification
	if len(class.Tables) == 0 {
		return engine.Pass(), nil
	}

	records, err := e.store.Lookup(ctx, class.Tables)
	if err != nil {
		return nil, fmt.Errorf("TablePermissionEvaluator.Evaluate: %w", err)
	}

	for _, t := range class.Tables {
		rec, ok := records[t]
		if !ok {
			return engine.Deny(fmt.Sprintf("access denied to table %s", t)), nil
		}
		// A SELECT is judged on can_read alone, even when a keyword such as
		// CREATE appears inside one of its identifiers.
		switch {
		case class.Read:
			if !rec.CanRead {
				return engine.Deny(fmt.Sprintf("access denied to table %s (read access not allowed)", t)), nil
			}
		case class.Mutation:
			if !rec.CanWrite {
				return engine.Deny(fmt.Sprintf("access denied to table %s (write access not allowed)", t)), nil
			}
		}
	}
	return engine.Pass(), nil
}
