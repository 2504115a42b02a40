package evaluators

import (
	"context"
	"fmt"

	"github.com/triage-ai/palisade/services/sql_guard/internal/engine"
	"github.com/triage-ai/palisade/services/sql_guard/internal/permissions"
)

// InternalTableEvaluator keeps the permissions table itself out of reach.
type InternalTableEvaluator struct{}

func NewInternalTableEvaluator() *InternalTableEvaluator {
	return &InternalTableEvaluator{}
}

func (e *InternalTableEvaluator) Name() string {
	return "internal_table"
}

func (e *InternalTableEvaluator) Evaluate(_ context.Context, req *engine.EvalRequest) (*engine.EvalResult, error) {
	for _, t := range req.Classification.Tables {
		if t == permissions.InternalTable {
			return engine.Deny(fmt.Sprintf("access denied to table %s", permissions.InternalTable)), nil
		}
	}
	return engine.Pass(), nil
}
