package evaluators

import (
	"context"
	"fmt"

	"github.com/triage-ai/palisade/services/sql_guard/internal/engine"
	"github.com/triage-ai/palisade/services/sql_guard/internal/sqlscan"
)

// MutationSwitchEvaluator denies every mutation while mutations are disabled
// process-wide.
type MutationSwitchEvaluator struct {
	allowMutations bool
}

func NewMutationSwitchEvaluator(allowMutations bool) *MutationSwitchEvaluator {
	return &MutationSwitchEvaluator{allowMutations: allowMutations}
}

func (e *MutationSwitchEvaluator) Name() string {
	return "mutation_switch"
}

func (e *MutationSwitchEvaluator) Evaluate(_ context.Context, req *engine.EvalRequest) (*engine.EvalResult, error) {
	if e.allowMutations || !req.Classification.Mutation {
		return engine.Pass(), nil
	}
	return engine.Deny(fmt.Sprintf(
		"mutation queries are disabled: ALLOW_MUTATIONS is 'false' (keyword: %s, statement type: %s)",
		req.Classification.MutationKeyword, sqlscan.FirstKeyword(req.Query),
	)), nil
}
