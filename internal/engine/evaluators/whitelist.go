package evaluators

import (
	"context"
	"strings"

	"github.com/triage-ai/palisade/services/sql_guard/internal/engine"
	"github.com/triage-ai/palisade/services/sql_guard/internal/permissions"
)

// WhitelistEvaluator restricts statements to a static table set. An empty set
// disables the check.
type WhitelistEvaluator struct {
	allowed map[string]struct{}
}

func NewWhitelistEvaluator(tables []string) *WhitelistEvaluator {
	allowed := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		if name := permissions.NormalizeName(t); name != "" {
			allowed[name] = struct{}{}
		}
	}
	return &WhitelistEvaluator{allowed: allowed}
}

func (e *WhitelistEvaluator) Name() string {
	return "whitelist"
}

func (e *WhitelistEvaluator) Evaluate(_ context.Context, req *engine.EvalRequest) (*engine.EvalResult, error) {
	if len(e.allowed) == 0 {
		return engine.Pass(), nil
	}

	var unauthorized []string
	for _, t := range req.Classification.Tables {
		if _, ok := e.allowed[t]; !ok {
			unauthorized = append(unauthorized, t)
		}
	}
	if len(unauthorized) > 0 {
		return engine.Deny("query references unauthorized tables: " + strings.Join(unauthorized, ", ")), nil
	}
	return engine.Pass(), nil
}
