package evaluators

import (
	"github.com/triage-ai/palisade/services/sql_guard/internal/engine"
	"github.com/triage-ai/palisade/services/sql_guard/internal/permissions"
)

// Options configures the default rule chain.
type Options struct {
	AllowMutations bool
	AllowedTables  []string
	Store          permissions.Reader
}

// Default returns the guard rules in decision order.
func Default(opts Options) []engine.Evaluator {
	return []engine.Evaluator{
		NewMutationSwitchEvaluator(opts.AllowMutations),
		NewInternalTableEvaluator(),
		NewWhitelistEvaluator(opts.AllowedTables),
		NewTablePermissionEvaluator(opts.Store),
	}
}
