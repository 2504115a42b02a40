package engine

import (
	"context"

	"github.com/triage-ai/palisade/services/sql_guard/internal/sqlscan"
)

// Evaluator is one guard rule. The engine runs evaluators in order and the
// first one that triggers decides the verdict.
type Evaluator interface {
	// Name returns the rule's unique identifier.
	Name() string

	// Evaluate runs the rule against the request. A triggered result denies
	// the statement; an error denies it with a generic reason.
	Evaluate(ctx context.Context, req *EvalRequest) (*EvalResult, error)
}

// EvalRequest contains everything a rule may inspect.
type EvalRequest struct {
	Query          string
	Classification sqlscan.Classification
}

// EvalResult is the outcome of a single rule.
type EvalResult struct {
	Triggered bool
	Details   string
}

// Pass is the non-triggered result.
func Pass() *EvalResult {
	return &EvalResult{Triggered: false}
}

// Deny is a triggered result with the given reason.
func Deny(details string) *EvalResult {
	return &EvalResult{Triggered: true, Details: details}
}
