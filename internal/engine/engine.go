package engine

import (
	"context"

	"github.com/triage-ai/palisade/services/sql_guard/internal/sqlscan"
	"go.uber.org/zap"
)

// Verdict is the guard's decision for one statement.
type Verdict struct {
	Allowed  bool
	Reason   string // non-empty iff denied
	Rule     string // name of the deciding rule, empty when allowed
	Tables   []string
	Mutation bool
}

// GuardEngine classifies a statement once and runs the ordered rules against it.
type GuardEngine struct {
	classifier sqlscan.Classifier
	evaluators []Evaluator
	logger     *zap.Logger
}

// NewGuardEngine creates an engine with the given classifier and rules.
// Rule order is decision order.
func NewGuardEngine(classifier sqlscan.Classifier, evaluators []Evaluator, logger *zap.Logger) *GuardEngine {
	if classifier == nil {
		classifier = sqlscan.NewKeywordClassifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardEngine{
		classifier: classifier,
		evaluators: evaluators,
		logger:     logger,
	}
}

// Evaluate decides whether query may run. It has no side effects beyond the
// permission reads performed by the rules and log output.
func (e *GuardEngine) Evaluate(ctx context.Context, query string) Verdict {
	class := e.classifier.Classify(query)
	req := &EvalRequest{Query: query, Classification: class}

	verdict := Verdict{
		Allowed:  true,
		Tables:   class.Tables,
		Mutation: class.Mutation,
	}

	for _, ev := range e.evaluators {
		result, err := ev.Evaluate(ctx, req)
		if err != nil {
			e.logger.Error("guard rule failed, denying",
				zap.String("rule", ev.Name()),
				zap.Error(err),
			)
			verdict.Allowed = false
			verdict.Rule = ev.Name()
			verdict.Reason = InternalErrorReason
			return verdict
		}
		if result == nil || !result.Triggered {
			continue
		}
		verdict.Allowed = false
		verdict.Rule = ev.Name()
		verdict.Reason = result.Details
		e.logger.Debug("guard denied query",
			zap.String("rule", ev.Name()),
			zap.String("reason", result.Details),
			zap.Strings("tables", class.Tables),
		)
		return verdict
	}

	if class.HasComments {
		e.logger.Warn("allowed query contains SQL comments",
			zap.Strings("tables", class.Tables),
		)
	}
	return verdict
}
