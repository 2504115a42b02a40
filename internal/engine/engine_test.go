package engine

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// stubEvaluator is a test helper that returns a fixed result.
type stubEvaluator struct {
	name   string
	result *EvalResult
	err    error
	calls  int
}

func (s *stubEvaluator) Name() string { return s.name }
func (s *stubEvaluator) Evaluate(_ context.Context, _ *EvalRequest) (*EvalResult, error) {
	s.calls++
	return s.result, s.err
}

func TestEngine_AllowsWhenNoRuleTriggers(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	a := &stubEvaluator{name: "a", result: Pass()}
	b := &stubEvaluator{name: "b", result: Pass()}

	eng := NewGuardEngine(nil, []Evaluator{a, b}, logger)
	v := eng.Evaluate(context.Background(), "SELECT * FROM users")

	if !v.Allowed {
		t.Fatalf("expected allowed, got deny: %s", v.Reason)
	}
	if v.Reason != "" || v.Rule != "" {
		t.Fatalf("allowed verdict must not carry a reason, got %q/%q", v.Rule, v.Reason)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("expected each rule to run once, got %d and %d", a.calls, b.calls)
	}
	if len(v.Tables) != 1 || v.Tables[0] != "users" {
		t.Fatalf("expected tables [users], got %v", v.Tables)
	}
}

func TestEngine_FirstTriggeredRuleWins(t *testing.T) {
	first := &stubEvaluator{name: "first", result: Deny("first reason")}
	second := &stubEvaluator{name: "second", result: Deny("second reason")}

	eng := NewGuardEngine(nil, []Evaluator{first, second}, zap.NewNop())
	v := eng.Evaluate(context.Background(), "DELETE FROM users")

	if v.Allowed {
		t.Fatal("expected deny")
	}
	if v.Rule != "first" || v.Reason != "first reason" {
		t.Fatalf("expected first rule to decide, got %s: %s", v.Rule, v.Reason)
	}
	if second.calls != 0 {
		t.Fatal("rules after the deciding one must not run")
	}
	if !v.Mutation {
		t.Fatal("expected mutation flag on verdict")
	}
}

func TestEngine_RuleErrorFailsClosed(t *testing.T) {
	broken := &stubEvaluator{name: "broken", err: errors.New("store offline")}
	after := &stubEvaluator{name: "after", result: Pass()}

	eng := NewGuardEngine(nil, []Evaluator{broken, after}, zap.NewNop())
	v := eng.Evaluate(context.Background(), "SELECT 1 FROM t")

	if v.Allowed {
		t.Fatal("expected deny on rule error")
	}
	if v.Reason != InternalErrorReason {
		t.Fatalf("expected generic reason, got %q", v.Reason)
	}
	if after.calls != 0 {
		t.Fatal("evaluation must stop at the failing rule")
	}
}

func TestEngine_NilResultIsPass(t *testing.T) {
	eng := NewGuardEngine(nil, []Evaluator{&stubEvaluator{name: "nil"}}, nil)
	v := eng.Evaluate(context.Background(), "SELECT 1")
	if !v.Allowed {
		t.Fatalf("expected allowed, got %s", v.Reason)
	}
}

func TestVerdict_Err(t *testing.T) {
	if err := (Verdict{Allowed: true}).Err(); err != nil {
		t.Fatalf("expected nil error for allowed verdict, got %v", err)
	}

	err := Verdict{Rule: "whitelist", Reason: "nope"}.Err()
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected *DeniedError, got %T", err)
	}
	if denied.Rule != "whitelist" || denied.Error() != "nope" {
		t.Fatalf("unexpected denied error: %+v", denied)
	}
}
