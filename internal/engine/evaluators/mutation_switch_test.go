package evaluators

import (
	"context"
	"strings"
	"testing"

	"github.com/triage-ai/palisade/services/sql_guard/internal/engine"
	"github.com/triage-ai/palisade/services/sql_guard/internal/sqlscan"
)

func request(query string) *engine.EvalRequest {
	return &engine.EvalRequest{
		Query:          query,
		Classification: sqlscan.NewKeywordClassifier().Classify(query),
	}
}

func TestMutationSwitch_DisabledDeniesMutation(t *testing.T) {
	e := NewMutationSwitchEvaluator(false)
	result, err := e.Evaluate(context.Background(), request("delete from orders where id = 1"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Triggered {
		t.Fatal("expected triggered for mutation with mutations disabled")
	}
	if !strings.Contains(result.Details, "DELETE") {
		t.Fatalf("expected reason to name the keyword, got %q", result.Details)
	}
}

func TestMutationSwitch_DisabledAllowsRead(t *testing.T) {
	e := NewMutationSwitchEvaluator(false)
	result, err := e.Evaluate(context.Background(), request("SELECT id FROM orders"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Triggered {
		t.Fatalf("expected not triggered, got: %s", result.Details)
	}
}

func TestMutationSwitch_SubstringCountsAsMutation(t *testing.T) {
	e := NewMutationSwitchEvaluator(false)
	result, err := e.Evaluate(context.Background(), request("SELECT created_at FROM orders"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Triggered {
		t.Fatal("expected created_at to read as CREATE")
	}
}

func TestMutationSwitch_EnabledPassesEverything(t *testing.T) {
	e := NewMutationSwitchEvaluator(true)
	result, err := e.Evaluate(context.Background(), request("DROP TABLE orders"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Triggered {
		t.Fatalf("expected not triggered, got: %s", result.Details)
	}
}
