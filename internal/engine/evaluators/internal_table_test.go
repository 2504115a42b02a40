package evaluators

import (
	"context"
	"testing"
)

func TestInternalTable_Denied(t *testing.T) {
	e := NewInternalTableEvaluator()
	for _, q := range []string{
		"SELECT * FROM mcp_internal_permissions",
		`UPDATE "MCP_INTERNAL_PERMISSIONS" SET can_write = 1`,
		"SELECT * FROM orders JOIN mcp_internal_permissions p ON 1=1",
	} {
		result, err := e.Evaluate(context.Background(), request(q))
		if err != nil {
			t.Fatal(err)
		}
		if !result.Triggered {
			t.Fatalf("expected triggered for %q", q)
		}
	}
}

func TestInternalTable_OtherTablesPass(t *testing.T) {
	e := NewInternalTableEvaluator()
	result, err := e.Evaluate(context.Background(), request("SELECT * FROM orders"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Triggered {
		t.Fatalf("expected not triggered, got: %s", result.Details)
	}
}
