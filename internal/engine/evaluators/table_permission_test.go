package evaluators

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/triage-ai/palisade/services/sql_guard/internal/permissions"
)

type stubReader struct {
	records map[string]permissions.Record
	err     error
	calls   int
}

func (s *stubReader) Lookup(_ context.Context, tables []string) (map[string]permissions.Record, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]permissions.Record)
	for _, t := range tables {
		if rec, ok := s.records[t]; ok {
			out[t] = rec
		}
	}
	return out, nil
}

func newStubReader(recs ...permissions.Record) *stubReader {
	m := make(map[string]permissions.Record, len(recs))
	for _, r := range recs {
		m[r.TableName] = r
	}
	return &stubReader{records: m}
}

func TestTablePermission_NoTablesSkipsStore(t *testing.T) {
	store := newStubReader()
	e := NewTablePermissionEvaluator(store)
	result, err := e.Evaluate(context.Background(), request("SELECT 1"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Triggered {
		t.Fatalf("expected not triggered, got: %s", result.Details)
	}
	if store.calls != 0 {
		t.Fatal("expected no store lookup for a tableless query")
	}
}

func TestTablePermission_MissingRecordDenied(t *testing.T) {
	e := NewTablePermissionEvaluator(newStubReader())
	result, err := e.Evaluate(context.Background(), request("SELECT * FROM ghost"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Triggered || result.Details != "access denied to table ghost" {
		t.Fatalf("expected missing-record deny, got %+v", result)
	}
}

func TestTablePermission_ReadFlag(t *testing.T) {
	store := newStubReader(permissions.Record{TableName: "orders", CanRead: false})
	e := NewTablePermissionEvaluator(store)

	result, err := e.Evaluate(context.Background(), request("SELECT * FROM orders"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Triggered || !strings.Contains(result.Details, "read access") {
		t.Fatalf("expected read deny, got %+v", result)
	}

	store.records["orders"] = permissions.Record{TableName: "orders", CanRead: true}
	result, err = e.Evaluate(context.Background(), request("SELECT * FROM orders"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Triggered {
		t.Fatalf("expected allowed after enabling read, got: %s", result.Details)
	}
}

func TestTablePermission_WriteFlag(t *testing.T) {
	store := newStubReader(permissions.Record{TableName: "orders", CanRead: true, CanWrite: false})
	e := NewTablePermissionEvaluator(store)

	result, err := e.Evaluate(context.Background(), request("DELETE FROM orders WHERE id=1"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Triggered || !strings.Contains(result.Details, "write access") {
		t.Fatalf("expected write deny, got %+v", result)
	}
}

func TestTablePermission_ReadJudgedOnReadFlag(t *testing.T) {
	store := newStubReader(permissions.Record{TableName: "orders", CanRead: true, CanWrite: false})
	e := NewTablePermissionEvaluator(store)

	result, err := e.Evaluate(context.Background(), request("SELECT created_at FROM orders"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Triggered {
		t.Fatalf("expected SELECT to pass on can_read, got: %s", result.Details)
	}
}

func TestTablePermission_StoreErrorPropagates(t *testing.T) {
	e := NewTablePermissionEvaluator(&stubReader{err: errors.New("connection reset")})
	_, err := e.Evaluate(context.Background(), request("SELECT * FROM orders"))
	if err == nil {
		t.Fatal("expected error from store")
	}
}

func TestDefault_Order(t *testing.T) {
	evals := Default(Options{Store: newStubReader()})
	want := []string{"mutation_switch", "internal_table", "whitelist", "table_permission"}
	if len(evals) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(evals))
	}
	for i, ev := range evals {
		if ev.Name() != want[i] {
			t.Fatalf("rule %d: expected %s, got %s", i, want[i], ev.Name())
		}
	}
}
