package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{{"serve"}, {"sync"}, {"permissions", "list"}, {"permissions", "set"}} {
		cmd, _, err := root.Find(path)
		if err != nil {
			t.Fatalf("%v: %v", path, err)
		}
		if cmd.Name() != path[len(path)-1] {
			t.Fatalf("%v resolved to %s", path, cmd.Name())
		}
	}
	if root.Flags().Lookup("transport") == nil {
		t.Fatal("root command must accept serve flags")
	}
}

func TestPermissionsSet_RejectsBadStatus(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"permissions", "set", "orders", "read", "maybe"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid status") {
		t.Fatalf("expected invalid status error, got %v", err)
	}
}

func TestServe_RejectsUnknownTransport(t *testing.T) {
	t.Chdir(t.TempDir())
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve", "--transport", "carrier-pigeon"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown transport") {
		t.Fatalf("expected unknown transport error, got %v", err)
	}
}

func TestMustBuildLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		if mustBuildLogger(level) == nil {
			t.Fatalf("nil logger for level %s", level)
		}
	}
}
