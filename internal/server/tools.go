package server

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// toolDef describes one tool exposed to the agent.
type toolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
}

var sqlArgSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"sql": map[string]any{"type": "string", "minLength": float64(1), "description": "The complete SQL statement"},
	},
	"required":             []any{"sql"},
	"additionalProperties": false,
}

var noArgSchema = map[string]any{
	"type":                 "object",
	"properties":           map[string]any{},
	"additionalProperties": false,
}

var toolDefs = []toolDef{
	{
		Name:        "query_db",
		Description: "Run a SQL statement (SELECT, or a modification when allowed). Every statement goes through the table access guard.",
		InputSchema: sqlArgSchema,
	},
	{
		Name:        "list_tables",
		Description: "List the tables available in the connected database.",
		InputSchema: noArgSchema,
	},
	{
		Name:        "admin_list_permissions",
		Description: "List every table with its can_read and can_write flags (admin).",
		InputSchema: noArgSchema,
	},
	{
		Name:        "admin_toggle_permission",
		Description: "Set the read or write permission of one table (admin). permission_type: 'read' | 'write'.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"table_name":      map[string]any{"type": "string"},
				"permission_type": map[string]any{"type": "string", "enum": []any{"read", "write"}},
				"status":          map[string]any{"type": "boolean"},
			},
			"required":             []any{"table_name", "permission_type", "status"},
			"additionalProperties": false,
		},
	},
	{
		Name:        "execute_write_query",
		Description: "Run a write statement (INSERT/UPDATE/DELETE/CREATE/DROP/ALTER/TRUNCATE) through the table access guard.",
		InputSchema: sqlArgSchema,
	},
}

// argValidator checks raw tool arguments against each tool's input schema.
type argValidator struct {
	schemas map[string]*jsonschema.Schema
}

func newArgValidator(defs []toolDef) (*argValidator, error) {
	c := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema, len(defs))
	for _, d := range defs {
		url := d.Name + ".json"
		if err := c.AddResource(url, d.InputSchema); err != nil {
			return nil, fmt.Errorf("newArgValidator: %s: %w", d.Name, err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("newArgValidator: %s: %w", d.Name, err)
		}
		schemas[d.Name] = sch
	}
	return &argValidator{schemas: schemas}, nil
}

// validate decodes raw and checks it against the tool's schema. Missing
// arguments are treated as an empty object.
func (v *argValidator) validate(tool string, raw json.RawMessage) error {
	sch, ok := v.schemas[tool]
	if !ok {
		return fmt.Errorf("unknown tool %q", tool)
	}
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}

	var args any
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %v", err)
	}
	if err := sch.Validate(args); err != nil {
		return fmt.Errorf("invalid arguments: %v", err)
	}
	return nil
}
