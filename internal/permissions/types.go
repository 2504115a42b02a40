package permissions

import (
	"fmt"
	"strings"
)

// InternalTable holds the permission records. It never has a record of its
// own and is never a valid query target.
const InternalTable = "mcp_internal_permissions"

// Record is the persisted read/write policy for one table.
type Record struct {
	TableName string `json:"table_name"`
	CanRead   bool   `json:"can_read"`
	CanWrite  bool   `json:"can_write"`
}

// Policy is the pair of flags applied to newly discovered tables.
type Policy struct {
	CanRead  bool `yaml:"can_read"`
	CanWrite bool `yaml:"can_write"`
}

// DefaultPolicy is read-only access.
func DefaultPolicy() Policy {
	return Policy{CanRead: true, CanWrite: false}
}

// Kind selects which flag a toggle targets.
type Kind string

const (
	KindRead  Kind = "read"
	KindWrite Kind = "write"
)

// ParseKind accepts "read" or "write", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindRead:
		return KindRead, nil
	case KindWrite:
		return KindWrite, nil
	}
	return "", fmt.Errorf("invalid permission type %q: must be \"read\" or \"write\"", s)
}

// column maps a Kind to its column. Only these two constants ever reach SQL text.
func (k Kind) column() string {
	if k == KindWrite {
		return "can_write"
	}
	return "can_read"
}

// NormalizeName lowercases and trims a table name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (p Policy) record(table string) Record {
	return Record{TableName: table, CanRead: p.CanRead, CanWrite: p.CanWrite}
}
