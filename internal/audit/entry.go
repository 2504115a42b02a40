// Package audit records every guarded statement and its outcome.
package audit

import "time"

// Status is the outcome of one guarded call.
type Status string

const (
	StatusOK      Status = "OK"
	StatusBlocked Status = "BLOCKED"
	StatusError   Status = "ERROR"
)

// EventWriter is the interface for writing audit entries.
// Write() must NEVER block the caller on I/O failure or propagate errors.
type EventWriter interface {
	Write(entry *Entry)
	Close()
}

// Entry is one append-only audit record.
type Entry struct {
	ID        string
	Timestamp time.Time
	Status    Status
	Query     string // newlines collapsed to single spaces
	Tool      string
	Rule      string
	Reason    string
	Source    string
}
