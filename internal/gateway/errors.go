package gateway

import "errors"

// ErrNotMutation is returned by ExecuteWriteQuery for statements that carry
// no mutation keyword.
var ErrNotMutation = errors.New("execute_write_query only accepts INSERT/UPDATE/DELETE/CREATE/DROP/ALTER/TRUNCATE statements, use query_db for reads")

// ErrEmptyQuery is returned for blank statements.
var ErrEmptyQuery = errors.New("sql must not be empty")

// ExecutionError wraps a database failure on a statement the guard allowed.
// Its message is the driver's message, unchanged.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string { return e.Err.Error() }

func (e *ExecutionError) Unwrap() error { return e.Err }
