package admin

import "fmt"

// ValidationError reports malformed admin input. It is raised before the
// permission store is touched.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// NotFoundError reports a toggle against a table missing from the live schema.
type NotFoundError struct {
	Table string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("table %q does not exist in the database, action cancelled", e.Table)
}
