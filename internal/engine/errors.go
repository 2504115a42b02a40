package engine

// InternalErrorReason is the deny reason when a rule cannot reach its data.
const InternalErrorReason = "internal security verification error"

// DeniedError carries a deny verdict across an error return.
type DeniedError struct {
	Rule   string
	Reason string
}

func (e *DeniedError) Error() string { return e.Reason }

// Err returns a *DeniedError for a denied verdict and nil otherwise.
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	return &DeniedError{Rule: v.Rule, Reason: v.Reason}
}
