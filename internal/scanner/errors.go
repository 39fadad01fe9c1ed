package scanner

import "fmt"

// ValidationError reports a malformed scan request. Not retryable; the
// caller must fix the input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// QuotaExceededError reports that a workspace has exhausted its scan
// allowance. Not retryable; callers should surface an upgrade prompt.
type QuotaExceededError struct {
	WorkspaceID string
	Limit       int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("workspace %s exceeded scan quota (%d)", e.WorkspaceID, e.Limit)
}
