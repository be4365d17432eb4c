package executor

import "fmt"

// SkippedError is the diagnostic recorded for a node that never ran.
type SkippedError struct {
	// Upstream is the label of the failed ancestor, if any.
	Upstream string
	// Reason explains a skip that was not caused by a failure.
	Reason string
}

func (e *SkippedError) Error() string {
	if e.Upstream != "" {
		return fmt.Sprintf("skipped due to upstream failure of '%s'", e.Upstream)
	}
	return "skipped: " + e.Reason
}
