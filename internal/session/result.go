package session

import (
	"fmt"
	"strings"
	"time"
)

// Result is the final outcome of a session run.
type Result struct {
	SessionID string
	Success   bool
	Completed []string
	Failed    []Failure
	Skipped   []string
	Elapsed   time.Duration

	// ImprovementRan is true when the automatic improvement pass was
	// attempted after all declared tasks completed.
	ImprovementRan bool
}

// Report renders a plain-text summary of the session.
func (r *Result) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Session %s finished in %s\n", r.SessionID, r.Elapsed.Round(time.Second))
	if r.Success {
		b.WriteString("Status: success\n")
	} else {
		b.WriteString("Status: failed\n")
	}

	fmt.Fprintf(&b, "\nCompleted (%d):\n", len(r.Completed))
	for _, id := range r.Completed {
		fmt.Fprintf(&b, "  %s\n", id)
	}

	fmt.Fprintf(&b, "\nFailed (%d):\n", len(r.Failed))
	for _, f := range r.Failed {
		fmt.Fprintf(&b, "  %s [%s]: %s\n", f.TaskID, f.Classification, f.Message)
	}

	fmt.Fprintf(&b, "\nSkipped (%d):\n", len(r.Skipped))
	for _, id := range r.Skipped {
		fmt.Fprintf(&b, "  %s\n", id)
	}

	if r.ImprovementRan {
		b.WriteString("\nAutomatic improvement pass was run.\n")
	}

	return b.String()
}
