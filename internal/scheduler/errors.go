package scheduler

import (
	"fmt"
	"strings"
)

// UnknownDependencyError reports a dependency id that is not present in
// the loaded task set. Depending on a disabled task also triggers this,
// since disabled tasks never run.
type UnknownDependencyError struct {
	TaskID       string
	DependencyID string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.TaskID, e.DependencyID)
}

// CircularDependencyError carries the full cycle path. Cycle starts and
// ends on the same task id, e.g. [t1 t2 t3 t1].
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Cycle, " -> "))
}

// UnresolvableGraphError is the defensive fallback raised when a level
// pass places no task even though tasks remain. Unreachable while cycle
// detection is correct.
type UnresolvableGraphError struct {
	Remaining []string
}

func (e *UnresolvableGraphError) Error() string {
	return fmt.Sprintf("unresolvable graph: %d tasks could not be placed: %s",
		len(e.Remaining), strings.Join(e.Remaining, ", "))
}
