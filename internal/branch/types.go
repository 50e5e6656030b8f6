package branch

import (
	"fmt"
	"strings"
	"time"
)

// Record maps a task to the branch created for it. Owned exclusively by
// the Manager; mutated only on branch creation and PR open.
type Record struct {
	TaskID    string
	Branch    string
	Base      string
	CreatedAt time.Time
	PRURL     string
}

// Config configures the branch manager.
type Config struct {
	RepoPath string
	Prefix   string // prepended to every generated branch name
	Remote   string // push target; empty disables pushing
	Strict   bool   // missing dependency branches fail instead of falling back
}

// RepositoryError wraps unrecoverable git failures.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository error during %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// UnresolvedDependencyError reports every dependency whose branch could
// not be found when selecting a base under strict mode.
type UnresolvedDependencyError struct {
	TaskID  string
	Missing []string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("task %q: no branch recorded for dependencies: %s",
		e.TaskID, strings.Join(e.Missing, ", "))
}
