package task

import (
	"fmt"
	"regexp"
)

// Type categorizes a task for branch naming and in-level ordering.
type Type string

const (
	TypeBugfix   Type = "bugfix"
	TypeFeature  Type = "feature"
	TypeRefactor Type = "refactor"
	TypeTest     Type = "test"
	TypeDocs     Type = "docs"
	TypeChore    Type = "chore"
)

// typeWeight is the fixed tie-break table used when two tasks share the
// same priority. Higher weight sorts earlier. Explicit priority always
// wins over this table.
var typeWeight = map[Type]int{
	TypeBugfix:   6,
	TypeFeature:  5,
	TypeRefactor: 4,
	TypeTest:     3,
	TypeDocs:     2,
	TypeChore:    1,
}

// Weight returns the ordering weight for a task type. Unknown types
// sort last.
func (t Type) Weight() int {
	return typeWeight[t]
}

// Known reports whether the type is one of the declared task types.
func (t Type) Known() bool {
	_, ok := typeWeight[t]
	return ok
}

// Task is a declared unit of automated work.
type Task struct {
	ID                 string   `json:"id"`
	Type               Type     `json:"type"`
	Priority           int      `json:"priority"` // 1 (lowest) .. 10 (highest)
	Title              string   `json:"title"`
	Requirements       string   `json:"requirements,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`

	// EstimatedMinutes is the estimated duration. It doubles as the
	// minimum duration: if the worker returns earlier, the executor
	// re-invokes it with a continuation prompt.
	EstimatedMinutes int `json:"estimated_minutes,omitempty"`

	Dependencies []string `json:"dependencies,omitempty"` // declared order matters for branch base selection
	Tags         []string `json:"tags,omitempty"`
	Files        []string `json:"files,omitempty"` // path globs the task intends to modify
	Enabled      *bool    `json:"enabled,omitempty"`
}

// IsEnabled returns the enabled flag, defaulting to true when unset.
func (t *Task) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Validate checks a single task's fields.
func (t *Task) Validate() error {
	if !idPattern.MatchString(t.ID) {
		return fmt.Errorf("task id %q does not match %s", t.ID, idPattern.String())
	}
	if !t.Type.Known() {
		return fmt.Errorf("task %q has unknown type %q", t.ID, t.Type)
	}
	if t.Priority < 1 || t.Priority > 10 {
		return fmt.Errorf("task %q priority %d out of range 1..10", t.ID, t.Priority)
	}
	if t.Title == "" {
		return fmt.Errorf("task %q has no title", t.ID)
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without sharing slices.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.AcceptanceCriteria != nil {
		cp.AcceptanceCriteria = append([]string(nil), t.AcceptanceCriteria...)
	}
	if t.Dependencies != nil {
		cp.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.Tags != nil {
		cp.Tags = append([]string(nil), t.Tags...)
	}
	if t.Files != nil {
		cp.Files = append([]string(nil), t.Files...)
	}
	if t.Enabled != nil {
		v := *t.Enabled
		cp.Enabled = &v
	}
	return &cp
}
