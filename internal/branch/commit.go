package branch

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/taskdriver/internal/task"
)

// CommitInput carries the per-commit details the message format needs.
// Sequence/Total are 1-based for multi-commit tasks and zero for tasks
// that commit once.
type CommitInput struct {
	ChangedFiles []string
	Sequence     int
	Total        int
	Duration     time.Duration
	SessionID    string
	Status       string
}

const (
	subjectTitleLimit = 50
	requirementsLimit = 400
	changedFilesLimit = 20
	branchSlugLimit   = 30
)

// commitMessage renders the structured commit message. The format is
// load-bearing: external tooling greps history for the subject tag and
// the footer block, so it must not drift.
//
//	<type>(<scope>): <title> [task:<id>] [<n>/<total>]
//
//	<requirements>
//
//	Acceptance criteria:
//	- ...
//
//	Changed files (<n>):
//	- ...
//
//	Task-ID: ... footer block
func commitMessage(t *task.Task, in CommitInput) string {
	var b strings.Builder

	subject := fmt.Sprintf("%s(%s): %s [task:%s]",
		t.Type, commitScope(t), truncate(t.Title, subjectTitleLimit), t.ID)
	if in.Total > 1 {
		subject += fmt.Sprintf(" [%d/%d]", in.Sequence, in.Total)
	}
	b.WriteString(subject)
	b.WriteString("\n")

	if t.Requirements != "" {
		b.WriteString("\n")
		b.WriteString(truncate(t.Requirements, requirementsLimit))
		b.WriteString("\n")
	}

	if len(t.AcceptanceCriteria) > 0 {
		b.WriteString("\nAcceptance criteria:\n")
		for _, c := range t.AcceptanceCriteria {
			b.WriteString("- " + c + "\n")
		}
	}

	if len(in.ChangedFiles) > 0 {
		b.WriteString(fmt.Sprintf("\nChanged files (%d):\n", len(in.ChangedFiles)))
		for i, f := range in.ChangedFiles {
			if i == changedFilesLimit {
				b.WriteString(fmt.Sprintf("- ... and %d more\n", len(in.ChangedFiles)-changedFilesLimit))
				break
			}
			b.WriteString("- " + f + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString("Task-ID: " + t.ID + "\n")
	b.WriteString("Task-Title: " + t.Title + "\n")
	b.WriteString("Task-Type: " + string(t.Type) + "\n")
	b.WriteString("Task-Status: " + in.Status + "\n")
	b.WriteString(fmt.Sprintf("Task-Duration: %d\n", int(in.Duration.Seconds())))
	b.WriteString("Task-Session: " + in.SessionID + "\n")
	b.WriteString("Task-Date: " + time.Now().UTC().Format(time.RFC3339) + "\n")

	return b.String()
}

// commitScope picks the subject scope: the task's first tag when one is
// declared, otherwise "auto".
func commitScope(t *task.Task) string {
	if len(t.Tags) > 0 {
		return t.Tags[0]
	}
	return "auto"
}

// Slug converts a title into a branch-safe fragment: lowercase,
// non-alphanumerics collapsed into single hyphens, length-limited.
func Slug(s string, limit int) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
		if b.Len() >= limit {
			break
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}
