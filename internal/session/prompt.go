package session

import (
	"fmt"
	"strings"

	"github.com/aristath/taskdriver/internal/task"
)

// taskPrompt renders the worker prompt for a task's first invocation.
func taskPrompt(t *task.Task) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are working on task %s: %s\n", t.ID, t.Title)
	fmt.Fprintf(&b, "Task type: %s\n\n", t.Type)

	if t.Requirements != "" {
		b.WriteString("Requirements:\n")
		b.WriteString(t.Requirements)
		b.WriteString("\n\n")
	}

	if len(t.AcceptanceCriteria) > 0 {
		b.WriteString("Acceptance criteria:\n")
		for _, c := range t.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	if len(t.Files) > 0 {
		b.WriteString("Relevant files:\n")
		for _, f := range t.Files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	b.WriteString("Implement the requirements with focused changes. ")
	b.WriteString("Do not touch unrelated code, and keep the working tree in a committable state.")

	return b.String()
}

// continuationPrompt asks the worker to keep refining a task it has
// already worked on, used when the task's minimum duration has not
// elapsed yet.
func continuationPrompt(t *task.Task) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Continue working on task %s: %s\n\n", t.ID, t.Title)
	b.WriteString("Review the changes you already made against the acceptance criteria")
	if len(t.AcceptanceCriteria) > 0 {
		b.WriteString(":\n")
		for _, c := range t.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	} else {
		b.WriteString(".\n")
	}
	b.WriteString("\nFix anything incomplete, then improve test coverage and documentation for the code you changed.")

	return b.String()
}

// prBody renders the pull request description for a completed task.
func prBody(t *task.Task, output string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## %s\n\n", t.Title)
	if t.Requirements != "" {
		b.WriteString(t.Requirements)
		b.WriteString("\n\n")
	}

	if len(t.AcceptanceCriteria) > 0 {
		b.WriteString("### Acceptance criteria\n")
		for _, c := range t.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	if summary := strings.TrimSpace(output); summary != "" {
		b.WriteString("### Worker summary\n")
		if len(summary) > 2000 {
			summary = summary[:2000] + "..."
		}
		b.WriteString(summary)
		b.WriteString("\n")
	}

	return b.String()
}
