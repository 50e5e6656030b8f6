package branch

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes git commands in a directory. The indirection keeps
// base-selection and commit logic testable without a real repository.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecRunner shells out to the git toolchain.
type ExecRunner struct{}

// Run executes git with the given arguments and returns trimmed
// combined output. Non-zero exit returns an error carrying the output.
func (ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(output)),
			fmt.Errorf("git %s failed: %w (output: %s)", strings.Join(args, " "), err, string(output))
	}
	return strings.TrimSpace(string(output)), nil
}

// PROpener opens a pull request and returns its URL. PR failures are
// never fatal to task completion; callers log and continue.
type PROpener interface {
	OpenPR(ctx context.Context, title, body, base, head string) (string, error)
}

// GHOpener opens pull requests through the gh CLI.
type GHOpener struct{}

// OpenPR runs `gh pr create` against the given base branch. The CLI
// prints the PR URL on success.
func (GHOpener) OpenPR(ctx context.Context, title, body, base, head string) (string, error) {
	args := []string{"pr", "create",
		"--title", title,
		"--body", body,
		"--base", base,
		"--head", head,
	}

	cmd := exec.CommandContext(ctx, "gh", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to create PR: %w\n%s", err, string(output))
	}

	return strings.TrimSpace(string(output)), nil
}
