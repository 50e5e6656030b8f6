// Package branch mirrors the task dependency graph onto git branches:
// one branch per task, based on the branch of the task's last declared
// dependency. The branch graph is therefore a tree even when the task
// graph is not; see CreateTaskBranch.
package branch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aristath/taskdriver/internal/task"
)

// Manager owns the task-to-branch mapping and all git mutations. The
// working tree is a single shared resource and execution is strictly
// sequential, so the Manager is not safe for concurrent use and does
// not try to be.
type Manager struct {
	cfg     Config
	git     Runner
	pr      PROpener
	base    string // the repository's main line, recorded by EnsureRepository
	records map[string]*Record
}

// NewManager creates a branch manager. A nil runner or opener selects
// the real git/gh implementations.
func NewManager(cfg Config, git Runner, pr PROpener) *Manager {
	if git == nil {
		git = ExecRunner{}
	}
	if pr == nil {
		pr = GHOpener{}
	}
	return &Manager{
		cfg:     cfg,
		git:     git,
		pr:      pr,
		records: make(map[string]*Record),
	}
}

// EnsureRepository detects or initializes the repository, records the
// current branch as the base branch, and guarantees a clean working
// tree by auto-stashing any pre-existing uncommitted changes.
// Idempotent: safe to call again after a partial failure.
func (m *Manager) EnsureRepository(ctx context.Context) error {
	if out, err := m.git.Run(ctx, m.cfg.RepoPath, "rev-parse", "--is-inside-work-tree"); err != nil || out != "true" {
		if _, err := m.git.Run(ctx, m.cfg.RepoPath, "init"); err != nil {
			return &RepositoryError{Op: "init", Err: err}
		}
	}

	base, err := m.git.Run(ctx, m.cfg.RepoPath, "branch", "--show-current")
	if err != nil {
		return &RepositoryError{Op: "detect base branch", Err: err}
	}
	if base == "" {
		// Fresh repository without commits; git reports no branch yet.
		base = "main"
	}
	m.base = base

	status, err := m.git.Run(ctx, m.cfg.RepoPath, "status", "--porcelain")
	if err != nil {
		return &RepositoryError{Op: "status", Err: err}
	}
	if status != "" {
		if _, err := m.git.Run(ctx, m.cfg.RepoPath, "stash", "push", "-u", "-m", "taskdriver: auto-stash before session"); err != nil {
			return &RepositoryError{Op: "stash", Err: err}
		}
		log.Printf("WARNING: stashed pre-existing uncommitted changes")
	}

	return nil
}

// BaseBranch returns the repository base branch recorded by
// EnsureRepository.
func (m *Manager) BaseBranch() string { return m.base }

// Record returns the branch record for a task id.
func (m *Manager) Record(taskID string) (*Record, bool) {
	r, ok := m.records[taskID]
	return r, ok
}

// CreateTaskBranch creates and checks out the branch for a task.
//
// Base selection: dependency-free tasks branch from the repository base
// branch. Otherwise the base is the branch recorded for the LAST id in
// the declared dependency list. This is a deliberate tie-break: a task
// may depend on several branches, but git branching is linear, so the
// last-listed dependency wins and earlier ones are assumed reachable
// through it. When the last dependency's branch is missing, strict mode
// fails naming every missing dependency; lenient mode warns and falls
// back to the repository base branch.
func (m *Manager) CreateTaskBranch(ctx context.Context, t *task.Task) (string, error) {
	base := m.base

	if len(t.Dependencies) > 0 {
		last := t.Dependencies[len(t.Dependencies)-1]
		if rec, ok := m.records[last]; ok {
			base = rec.Branch
		} else {
			var missing []string
			for _, depID := range t.Dependencies {
				if _, ok := m.records[depID]; !ok {
					missing = append(missing, depID)
				}
			}
			if m.cfg.Strict {
				return "", &UnresolvedDependencyError{TaskID: t.ID, Missing: missing}
			}
			log.Printf("WARNING: task %q: no branch for dependencies %s, falling back to base branch %q",
				t.ID, strings.Join(missing, ", "), m.base)
		}
	}

	name := m.branchName(t)

	if _, err := m.git.Run(ctx, m.cfg.RepoPath, "checkout", base); err != nil {
		return "", &RepositoryError{Op: "checkout " + base, Err: err}
	}
	if _, err := m.git.Run(ctx, m.cfg.RepoPath, "checkout", "-b", name); err != nil {
		return "", &RepositoryError{Op: "create branch " + name, Err: err}
	}

	m.records[t.ID] = &Record{
		TaskID:    t.ID,
		Branch:    name,
		Base:      base,
		CreatedAt: time.Now(),
	}

	return name, nil
}

// branchName builds the deterministic branch name:
// <prefix><type>-<taskId>-<slug(title)>.
func (m *Manager) branchName(t *task.Task) string {
	return fmt.Sprintf("%s%s-%s-%s", m.cfg.Prefix, t.Type, t.ID, Slug(t.Title, branchSlugLimit))
}

// CommitTaskChanges stages the reported files and commits them with the
// structured message. With no reported files it stages everything.
// After the initial staging it re-checks working-tree status and stages
// anything that appeared since: external tools write files
// asynchronously and commonly race the first detection.
func (m *Manager) CommitTaskChanges(ctx context.Context, t *task.Task, in CommitInput) error {
	if len(in.ChangedFiles) == 0 {
		if _, err := m.git.Run(ctx, m.cfg.RepoPath, "add", "-A"); err != nil {
			return &RepositoryError{Op: "stage all", Err: err}
		}
	} else {
		for _, f := range in.ChangedFiles {
			if _, err := m.git.Run(ctx, m.cfg.RepoPath, "add", "--", f); err != nil {
				log.Printf("WARNING: failed to stage %q: %v", f, err)
			}
		}
		// Late arrivals: anything still dirty gets staged too.
		status, err := m.git.Run(ctx, m.cfg.RepoPath, "status", "--porcelain")
		if err != nil {
			return &RepositoryError{Op: "status", Err: err}
		}
		if hasUnstagedEntries(status) {
			if _, err := m.git.Run(ctx, m.cfg.RepoPath, "add", "-A"); err != nil {
				return &RepositoryError{Op: "stage late files", Err: err}
			}
		}
	}

	staged, err := m.git.Run(ctx, m.cfg.RepoPath, "diff", "--cached", "--name-only")
	if err != nil {
		return &RepositoryError{Op: "diff --cached", Err: err}
	}
	if staged == "" {
		log.Printf("task %q: nothing to commit", t.ID)
		return nil
	}

	if _, err := m.git.Run(ctx, m.cfg.RepoPath, "commit", "-m", commitMessage(t, in)); err != nil {
		return &RepositoryError{Op: "commit", Err: err}
	}

	return nil
}

// hasUnstagedEntries reports whether porcelain status output contains
// entries with unstaged or untracked changes.
func hasUnstagedEntries(status string) bool {
	for _, line := range strings.Split(status, "\n") {
		if len(line) < 2 {
			continue
		}
		if line[1] != ' ' { // worktree column dirty, or "??" untracked
			return true
		}
	}
	return false
}

// CreateTaskPR opens a pull request for the task's branch against its
// recorded base branch. Before opening, any uncommitted changes are
// swept into a catch-all commit so the PR head matches the working
// tree. PR failure is logged, never returned: a missing PR must not
// fail a completed task.
func (m *Manager) CreateTaskPR(ctx context.Context, t *task.Task, in CommitInput, body string) string {
	rec, ok := m.records[t.ID]
	if !ok {
		log.Printf("WARNING: no branch record for task %q, skipping PR", t.ID)
		return ""
	}

	status, err := m.git.Run(ctx, m.cfg.RepoPath, "status", "--porcelain")
	if err == nil && status != "" {
		if _, err := m.git.Run(ctx, m.cfg.RepoPath, "add", "-A"); err == nil {
			msg := fmt.Sprintf("%s(%s): remaining changes [task:%s]", t.Type, commitScope(t), t.ID)
			if _, err := m.git.Run(ctx, m.cfg.RepoPath, "commit", "-m", msg); err != nil {
				log.Printf("WARNING: catch-all commit failed for task %q: %v", t.ID, err)
			}
		}
	}

	m.push(ctx, rec.Branch)

	title := fmt.Sprintf("%s(%s): %s [task:%s]", t.Type, commitScope(t), truncate(t.Title, subjectTitleLimit), t.ID)
	url, err := m.pr.OpenPR(ctx, title, body, rec.Base, rec.Branch)
	if err != nil {
		log.Printf("WARNING: PR creation failed for task %q: %v", t.ID, err)
		return ""
	}

	rec.PRURL = url
	return url
}

// CreateSessionPR opens a summary pull request for the whole session
// against the repository base branch, from whatever branch is currently
// checked out. Failure is logged, never returned.
func (m *Manager) CreateSessionPR(ctx context.Context, sessionID, title, body string) string {
	head, err := m.git.Run(ctx, m.cfg.RepoPath, "branch", "--show-current")
	if err != nil || head == "" || head == m.base {
		return ""
	}

	m.push(ctx, head)

	url, err := m.pr.OpenPR(ctx, title, body, m.base, head)
	if err != nil {
		log.Printf("WARNING: session PR creation failed for session %q: %v", sessionID, err)
		return ""
	}
	return url
}

// push pushes a branch to the configured remote when one exists.
// Best-effort: push failures are logged and swallowed.
func (m *Manager) push(ctx context.Context, branchName string) {
	if m.cfg.Remote == "" {
		return
	}

	remotes, err := m.git.Run(ctx, m.cfg.RepoPath, "remote")
	if err != nil || !containsLine(remotes, m.cfg.Remote) {
		return
	}

	if _, err := m.git.Run(ctx, m.cfg.RepoPath, "push", "-u", m.cfg.Remote, branchName); err != nil {
		log.Printf("WARNING: push of %q failed: %v", branchName, err)
	}
}

func containsLine(out, want string) bool {
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}

// RevertTaskChanges abandons a failed task's branch: checks out the
// repository base branch and force-deletes the task branch. Best-effort
// by contract; the orchestrator must continue to the next task, so
// failures here are logged and never returned.
func (m *Manager) RevertTaskChanges(ctx context.Context, t *task.Task) {
	rec, ok := m.records[t.ID]
	if !ok {
		return
	}

	if _, err := m.git.Run(ctx, m.cfg.RepoPath, "checkout", "-f", m.base); err != nil {
		log.Printf("WARNING: revert of task %q: checkout %q failed: %v", t.ID, m.base, err)
		return
	}
	if _, err := m.git.Run(ctx, m.cfg.RepoPath, "branch", "-D", rec.Branch); err != nil {
		log.Printf("WARNING: revert of task %q: branch delete failed: %v", t.ID, err)
	}

	delete(m.records, t.ID)
}

// CleanupSessionBranches deletes tracked task branches whose PRs exist
// and clears the in-memory branch map. Branches without a PR are kept
// for inspection.
func (m *Manager) CleanupSessionBranches(ctx context.Context) {
	if _, err := m.git.Run(ctx, m.cfg.RepoPath, "checkout", "-f", m.base); err != nil {
		log.Printf("WARNING: cleanup: checkout %q failed: %v", m.base, err)
		return
	}

	for taskID, rec := range m.records {
		if rec.PRURL == "" {
			log.Printf("keeping branch %q (no PR recorded)", rec.Branch)
			continue
		}
		if _, err := m.git.Run(ctx, m.cfg.RepoPath, "branch", "-D", rec.Branch); err != nil {
			log.Printf("WARNING: cleanup of branch %q (task %s) failed: %v", rec.Branch, taskID, err)
		}
	}

	m.records = make(map[string]*Record)
}
