package branch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aristath/taskdriver/internal/task"
)

// fakeGit scripts git responses by full argument string and records
// every call.
type fakeGit struct {
	calls     [][]string
	responses map[string]string
	errs      map[string]error
}

func (f *fakeGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	key := strings.Join(args, " ")
	if err, ok := f.errs[key]; ok {
		return "", err
	}
	if out, ok := f.responses[key]; ok {
		return out, nil
	}
	switch args[0] {
	case "rev-parse":
		return "true", nil
	case "branch":
		if len(args) > 1 && args[1] == "--show-current" {
			return "main", nil
		}
	case "diff":
		return "some/staged/file.go", nil
	}
	return "", nil
}

func (f *fakeGit) called(args ...string) bool {
	want := strings.Join(args, " ")
	for _, c := range f.calls {
		if strings.Join(c, " ") == want {
			return true
		}
	}
	return false
}

func (f *fakeGit) calledPrefix(args ...string) bool {
	want := strings.Join(args, " ")
	for _, c := range f.calls {
		if strings.HasPrefix(strings.Join(c, " "), want) {
			return true
		}
	}
	return false
}

type fakePR struct {
	url  string
	err  error
	base string
	head string
}

func (f *fakePR) OpenPR(ctx context.Context, title, body, base, head string) (string, error) {
	f.base = base
	f.head = head
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func newTestManager(t *testing.T, git *fakeGit, pr *fakePR, strict bool) *Manager {
	t.Helper()
	if git.responses == nil {
		git.responses = map[string]string{}
	}
	if git.errs == nil {
		git.errs = map[string]error{}
	}
	m := NewManager(Config{RepoPath: "/repo", Prefix: "taskdriver/", Strict: strict}, git, pr)
	if err := m.EnsureRepository(context.Background()); err != nil {
		t.Fatalf("EnsureRepository() error = %v", err)
	}
	return m
}

func TestEnsureRepositoryDetectsBase(t *testing.T) {
	git := &fakeGit{}
	m := newTestManager(t, git, &fakePR{}, false)

	if m.BaseBranch() != "main" {
		t.Errorf("BaseBranch() = %q, want main", m.BaseBranch())
	}
}

func TestEnsureRepositoryInitializesMissingRepo(t *testing.T) {
	git := &fakeGit{responses: map[string]string{
		"rev-parse --is-inside-work-tree": "false",
	}}
	newTestManager(t, git, &fakePR{}, false)

	if !git.called("init") {
		t.Error("expected git init for a non-repository path")
	}
}

func TestEnsureRepositoryStashesDirtyTree(t *testing.T) {
	git := &fakeGit{responses: map[string]string{
		"status --porcelain": " M existing.go",
	}}
	newTestManager(t, git, &fakePR{}, false)

	if !git.calledPrefix("stash", "push") {
		t.Error("expected auto-stash of pre-existing changes")
	}
}

func TestCreateTaskBranchFromBase(t *testing.T) {
	git := &fakeGit{}
	m := newTestManager(t, git, &fakePR{}, false)

	name, err := m.CreateTaskBranch(context.Background(), &task.Task{
		ID: "t1", Type: task.TypeFeature, Title: "Add login form",
	})
	if err != nil {
		t.Fatalf("CreateTaskBranch() error = %v", err)
	}

	want := "taskdriver/feature-t1-add-login-form"
	if name != want {
		t.Errorf("branch name = %q, want %q", name, want)
	}
	if !git.called("checkout", "main") {
		t.Error("expected checkout of base branch before branching")
	}
	if !git.called("checkout", "-b", want) {
		t.Error("expected creation of the task branch")
	}

	rec, ok := m.Record("t1")
	if !ok {
		t.Fatal("no record for t1")
	}
	if rec.Base != "main" {
		t.Errorf("record base = %q, want main", rec.Base)
	}
}

func TestCreateTaskBranchUsesLastDependency(t *testing.T) {
	git := &fakeGit{}
	m := newTestManager(t, git, &fakePR{}, false)
	ctx := context.Background()

	if _, err := m.CreateTaskBranch(ctx, &task.Task{ID: "a", Type: task.TypeFeature, Title: "A"}); err != nil {
		t.Fatal(err)
	}
	bBranch, err := m.CreateTaskBranch(ctx, &task.Task{ID: "b", Type: task.TypeFeature, Title: "B"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.CreateTaskBranch(ctx, &task.Task{
		ID: "c", Type: task.TypeFeature, Title: "C", Dependencies: []string{"a", "b"},
	}); err != nil {
		t.Fatal(err)
	}

	rec, _ := m.Record("c")
	if rec.Base != bBranch {
		t.Errorf("c based on %q, want last dependency's branch %q", rec.Base, bBranch)
	}
}

func TestCreateTaskBranchStrictFailsOnMissingDependency(t *testing.T) {
	git := &fakeGit{}
	m := newTestManager(t, git, &fakePR{}, true)

	_, err := m.CreateTaskBranch(context.Background(), &task.Task{
		ID: "c", Type: task.TypeFeature, Title: "C", Dependencies: []string{"a", "b"},
	})

	var depErr *UnresolvedDependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("error = %v, want *UnresolvedDependencyError", err)
	}
	if len(depErr.Missing) != 2 {
		t.Errorf("Missing = %v, want both a and b", depErr.Missing)
	}
}

func TestCreateTaskBranchLenientFallsBackToBase(t *testing.T) {
	git := &fakeGit{}
	m := newTestManager(t, git, &fakePR{}, false)

	if _, err := m.CreateTaskBranch(context.Background(), &task.Task{
		ID: "c", Type: task.TypeFeature, Title: "C", Dependencies: []string{"ghost"},
	}); err != nil {
		t.Fatalf("CreateTaskBranch() error = %v", err)
	}

	rec, _ := m.Record("c")
	if rec.Base != "main" {
		t.Errorf("fallback base = %q, want main", rec.Base)
	}
}

func TestCommitTaskChangesSkipsEmptyDiff(t *testing.T) {
	git := &fakeGit{responses: map[string]string{
		"diff --cached --name-only": "",
	}}
	m := newTestManager(t, git, &fakePR{}, false)

	err := m.CommitTaskChanges(context.Background(), &task.Task{
		ID: "t1", Type: task.TypeFeature, Title: "T",
	}, CommitInput{})
	if err != nil {
		t.Fatalf("CommitTaskChanges() error = %v", err)
	}

	if git.calledPrefix("commit") {
		t.Error("commit ran despite empty staged diff")
	}
}

func TestCommitTaskChangesStagesLateArrivals(t *testing.T) {
	git := &fakeGit{responses: map[string]string{
		"status --porcelain": "?? surprise.go",
	}}
	m := newTestManager(t, git, &fakePR{}, false)
	// EnsureRepository saw the dirty status and stashed; reset calls.
	git.calls = nil

	err := m.CommitTaskChanges(context.Background(), &task.Task{
		ID: "t1", Type: task.TypeFeature, Title: "T",
	}, CommitInput{ChangedFiles: []string{"known.go"}})
	if err != nil {
		t.Fatalf("CommitTaskChanges() error = %v", err)
	}

	if !git.called("add", "--", "known.go") {
		t.Error("expected reported file to be staged explicitly")
	}
	if !git.called("add", "-A") {
		t.Error("expected add -A for files that appeared after detection")
	}
}

func TestCreateTaskPR(t *testing.T) {
	git := &fakeGit{}
	pr := &fakePR{url: "https://example.com/pr/1"}
	m := newTestManager(t, git, pr, false)
	ctx := context.Background()

	tk := &task.Task{ID: "t1", Type: task.TypeFeature, Title: "T"}
	if _, err := m.CreateTaskBranch(ctx, tk); err != nil {
		t.Fatal(err)
	}

	url := m.CreateTaskPR(ctx, tk, CommitInput{}, "body")
	if url != pr.url {
		t.Errorf("CreateTaskPR() = %q, want %q", url, pr.url)
	}
	if pr.base != "main" {
		t.Errorf("PR base = %q, want main", pr.base)
	}

	rec, _ := m.Record("t1")
	if rec.PRURL != pr.url {
		t.Errorf("record PRURL = %q, want %q", rec.PRURL, pr.url)
	}
}

func TestCreateTaskPRFailureReturnsEmpty(t *testing.T) {
	git := &fakeGit{}
	pr := &fakePR{err: errors.New("gh not installed")}
	m := newTestManager(t, git, pr, false)
	ctx := context.Background()

	tk := &task.Task{ID: "t1", Type: task.TypeFeature, Title: "T"}
	if _, err := m.CreateTaskBranch(ctx, tk); err != nil {
		t.Fatal(err)
	}

	if url := m.CreateTaskPR(ctx, tk, CommitInput{}, "body"); url != "" {
		t.Errorf("CreateTaskPR() = %q, want empty on failure", url)
	}
}

func TestRevertTaskChanges(t *testing.T) {
	git := &fakeGit{}
	m := newTestManager(t, git, &fakePR{}, false)
	ctx := context.Background()

	tk := &task.Task{ID: "t1", Type: task.TypeFeature, Title: "T"}
	name, err := m.CreateTaskBranch(ctx, tk)
	if err != nil {
		t.Fatal(err)
	}

	m.RevertTaskChanges(ctx, tk)

	if !git.called("checkout", "-f", "main") {
		t.Error("expected forced checkout of base branch")
	}
	if !git.called("branch", "-D", name) {
		t.Error("expected force-delete of the task branch")
	}
	if _, ok := m.Record("t1"); ok {
		t.Error("record survived revert")
	}
}

func TestCleanupKeepsBranchesWithoutPR(t *testing.T) {
	git := &fakeGit{}
	pr := &fakePR{url: "https://example.com/pr/1"}
	m := newTestManager(t, git, pr, false)
	ctx := context.Background()

	withPR := &task.Task{ID: "t1", Type: task.TypeFeature, Title: "T1"}
	withoutPR := &task.Task{ID: "t2", Type: task.TypeFeature, Title: "T2"}

	prBranch, err := m.CreateTaskBranch(ctx, withPR)
	if err != nil {
		t.Fatal(err)
	}
	m.CreateTaskPR(ctx, withPR, CommitInput{}, "body")
	keptBranch, err := m.CreateTaskBranch(ctx, withoutPR)
	if err != nil {
		t.Fatal(err)
	}

	m.CleanupSessionBranches(ctx)

	if !git.called("branch", "-D", prBranch) {
		t.Errorf("expected branch %q with PR to be deleted", prBranch)
	}
	if git.called("branch", "-D", keptBranch) {
		t.Errorf("branch %q without PR should be kept", keptBranch)
	}
}
