package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/taskdriver/internal/task"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndGetTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := &task.Task{
		ID:               "t1",
		Type:             task.TypeBugfix,
		Priority:         8,
		Title:            "Fix crash",
		Requirements:     "Guard against nil",
		EstimatedMinutes: 30,
		Dependencies:     []string{"t0", "base"},
		Tags:             []string{"auth", "urgent"},
		Files:            []string{"a.go", "b.go"},
	}

	if err := store.SaveTask(ctx, in); err != nil {
		t.Fatalf("SaveTask() error = %v", err)
	}

	got, status, err := store.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if status != StatusPending {
		t.Errorf("status = %q, want pending", status)
	}
	if got.Type != task.TypeBugfix || got.Priority != 8 {
		t.Errorf("task = %+v", got)
	}
	if len(got.Dependencies) != 2 || got.Dependencies[0] != "t0" || got.Dependencies[1] != "base" {
		t.Errorf("Dependencies = %v, want declared order [t0 base]", got.Dependencies)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "auth" {
		t.Errorf("Tags = %v", got.Tags)
	}
}

func TestSaveTaskUpsertRewritesDependencies(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tk := &task.Task{ID: "t1", Type: task.TypeFeature, Priority: 5, Title: "T", Dependencies: []string{"a", "b"}}
	if err := store.SaveTask(ctx, tk); err != nil {
		t.Fatal(err)
	}

	tk.Dependencies = []string{"c"}
	if err := store.SaveTask(ctx, tk); err != nil {
		t.Fatal(err)
	}

	got, _, err := store.GetTask(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Dependencies) != 1 || got.Dependencies[0] != "c" {
		t.Errorf("Dependencies after upsert = %v, want [c]", got.Dependencies)
	}
}

func TestUpdateTaskStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tk := &task.Task{ID: "t1", Type: task.TypeFeature, Priority: 5, Title: "T"}
	if err := store.SaveTask(ctx, tk); err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateTaskStatus(ctx, "t1", StatusFailed, "boom"); err != nil {
		t.Fatalf("UpdateTaskStatus() error = %v", err)
	}

	_, status, err := store.GetTask(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusFailed {
		t.Errorf("status = %q, want failed", status)
	}
}

func TestUpdateTaskStatusUnknownTask(t *testing.T) {
	store := newTestStore(t)

	if err := store.UpdateTaskStatus(context.Background(), "ghost", StatusRunning, ""); err == nil {
		t.Error("UpdateTaskStatus() should fail for an unknown task")
	}
}

func TestListTaskStatuses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := store.SaveTask(ctx, &task.Task{ID: id, Type: task.TypeFeature, Priority: 5, Title: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.UpdateTaskStatus(ctx, "b", StatusCompleted, ""); err != nil {
		t.Fatal(err)
	}

	statuses, err := store.ListTaskStatuses(ctx)
	if err != nil {
		t.Fatalf("ListTaskStatuses() error = %v", err)
	}
	if statuses["a"] != StatusPending || statuses["b"] != StatusCompleted {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestWorkerSessionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tk := &task.Task{ID: "t1", Type: task.TypeFeature, Priority: 5, Title: "T"}
	if err := store.SaveTask(ctx, tk); err != nil {
		t.Fatal(err)
	}

	if err := store.SaveWorkerSession(ctx, "t1", "token-1", "claude"); err != nil {
		t.Fatalf("SaveWorkerSession() error = %v", err)
	}
	// Continuation replaces the token.
	if err := store.SaveWorkerSession(ctx, "t1", "token-2", "claude"); err != nil {
		t.Fatal(err)
	}

	token, kind, err := store.GetWorkerSession(ctx, "t1")
	if err != nil {
		t.Fatalf("GetWorkerSession() error = %v", err)
	}
	if token != "token-2" || kind != "claude" {
		t.Errorf("session = (%q, %q), want (token-2, claude)", token, kind)
	}
}

func TestGetWorkerSessionMissing(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.GetWorkerSession(context.Background(), "ghost"); err == nil {
		t.Error("GetWorkerSession() should fail when no session exists")
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := time.Now()
	if err := store.StartSession(ctx, "sess-1", start); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if err := store.FinishSession(ctx, "sess-1", start.Add(time.Hour), 3, 1, 0, false); err != nil {
		t.Fatalf("FinishSession() error = %v", err)
	}
}

func TestRecordBranchAndPR(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tk := &task.Task{ID: "t1", Type: task.TypeFeature, Priority: 5, Title: "T"}
	if err := store.SaveTask(ctx, tk); err != nil {
		t.Fatal(err)
	}

	if err := store.RecordBranch(ctx, "t1", "taskdriver/feature-t1-t"); err != nil {
		t.Fatalf("RecordBranch() error = %v", err)
	}
	if err := store.RecordPR(ctx, "t1", "https://example.com/pr/1"); err != nil {
		t.Fatalf("RecordPR() error = %v", err)
	}
}
