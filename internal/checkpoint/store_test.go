package checkpoint

import (
	"testing"
	"time"
)

func testSnapshot(sessionID string, ts time.Time) Snapshot {
	return Snapshot{
		Timestamp:      ts,
		SessionID:      sessionID,
		CurrentTask:    "t2",
		CompletedTasks: []string{"t1"},
		FailedTasks: []FailedTask{
			{ID: "t0", Error: "worker reported failure", Timestamp: ts},
		},
		ElapsedMillis: 90_000,
		ResourceUsage: &ResourceSample{
			Timestamp:      ts,
			HeapAllocBytes: 1 << 20,
			Goroutines:     12,
		},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	snap := testSnapshot("sess-1", time.Now().Truncate(time.Millisecond))
	id, err := store.Write(snap)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := store.Read(id)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.SessionID != snap.SessionID {
		t.Errorf("SessionID = %q, want %q", got.SessionID, snap.SessionID)
	}
	if got.CurrentTask != "t2" {
		t.Errorf("CurrentTask = %q, want t2", got.CurrentTask)
	}
	if len(got.CompletedTasks) != 1 || got.CompletedTasks[0] != "t1" {
		t.Errorf("CompletedTasks = %v, want [t1]", got.CompletedTasks)
	}
	if len(got.FailedTasks) != 1 || got.FailedTasks[0].ID != "t0" {
		t.Errorf("FailedTasks = %v, want one entry for t0", got.FailedTasks)
	}
	if got.ElapsedMillis != 90_000 {
		t.Errorf("ElapsedMillis = %d, want 90000", got.ElapsedMillis)
	}
	if got.ResourceUsage == nil || got.ResourceUsage.Goroutines != 12 {
		t.Errorf("ResourceUsage = %+v, want 12 goroutines", got.ResourceUsage)
	}
}

func TestWriteIsAppendOnly(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	base := time.Now()
	for i := 0; i < 3; i++ {
		snap := testSnapshot("sess-1", base.Add(time.Duration(i)*time.Second))
		if _, err := store.Write(snap); err != nil {
			t.Fatalf("Write() #%d error = %v", i, err)
		}
	}

	ids, err := store.List("sess-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("List() returned %d checkpoints, want 3", len(ids))
	}
}

func TestListFiltersBySession(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	now := time.Now()
	if _, err := store.Write(testSnapshot("sess-a", now)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Write(testSnapshot("sess-b", now)); err != nil {
		t.Fatal(err)
	}

	ids, err := store.List("sess-a")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("List(sess-a) returned %d ids, want 1: %v", len(ids), ids)
	}
}

func TestLatest(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	base := time.Now()
	for i, taskID := range []string{"t1", "t2", "t3"} {
		snap := testSnapshot("sess-1", base.Add(time.Duration(i)*time.Second))
		snap.CurrentTask = taskID
		if _, err := store.Write(snap); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := store.Latest("sess-1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.CurrentTask != "t3" {
		t.Errorf("Latest().CurrentTask = %q, want t3", latest.CurrentTask)
	}
}

func TestLatestNoCheckpoints(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if _, err := store.Latest("missing"); err == nil {
		t.Error("Latest() on empty store should fail")
	}
}
