// Package checkpoint persists immutable, timestamped snapshots of
// session progress for crash forensics and partial resume. Writes are
// append-only: no checkpoint ever overwrites a prior one.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FailedTask records one task failure inside a snapshot.
type FailedTask struct {
	ID        string    `json:"id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// ResourceSample is the last background resource reading, if any.
type ResourceSample struct {
	Timestamp        time.Time `json:"timestamp"`
	HeapAllocBytes   uint64    `json:"heapAllocBytes"`
	SysBytes         uint64    `json:"sysBytes"`
	Goroutines       int       `json:"goroutines"`
	UserCPUSeconds   float64   `json:"userCpuSeconds"`
	SystemCPUSeconds float64   `json:"systemCpuSeconds"`
}

// Snapshot is one persisted checkpoint. Never mutated after write.
type Snapshot struct {
	Timestamp      time.Time       `json:"timestamp"`
	SessionID      string          `json:"sessionId"`
	CurrentTask    string          `json:"currentTask"`
	CompletedTasks []string        `json:"completedTasks"`
	FailedTasks    []FailedTask    `json:"failedTasks"`
	ElapsedMillis  int64           `json:"elapsed"`
	ResourceUsage  *ResourceSample `json:"resourceUsage"`
}

// Store writes snapshots to a directory, one JSON file per write,
// filenames keyed by session id and timestamp. Write only reads the
// snapshot it is handed, so it is safe to call from any point in the
// session loop without coordination.
type Store struct {
	dir string
}

// NewStore creates the checkpoint directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Write persists a snapshot and returns its checkpoint id.
func (s *Store) Write(snap Snapshot) (string, error) {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}

	id := fmt.Sprintf("%s-%d", snap.SessionID, snap.Timestamp.UnixNano())

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := filepath.Join(s.dir, id+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write checkpoint %s: %w", id, err)
	}

	return id, nil
}

// Read loads a snapshot by checkpoint id.
func (s *Store) Read(id string) (Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read checkpoint %s: %w", id, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse checkpoint %s: %w", id, err)
	}
	return snap, nil
}

// List returns all checkpoint ids for a session, oldest first. The
// timestamp suffix makes lexicographic order chronological for a fixed
// session id.
func (s *Store) List(sessionID string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	prefix := sessionID + "-"
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Latest returns the most recent snapshot for a session.
func (s *Store) Latest(sessionID string) (Snapshot, error) {
	ids, err := s.List(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	if len(ids) == 0 {
		return Snapshot{}, fmt.Errorf("no checkpoints found for session %s", sessionID)
	}
	return s.Read(ids[len(ids)-1])
}
