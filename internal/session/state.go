package session

import (
	"time"

	"github.com/aristath/taskdriver/internal/checkpoint"
)

// Phase is the executor's position in its state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseValidating
	PhaseLoading
	PhaseExecuting
	PhaseFinalizing
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseValidating:
		return "validating"
	case PhaseLoading:
		return "loading"
	case PhaseExecuting:
		return "executing"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Failure records one failed task.
type Failure struct {
	TaskID         string
	Message        string
	Classification string
	Timestamp      time.Time
}

// State is the session's mutable progress record. It is owned by the
// Executor, created at session start, mutated at task boundaries, and
// never shared across sessions. Snapshots of it become checkpoints.
type State struct {
	SessionID string
	StartTime time.Time

	// ElapsedBaseline carries time spent by a prior process when the
	// session was restored from a checkpoint.
	ElapsedBaseline time.Duration

	CurrentTaskID string
	Completed     []string
	Failures      []Failure
	Checkpoints   []string // ids of checkpoints written so far
	LastSample    *checkpoint.ResourceSample
}

// Elapsed is the session's total elapsed time including any restored
// baseline.
func (s *State) Elapsed() time.Duration {
	return s.ElapsedBaseline + time.Since(s.StartTime)
}

// CompletedSet returns completed ids as a set.
func (s *State) CompletedSet() map[string]bool {
	set := make(map[string]bool, len(s.Completed))
	for _, id := range s.Completed {
		set[id] = true
	}
	return set
}

// Snapshot renders the state as an immutable checkpoint record.
func (s *State) Snapshot() checkpoint.Snapshot {
	failed := make([]checkpoint.FailedTask, 0, len(s.Failures))
	for _, f := range s.Failures {
		failed = append(failed, checkpoint.FailedTask{
			ID:        f.TaskID,
			Error:     f.Message,
			Timestamp: f.Timestamp,
		})
	}

	return checkpoint.Snapshot{
		Timestamp:      time.Now(),
		SessionID:      s.SessionID,
		CurrentTask:    s.CurrentTaskID,
		CompletedTasks: append([]string(nil), s.Completed...),
		FailedTasks:    failed,
		ElapsedMillis:  s.Elapsed().Milliseconds(),
		ResourceUsage:  s.LastSample,
	}
}

// Restore rebuilds partial session state from a checkpoint: session id,
// elapsed baseline, and the completed-task set. Branch mappings are NOT
// reconstructed; after process death the dependency branch graph cannot
// be recreated safely, so restored tasks re-branch from the base
// branch under lenient mode. Known limitation.
func Restore(snap checkpoint.Snapshot) *State {
	return &State{
		SessionID:       snap.SessionID,
		StartTime:       time.Now(),
		ElapsedBaseline: time.Duration(snap.ElapsedMillis) * time.Millisecond,
		Completed:       append([]string(nil), snap.CompletedTasks...),
	}
}
