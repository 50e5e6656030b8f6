package events

import (
	"time"
)

// Event is implemented by every published event type.
type Event interface {
	EventType() string
	TaskID() string
}

// Topics
const (
	TopicTask    = "task"
	TopicBranch  = "branch"
	TopicSession = "session"
)

// Event types
const (
	EventTypeTaskStarted       = "task.started"
	EventTypeTaskCompleted     = "task.completed"
	EventTypeTaskFailed        = "task.failed"
	EventTypeTaskRetryWait     = "task.retry_wait"
	EventTypeBranchCreated     = "branch.created"
	EventTypePROpened          = "branch.pr_opened"
	EventTypeCheckpointWritten = "session.checkpoint"
	EventTypeKeepalive         = "session.keepalive"
)

// TaskStartedEvent is published when a task's execution begins.
type TaskStartedEvent struct {
	ID        string
	Title     string
	Attempt   int
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	ID        string
	Duration  time.Duration
	PRURL     string
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails after retries.
type TaskFailedEvent struct {
	ID             string
	Err            error
	Classification string
	Timestamp      time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskRetryWaitEvent is published when the executor starts a backoff
// wait before retrying a task.
type TaskRetryWaitEvent struct {
	ID             string
	Attempt        int
	Classification string
	Delay          time.Duration
	Timestamp      time.Time
}

func (e TaskRetryWaitEvent) EventType() string { return EventTypeTaskRetryWait }
func (e TaskRetryWaitEvent) TaskID() string    { return e.ID }

// BranchCreatedEvent is published when a task branch is created.
type BranchCreatedEvent struct {
	ID        string
	Branch    string
	Base      string
	Timestamp time.Time
}

func (e BranchCreatedEvent) EventType() string { return EventTypeBranchCreated }
func (e BranchCreatedEvent) TaskID() string    { return e.ID }

// PROpenedEvent is published when a pull request is opened.
type PROpenedEvent struct {
	ID        string
	URL       string
	Timestamp time.Time
}

func (e PROpenedEvent) EventType() string { return EventTypePROpened }
func (e PROpenedEvent) TaskID() string    { return e.ID }

// CheckpointWrittenEvent is published after each checkpoint write.
type CheckpointWrittenEvent struct {
	CheckpointID string
	Timestamp    time.Time
}

func (e CheckpointWrittenEvent) EventType() string { return EventTypeCheckpointWritten }
func (e CheckpointWrittenEvent) TaskID() string    { return "" }

// KeepaliveEvent is emitted on a fixed cadence during long backoff
// waits so observers can tell the session is alive, not hung.
type KeepaliveEvent struct {
	ID        string
	Waited    time.Duration
	Remaining time.Duration
	Timestamp time.Time
}

func (e KeepaliveEvent) EventType() string { return EventTypeKeepalive }
func (e KeepaliveEvent) TaskID() string    { return e.ID }
