// Package worker wraps the external code-generation tools the engine
// drives. A worker is opaque: it takes a prompt and a working directory
// and reports output text plus the files it changed.
package worker

import (
	"context"
	"fmt"
)

// Request is one worker invocation.
type Request struct {
	Prompt  string
	WorkDir string

	// SessionToken, when non-empty and the worker supports it, asks the
	// worker to continue the prior session instead of starting fresh.
	SessionToken string
}

// Result is the worker's report for one invocation.
type Result struct {
	Success      bool
	Output       string
	ErrorText    string
	ChangedFiles []string
	SessionToken string // present only for workers that support continuation
}

// Worker is the code-generation collaborator interface.
type Worker interface {
	Invoke(ctx context.Context, req Request) (Result, error)

	// SupportsContinuation reports whether SessionToken round-trips.
	SupportsContinuation() bool

	Close() error
}

// Config selects and configures a worker adapter.
type Config struct {
	Kind    string // "claude" or "codex"
	Command string // CLI binary override; defaults to Kind
	Model   string
	WorkDir string
}

// New builds a worker adapter for the configured kind.
func New(cfg Config, pm *ProcessManager) (Worker, error) {
	switch cfg.Kind {
	case "claude":
		return NewClaudeWorker(cfg, pm)
	case "codex":
		return NewCodexWorker(cfg, pm)
	default:
		return nil, fmt.Errorf("unknown worker kind: %s", cfg.Kind)
	}
}
