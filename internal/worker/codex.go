package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CodexWorker drives the Codex CLI. Codex threads are not resumable
// through this adapter's contract, so SessionToken is ignored and the
// executor falls back to fresh prompts for continuation iterations.
type CodexWorker struct {
	command string
	model   string
	workDir string
	procMgr *ProcessManager
}

// codexEvent is the discriminator for the newline-delimited JSON event
// stream the CLI emits with --json.
type codexEvent struct {
	Type string `json:"type"`
}

type codexTurnCompleted struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NewCodexWorker creates a Codex worker adapter.
func NewCodexWorker(cfg Config, pm *ProcessManager) (*CodexWorker, error) {
	command := cfg.Command
	if command == "" {
		command = "codex"
	}

	return &CodexWorker{
		command: command,
		model:   cfg.Model,
		workDir: cfg.WorkDir,
		procMgr: pm,
	}, nil
}

// Invoke runs one prompt through `codex exec`.
func (w *CodexWorker) Invoke(ctx context.Context, req Request) (Result, error) {
	args := []string{"exec", req.Prompt, "--json"}
	if w.model != "" {
		args = append(args, "--model", w.model)
	}

	workDir := req.WorkDir
	if workDir == "" {
		workDir = w.workDir
	}

	cmd := newCommand(ctx, w.command, args...)
	cmd.Dir = workDir

	stdout, _, err := executeCommand(ctx, cmd, w.procMgr)
	if err != nil {
		return Result{
			ErrorText: fmt.Sprintf("codex command failed: %v", err),
		}, err
	}

	content, err := parseCodexEvents(stdout)
	if err != nil {
		return Result{
			ErrorText: fmt.Sprintf("failed to parse codex events: %v", err),
		}, err
	}

	return Result{
		Success:      true,
		Output:       content,
		ChangedFiles: detectChangedFiles(ctx, workDir),
	}, nil
}

// SupportsContinuation is false: every invocation is a fresh thread.
func (w *CodexWorker) SupportsContinuation() bool { return false }

// Close is a no-op; the CLI runs subprocess-per-invocation.
func (w *CodexWorker) Close() error { return nil }

// parseCodexEvents extracts the final turn content from the CLI's
// newline-delimited JSON event stream.
func parseCodexEvents(data []byte) (string, error) {
	var content string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var evt codexEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			return "", fmt.Errorf("failed to parse event type: %w", err)
		}

		if evt.Type == "TurnCompleted" {
			var completed codexTurnCompleted
			if err := json.Unmarshal([]byte(line), &completed); err != nil {
				return "", fmt.Errorf("failed to parse TurnCompleted event: %w", err)
			}
			content = completed.Content
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("error reading events: %w", err)
	}

	return content, nil
}
