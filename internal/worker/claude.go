package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// ClaudeWorker drives the Claude Code CLI. It supports session
// continuation: the first invocation pins a session id, later
// invocations with a SessionToken resume it.
type ClaudeWorker struct {
	command string
	model   string
	workDir string
	procMgr *ProcessManager
}

// claudeResponse is the JSON structure the CLI prints with
// --output-format json.
type claudeResponse struct {
	SessionID string `json:"session_id"`
	Result    struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
}

// NewClaudeWorker creates a Claude worker adapter.
func NewClaudeWorker(cfg Config, pm *ProcessManager) (*ClaudeWorker, error) {
	command := cfg.Command
	if command == "" {
		command = "claude"
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	return &ClaudeWorker{
		command: command,
		model:   cfg.Model,
		workDir: workDir,
		procMgr: pm,
	}, nil
}

// Invoke runs one prompt through the CLI. A request carrying a
// SessionToken resumes that session with --resume; otherwise a fresh
// session id is minted and passed with --session-id so the token can
// be handed back for continuation.
func (w *ClaudeWorker) Invoke(ctx context.Context, req Request) (Result, error) {
	token := req.SessionToken
	args := []string{"-p", req.Prompt, "--output-format", "json"}
	if token != "" {
		args = append(args, "--resume", token)
	} else {
		token = uuid.NewString()
		args = append(args, "--session-id", token)
	}
	if w.model != "" {
		args = append(args, "--model", w.model)
	}

	workDir := req.WorkDir
	if workDir == "" {
		workDir = w.workDir
	}

	cmd := newCommand(ctx, w.command, args...)
	cmd.Dir = workDir

	stdout, stderr, err := executeCommand(ctx, cmd, w.procMgr)
	if err != nil {
		return Result{
			ErrorText:    fmt.Sprintf("claude command failed: %v", err),
			SessionToken: token,
		}, err
	}

	resp, err := parseClaudeResponse(stdout)
	if err != nil {
		return Result{
			ErrorText:    fmt.Sprintf("failed to parse claude response: %v (stderr: %s)", err, string(stderr)),
			SessionToken: token,
		}, err
	}
	if resp.SessionID != "" {
		token = resp.SessionID
	}

	var content string
	for _, item := range resp.Result.Content {
		if item.Type == "text" {
			content += item.Text
		}
	}

	return Result{
		Success:      true,
		Output:       content,
		ChangedFiles: detectChangedFiles(ctx, workDir),
		SessionToken: token,
	}, nil
}

// SupportsContinuation is true: --resume preserves session context.
func (w *ClaudeWorker) SupportsContinuation() bool { return true }

// Close is a no-op; the CLI runs subprocess-per-invocation.
func (w *ClaudeWorker) Close() error { return nil }

func parseClaudeResponse(data []byte) (claudeResponse, error) {
	var cr claudeResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return claudeResponse{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return cr, nil
}
