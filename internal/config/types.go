package config

import "time"

// SessionConfig bounds the overall session loop.
type SessionConfig struct {
	MaxDurationMinutes        int `json:"max_duration_minutes"`
	MinImprovementMinutes     int `json:"min_improvement_minutes"` // budget left required to run the synthetic improvement task
	CheckpointIntervalSeconds int `json:"checkpoint_interval_seconds"`
	KeepaliveIntervalSeconds  int `json:"keepalive_interval_seconds"`
	MaxTaskIterations         int `json:"max_task_iterations"` // ceiling on minimum-duration continuation loops
}

func (c SessionConfig) MaxDuration() time.Duration        { return time.Duration(c.MaxDurationMinutes) * time.Minute }
func (c SessionConfig) MinImprovement() time.Duration     { return time.Duration(c.MinImprovementMinutes) * time.Minute }
func (c SessionConfig) CheckpointInterval() time.Duration { return time.Duration(c.CheckpointIntervalSeconds) * time.Second }
func (c SessionConfig) KeepaliveInterval() time.Duration  { return time.Duration(c.KeepaliveIntervalSeconds) * time.Second }

// RetryConfig parameterizes the backoff policy.
type RetryConfig struct {
	MaxAttempts           int   `json:"max_attempts"`
	BaseDelaySeconds      int   `json:"base_delay_seconds"`
	TransientDelaySeconds int   `json:"transient_delay_seconds"`
	UsageLimitCapMinutes  int   `json:"usage_limit_cap_minutes"`
	DefaultCapMinutes     int   `json:"default_cap_minutes"`
	Jitter                *bool `json:"jitter,omitempty"`
}

func (c RetryConfig) BaseDelay() time.Duration      { return time.Duration(c.BaseDelaySeconds) * time.Second }
func (c RetryConfig) TransientDelay() time.Duration { return time.Duration(c.TransientDelaySeconds) * time.Second }
func (c RetryConfig) UsageLimitCap() time.Duration  { return time.Duration(c.UsageLimitCapMinutes) * time.Minute }
func (c RetryConfig) DefaultCap() time.Duration     { return time.Duration(c.DefaultCapMinutes) * time.Minute }

// JitterEnabled defaults to true when unset.
func (c RetryConfig) JitterEnabled() bool { return c.Jitter == nil || *c.Jitter }

// BranchConfig configures branch naming and dependency strictness.
type BranchConfig struct {
	Prefix string `json:"prefix"`
	Remote string `json:"remote"`
	Strict bool   `json:"strict"`
}

// WorkerConfig selects the code-generation worker.
type WorkerConfig struct {
	Kind           string `json:"kind"`
	Command        string `json:"command,omitempty"`
	Model          string `json:"model,omitempty"`
	TimeoutMinutes int    `json:"timeout_minutes"`
}

func (c WorkerConfig) Timeout() time.Duration { return time.Duration(c.TimeoutMinutes) * time.Minute }

// PathsConfig locates durable state.
type PathsConfig struct {
	CheckpointDir string `json:"checkpoint_dir"`
	StateDB       string `json:"state_db"`
}

// Config is the top-level configuration.
type Config struct {
	Session SessionConfig `json:"session"`
	Retry   RetryConfig   `json:"retry"`
	Branch  BranchConfig  `json:"branch"`
	Worker  WorkerConfig  `json:"worker"`
	Paths   PathsConfig   `json:"paths"`
}
