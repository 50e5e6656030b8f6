package config

// DefaultConfig returns the built-in defaults: an 8-hour session
// budget, 5-minute checkpoints, and the production retry schedule
// (usage-limit waits capped at 5 hours, everything else at 15 minutes).
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			MaxDurationMinutes:        480,
			MinImprovementMinutes:     5,
			CheckpointIntervalSeconds: 300,
			KeepaliveIntervalSeconds:  60,
			MaxTaskIterations:         5,
		},
		Retry: RetryConfig{
			MaxAttempts:           5,
			BaseDelaySeconds:      30,
			TransientDelaySeconds: 5,
			UsageLimitCapMinutes:  300,
			DefaultCapMinutes:     15,
		},
		Branch: BranchConfig{
			Prefix: "taskdriver/",
			Remote: "origin",
		},
		Worker: WorkerConfig{
			Kind:           "claude",
			TimeoutMinutes: 60,
		},
		Paths: PathsConfig{
			CheckpointDir: ".taskdriver/checkpoints",
			StateDB:       ".taskdriver/state.db",
		},
	}
}
