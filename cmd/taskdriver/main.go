package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/taskdriver/internal/branch"
	"github.com/aristath/taskdriver/internal/checkpoint"
	"github.com/aristath/taskdriver/internal/config"
	"github.com/aristath/taskdriver/internal/events"
	"github.com/aristath/taskdriver/internal/persistence"
	"github.com/aristath/taskdriver/internal/session"
	"github.com/aristath/taskdriver/internal/task"
	"github.com/aristath/taskdriver/internal/worker"
)

func main() {
	tasksPath := flag.String("tasks", "tasks.json", "path to the task file")
	repoPath := flag.String("repo", ".", "path to the git repository to work in")
	resume := flag.String("resume", "", "session id to resume from its latest checkpoint")
	flag.Parse()

	// Signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *tasksPath, *repoPath, *resume); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, tasksPath, repoPath, resumeID string) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tasks, err := task.Load(tasksPath)
	if err != nil {
		return fmt.Errorf("loading tasks: %w", err)
	}

	pm := worker.NewProcessManager()
	defer func() {
		if err := pm.KillAll(); err != nil {
			log.Printf("Error killing subprocesses: %v", err)
		}
	}()

	w, err := worker.New(worker.Config{
		Kind:    cfg.Worker.Kind,
		Command: cfg.Worker.Command,
		Model:   cfg.Worker.Model,
		WorkDir: repoPath,
	}, pm)
	if err != nil {
		return fmt.Errorf("creating worker: %w", err)
	}
	defer w.Close()

	branches := branch.NewManager(branch.Config{
		RepoPath: repoPath,
		Prefix:   cfg.Branch.Prefix,
		Remote:   cfg.Branch.Remote,
		Strict:   cfg.Branch.Strict,
	}, nil, nil)

	checkpoints, err := checkpoint.NewStore(cfg.Paths.CheckpointDir)
	if err != nil {
		return fmt.Errorf("creating checkpoint store: %w", err)
	}

	store, err := persistence.NewSQLiteStore(ctx, cfg.Paths.StateDB)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer store.Close()

	bus := events.NewBus()
	defer bus.Close()

	// Log every event; the bus drops on a full buffer, so a slow
	// terminal never blocks execution.
	eventCh := bus.SubscribeAll(0)
	go func() {
		for ev := range eventCh {
			if id := ev.TaskID(); id != "" {
				log.Printf("[%s] %s", ev.EventType(), id)
			} else {
				log.Printf("[%s]", ev.EventType())
			}
		}
	}()

	opts := session.Options{
		Config:      cfg,
		Worker:      w,
		Branches:    branches,
		Checkpoints: checkpoints,
		Store:       store,
		Bus:         bus,
		WorkDir:     repoPath,
	}
	if resumeID != "" {
		snap, err := checkpoints.Latest(resumeID)
		if err != nil {
			return fmt.Errorf("loading checkpoint for session %s: %w", resumeID, err)
		}
		opts.Resume = &snap
	}

	exec, err := session.New(opts)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	log.Printf("Starting session %s with %d task(s)", exec.SessionID(), len(tasks))

	result, runErr := exec.Run(ctx, tasks)
	if result != nil {
		fmt.Print(result.Report())
	}
	if runErr != nil {
		return runErr
	}
	if !result.Success {
		return fmt.Errorf("session %s finished with failures", result.SessionID)
	}
	return nil
}
