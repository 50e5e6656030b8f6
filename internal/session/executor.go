// Package session runs the bounded execution loop: resolve the task
// graph, execute tasks in order through an external worker with
// classified retries, mirror progress onto git branches, and write
// resumable checkpoints along the way.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/taskdriver/internal/branch"
	"github.com/aristath/taskdriver/internal/checkpoint"
	"github.com/aristath/taskdriver/internal/classify"
	"github.com/aristath/taskdriver/internal/config"
	"github.com/aristath/taskdriver/internal/events"
	"github.com/aristath/taskdriver/internal/persistence"
	"github.com/aristath/taskdriver/internal/scheduler"
	"github.com/aristath/taskdriver/internal/task"
	"github.com/aristath/taskdriver/internal/worker"
)

// Critical failure patterns. A task error matching one of these halts
// the whole session: retrying other tasks cannot succeed either.
var criticalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)no space left on device`),
	regexp.MustCompile(`(?i)disk full`),
	regexp.MustCompile(`(?i)out of memory`),
	regexp.MustCompile(`(?i)cannot allocate memory`),
	regexp.MustCompile(`(?i)not a git repository`),
	regexp.MustCompile(`(?i)authentication failed`),
	regexp.MustCompile(`(?i)invalid api key`),
}

// resourceSampleInterval is the background sampler's cadence. Samples
// land in checkpoints as the last observed reading.
const resourceSampleInterval = 30 * time.Second

func isCritical(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, p := range criticalPatterns {
		if p.MatchString(msg) {
			return true
		}
	}
	return false
}

// Options wires an Executor's collaborators. Store and Bus are
// optional; the rest are required.
type Options struct {
	Config      *config.Config
	Worker      worker.Worker
	Branches    *branch.Manager
	Checkpoints *checkpoint.Store
	Store       *persistence.SQLiteStore
	Bus         *events.Bus
	WorkDir     string

	// Resume, when set, restores a prior session's id, elapsed time,
	// and completed-task set from a checkpoint.
	Resume *checkpoint.Snapshot
}

// Executor owns one session: a single run through the resolved task
// order, bounded by the configured session duration. It is not safe
// for concurrent Run calls.
type Executor struct {
	cfg         *config.Config
	policy      classify.Policy
	worker      worker.Worker
	workDir     string
	branches    *branch.Manager
	checkpoints *checkpoint.Store
	store       *persistence.SQLiteStore
	bus         *events.Bus
	breaker     *gobreaker.CircuitBreaker

	mu    sync.Mutex
	state *State
	phase Phase
}

// New builds an Executor. Fresh sessions get a new uuid; resumed
// sessions keep the checkpoint's id and completed set.
func New(opts Options) (*Executor, error) {
	if opts.Config == nil {
		return nil, errors.New("session: config is required")
	}
	if opts.Worker == nil {
		return nil, errors.New("session: worker is required")
	}
	if opts.Branches == nil {
		return nil, errors.New("session: branch manager is required")
	}
	if opts.Checkpoints == nil {
		return nil, errors.New("session: checkpoint store is required")
	}

	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus()
	}

	var state *State
	if opts.Resume != nil {
		state = Restore(*opts.Resume)
		log.Printf("Resuming session %s: %d task(s) already completed, %s elapsed",
			state.SessionID, len(state.Completed), state.ElapsedBaseline.Round(time.Second))
	} else {
		state = &State{
			SessionID: uuid.NewString(),
			StartTime: time.Now(),
		}
	}

	return &Executor{
		cfg:         opts.Config,
		policy:      policyFromConfig(opts.Config.Retry),
		worker:      opts.Worker,
		workDir:     opts.WorkDir,
		branches:    opts.Branches,
		checkpoints: opts.Checkpoints,
		store:       opts.Store,
		bus:         bus,
		breaker:     newWorkerBreaker(opts.Config.Worker.Kind),
		state:       state,
		phase:       PhaseIdle,
	}, nil
}

// policyFromConfig overlays configured retry settings on the default
// policy. Zero values keep the defaults.
func policyFromConfig(rc config.RetryConfig) classify.Policy {
	p := classify.DefaultPolicy()
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	if rc.BaseDelaySeconds > 0 {
		p.BaseDelay = rc.BaseDelay()
	}
	if rc.TransientDelaySeconds > 0 {
		p.TransientDelay = rc.TransientDelay()
	}
	if rc.UsageLimitCapMinutes > 0 {
		p.UsageLimitCap = rc.UsageLimitCap()
	}
	if rc.DefaultCapMinutes > 0 {
		p.DefaultCap = rc.DefaultCap()
	}
	p.Jitter = rc.JitterEnabled()
	return p
}

// SessionID returns this session's identifier.
func (e *Executor) SessionID() string {
	return e.state.SessionID
}

// Phase returns the executor's current phase.
func (e *Executor) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Executor) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

// Run executes the session to completion. The returned Result is
// non-nil whenever execution started, even if the session failed; the
// error is non-nil only for startup failures and critical halts.
func (e *Executor) Run(ctx context.Context, tasks []*task.Task) (*Result, error) {
	e.setPhase(PhaseValidating)
	ordered, err := scheduler.Resolve(tasks)
	if err != nil {
		e.setPhase(PhaseFailed)
		return nil, fmt.Errorf("task graph validation failed: %w", err)
	}
	log.Printf("Session %s: %d task(s) in execution order", e.state.SessionID, len(ordered))

	e.setPhase(PhaseLoading)
	if err := e.branches.EnsureRepository(ctx); err != nil {
		e.setPhase(PhaseFailed)
		return nil, fmt.Errorf("repository preparation failed: %w", err)
	}
	if e.store != nil {
		if err := e.store.StartSession(ctx, e.state.SessionID, e.state.StartTime); err != nil {
			log.Printf("WARNING: failed to record session start: %v", err)
		}
		for _, t := range ordered {
			if err := e.store.SaveTask(ctx, t); err != nil {
				log.Printf("WARNING: failed to persist task %s: %v", t.ID, err)
			}
		}
	}

	// Background checkpointing and resource sampling run for the whole
	// Executing phase and stop before Finalizing. Both only touch state
	// under the executor's lock, so a slow disk write cannot stall task
	// work.
	bgCtx, stopBG := context.WithCancel(context.Background())
	g, _ := errgroup.WithContext(bgCtx)
	if interval := e.cfg.Session.CheckpointInterval(); interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-bgCtx.Done():
					return nil
				case <-ticker.C:
					e.writeCheckpoint()
				}
			}
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(resourceSampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-bgCtx.Done():
				return nil
			case <-ticker.C:
				sample := sampleResources()
				e.mu.Lock()
				e.state.LastSample = sample
				e.mu.Unlock()
			}
		}
	})

	e.setPhase(PhaseExecuting)
	alreadyDone := e.state.CompletedSet()
	budget := e.cfg.Session.MaxDuration()

	var skipped []string
	var criticalErr error

	for i, t := range ordered {
		if alreadyDone[t.ID] {
			log.Printf("Task %s already completed in a prior run, skipping", t.ID)
			continue
		}
		if ctx.Err() != nil {
			criticalErr = ctx.Err()
			skipped = append(skipped, e.remainingIDs(ordered[i:], alreadyDone)...)
			break
		}
		if e.state.Elapsed() >= budget {
			log.Printf("Session budget of %s exhausted, skipping remaining tasks", budget)
			skipped = append(skipped, e.remainingIDs(ordered[i:], alreadyDone)...)
			break
		}

		if err := e.runTask(ctx, t, false); err != nil {
			criticalErr = err
			if i+1 < len(ordered) {
				skipped = append(skipped, e.remainingIDs(ordered[i+1:], alreadyDone)...)
			}
			break
		}
		e.writeCheckpoint()
	}

	if e.store != nil {
		for _, id := range skipped {
			if err := e.store.UpdateTaskStatus(ctx, id, persistence.StatusSkipped, ""); err != nil {
				log.Printf("WARNING: failed to mark task %s skipped: %v", id, err)
			}
		}
	}

	improvementRan := false
	if criticalErr == nil && len(skipped) == 0 && len(e.state.Failures) == 0 {
		if remaining := budget - e.state.Elapsed(); remaining > e.cfg.Session.MinImprovement() {
			improvementRan = true
			log.Printf("All tasks completed with %s left, running automatic improvement pass",
				remaining.Round(time.Second))
			// Failures of the synthetic task are logged inside runTask
			// and never escalate, even critical-looking ones.
			if err := e.runTask(ctx, improvementTask(), true); err != nil {
				log.Printf("WARNING: improvement pass reported: %v", err)
			}
		}
	}

	e.setPhase(PhaseFinalizing)
	stopBG()
	_ = g.Wait()
	e.writeCheckpoint()

	result := e.buildResult(skipped, improvementRan, criticalErr == nil)

	if len(result.Completed) > 0 {
		e.branches.CreateSessionPR(ctx, e.state.SessionID,
			fmt.Sprintf("Session %s: %d task(s) completed", e.state.SessionID, len(result.Completed)),
			result.Report())
	}
	e.branches.CleanupSessionBranches(ctx)

	if e.store != nil {
		if err := e.store.FinishSession(ctx, e.state.SessionID, time.Now(),
			len(result.Completed), len(result.Failed), len(result.Skipped), result.Success); err != nil {
			log.Printf("WARNING: failed to record session finish: %v", err)
		}
	}

	if criticalErr != nil {
		e.setPhase(PhaseFailed)
		return result, criticalErr
	}
	e.setPhase(PhaseDone)
	return result, nil
}

func (e *Executor) remainingIDs(rest []*task.Task, done map[string]bool) []string {
	var ids []string
	for _, t := range rest {
		if !done[t.ID] {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func (e *Executor) buildResult(skipped []string, improvementRan, noCritical bool) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	return &Result{
		SessionID:      e.state.SessionID,
		Success:        noCritical && len(e.state.Failures) == 0 && len(skipped) == 0,
		Completed:      append([]string(nil), e.state.Completed...),
		Failed:         append([]Failure(nil), e.state.Failures...),
		Skipped:        skipped,
		Elapsed:        e.state.Elapsed(),
		ImprovementRan: improvementRan,
	}
}

// runTask drives one task end to end: branch, invoke with retries,
// validate, commit, PR. A non-nil return means a critical failure that
// must halt the session; ordinary task failures are recorded in state
// and return nil so the loop can continue.
func (e *Executor) runTask(ctx context.Context, t *task.Task, synthetic bool) error {
	start := time.Now()
	e.setCurrentTask(t.ID)
	defer e.setCurrentTask("")

	e.bus.Publish(events.TopicTask, events.TaskStartedEvent{
		ID: t.ID, Title: t.Title, Attempt: 0, Timestamp: time.Now(),
	})
	if e.store != nil && !synthetic {
		if err := e.store.UpdateTaskStatus(ctx, t.ID, persistence.StatusRunning, ""); err != nil {
			log.Printf("WARNING: failed to mark task %s running: %v", t.ID, err)
		}
	}

	branchName, err := e.branches.CreateTaskBranch(ctx, t)
	if err != nil {
		return e.failTask(ctx, t, fmt.Errorf("branch creation failed: %w", err), synthetic)
	}
	if rec, ok := e.branches.Record(t.ID); ok {
		e.bus.Publish(events.TopicBranch, events.BranchCreatedEvent{
			ID: t.ID, Branch: rec.Branch, Base: rec.Base, Timestamp: time.Now(),
		})
	}
	if e.store != nil && !synthetic {
		if err := e.store.RecordBranch(ctx, t.ID, branchName); err != nil {
			log.Printf("WARNING: failed to record branch for task %s: %v", t.ID, err)
		}
	}

	res, err := e.invokeTask(ctx, t)
	if err == nil {
		err = validateCompletion(t, res)
	}
	if err != nil {
		e.branches.RevertTaskChanges(ctx, t)
		return e.failTask(ctx, t, err, synthetic)
	}

	in := branch.CommitInput{
		ChangedFiles: res.ChangedFiles,
		Duration:     time.Since(start),
		SessionID:    e.state.SessionID,
		Status:       persistence.StatusCompleted,
	}
	if err := e.branches.CommitTaskChanges(ctx, t, in); err != nil {
		e.branches.RevertTaskChanges(ctx, t)
		return e.failTask(ctx, t, fmt.Errorf("commit failed: %w", err), synthetic)
	}

	prURL := e.branches.CreateTaskPR(ctx, t, in, prBody(t, res.Output))
	if prURL != "" {
		e.bus.Publish(events.TopicBranch, events.PROpenedEvent{
			ID: t.ID, URL: prURL, Timestamp: time.Now(),
		})
		if e.store != nil && !synthetic {
			if err := e.store.RecordPR(ctx, t.ID, prURL); err != nil {
				log.Printf("WARNING: failed to record PR for task %s: %v", t.ID, err)
			}
		}
	}

	e.mu.Lock()
	e.state.Completed = append(e.state.Completed, t.ID)
	e.mu.Unlock()
	if e.store != nil && !synthetic {
		if err := e.store.UpdateTaskStatus(ctx, t.ID, persistence.StatusCompleted, ""); err != nil {
			log.Printf("WARNING: failed to mark task %s completed: %v", t.ID, err)
		}
	}

	e.bus.Publish(events.TopicTask, events.TaskCompletedEvent{
		ID: t.ID, Duration: time.Since(start), PRURL: prURL, Timestamp: time.Now(),
	})
	log.Printf("Task %s completed in %s", t.ID, time.Since(start).Round(time.Second))
	return nil
}

// failTask records a task failure. Synthetic task failures are logged
// and discarded. Critical failures are returned so Run halts.
func (e *Executor) failTask(ctx context.Context, t *task.Task, err error, synthetic bool) error {
	class := classify.Classify(err)

	e.bus.Publish(events.TopicTask, events.TaskFailedEvent{
		ID: t.ID, Err: err, Classification: class.String(), Timestamp: time.Now(),
	})

	if synthetic {
		log.Printf("WARNING: improvement pass failed, discarding: %v", err)
		return nil
	}

	log.Printf("ERROR: task %s failed (%s): %v", t.ID, class, err)
	e.mu.Lock()
	e.state.Failures = append(e.state.Failures, Failure{
		TaskID:         t.ID,
		Message:        err.Error(),
		Classification: class.String(),
		Timestamp:      time.Now(),
	})
	e.mu.Unlock()

	if e.store != nil {
		if serr := e.store.UpdateTaskStatus(ctx, t.ID, persistence.StatusFailed, err.Error()); serr != nil {
			log.Printf("WARNING: failed to mark task %s failed: %v", t.ID, serr)
		}
	}

	if isCritical(err) {
		return fmt.Errorf("critical failure on task %s: %w", t.ID, err)
	}
	return nil
}

// invokeTask runs the worker for a task, looping continuation
// invocations until the task's estimated minutes have elapsed or the
// iteration ceiling is reached. Output and changed files accumulate
// across iterations.
func (e *Executor) invokeTask(ctx context.Context, t *task.Task) (worker.Result, error) {
	prompt := taskPrompt(t)
	minDuration := time.Duration(t.EstimatedMinutes) * time.Minute
	maxIterations := e.cfg.Session.MaxTaskIterations
	if maxIterations <= 0 {
		maxIterations = 1
	}

	var agg worker.Result
	token := ""
	started := time.Now()

	for iteration := 0; iteration < maxIterations; iteration++ {
		res, err := e.invokeWithRetry(ctx, t, prompt, token)
		if err != nil {
			return agg, err
		}

		agg.Success = res.Success
		if agg.Output != "" && res.Output != "" {
			agg.Output += "\n"
		}
		agg.Output += res.Output
		agg.ChangedFiles = mergeFiles(agg.ChangedFiles, res.ChangedFiles)

		if res.SessionToken != "" {
			token = res.SessionToken
			agg.SessionToken = token
			if e.store != nil {
				if err := e.store.SaveWorkerSession(ctx, t.ID, token, e.cfg.Worker.Kind); err != nil {
					log.Printf("WARNING: failed to save worker session for task %s: %v", t.ID, err)
				}
			}
		}

		if time.Since(started) >= minDuration {
			break
		}
		if iteration == maxIterations-1 {
			log.Printf("WARNING: task %s hit the iteration ceiling (%d) before its minimum duration", t.ID, maxIterations)
			break
		}
		if !e.worker.SupportsContinuation() {
			token = ""
		}
		prompt = continuationPrompt(t)
		log.Printf("Task %s finished early (%s of %s minimum), continuing",
			t.ID, time.Since(started).Round(time.Second), minDuration)
	}

	return agg, nil
}

// invokeWithRetry runs one logical worker invocation, retrying per the
// error classification policy. Attempt numbering is zero-based.
func (e *Executor) invokeWithRetry(ctx context.Context, t *task.Task, prompt, token string) (worker.Result, error) {
	req := worker.Request{
		Prompt:       prompt,
		WorkDir:      e.workDir,
		SessionToken: token,
	}

	for attempt := 0; ; attempt++ {
		res, err := e.invokeOnce(ctx, req)
		if err == nil && res.Success {
			return res, nil
		}
		if err == nil {
			msg := res.ErrorText
			if msg == "" {
				msg = "worker reported failure without detail"
			}
			err = errors.New(msg)
		}
		if ctx.Err() != nil {
			return res, fmt.Errorf("invocation aborted: %w", err)
		}

		class := classify.Classify(err)
		if !e.policy.ShouldRetry(class, attempt) {
			return res, fmt.Errorf("task %s failed after %d attempt(s) (%s): %w", t.ID, attempt+1, class, err)
		}

		delay := e.policy.Delay(class, attempt)
		log.Printf("WARNING: task %s attempt %d failed (%s), retrying in %s: %v",
			t.ID, attempt+1, class, delay.Round(time.Second), err)
		e.bus.Publish(events.TopicTask, events.TaskRetryWaitEvent{
			ID: t.ID, Attempt: attempt + 1, Classification: class.String(), Delay: delay, Timestamp: time.Now(),
		})

		if werr := e.waitBackoff(ctx, t.ID, delay); werr != nil {
			return res, fmt.Errorf("backoff interrupted: %w", werr)
		}
	}
}

// invokeOnce runs a single worker call behind the per-invocation
// timeout and the circuit breaker.
func (e *Executor) invokeOnce(ctx context.Context, req worker.Request) (worker.Result, error) {
	if timeout := e.cfg.Worker.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return invokeThroughBreaker(ctx, e.breaker, e.worker, req)
}

// waitBackoff sleeps for the given delay. Only process shutdown via
// ctx interrupts it. Keepalives and checkpoints are emitted on the
// configured cadence so long waits are observable and resumable.
func (e *Executor) waitBackoff(ctx context.Context, taskID string, delay time.Duration) error {
	deadline := time.Now().Add(delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	var tick <-chan time.Time
	if interval := e.cfg.Session.KeepaliveInterval(); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case now := <-tick:
			remaining := deadline.Sub(now)
			if remaining < 0 {
				remaining = 0
			}
			e.bus.Publish(events.TopicSession, events.KeepaliveEvent{
				ID:        taskID,
				Waited:    delay - remaining,
				Remaining: remaining,
				Timestamp: now,
			})
			e.writeCheckpoint()
		}
	}
}

// writeCheckpoint samples resources, snapshots state, and persists the
// checkpoint. Failures are logged, never fatal.
func (e *Executor) writeCheckpoint() {
	sample := sampleResources()

	e.mu.Lock()
	e.state.LastSample = sample
	snap := e.state.Snapshot()
	e.mu.Unlock()

	id, err := e.checkpoints.Write(snap)
	if err != nil {
		log.Printf("WARNING: failed to write checkpoint: %v", err)
		return
	}

	e.mu.Lock()
	e.state.Checkpoints = append(e.state.Checkpoints, id)
	e.mu.Unlock()

	e.bus.Publish(events.TopicSession, events.CheckpointWrittenEvent{
		CheckpointID: id, Timestamp: time.Now(),
	})
}

func (e *Executor) setCurrentTask(id string) {
	e.mu.Lock()
	e.state.CurrentTaskID = id
	e.mu.Unlock()
}

// ValidationError reports a worker result that did not satisfy the
// task's completion criteria. Validation failures are recorded, never
// retried.
type ValidationError struct {
	TaskID string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("task %q failed completion validation: %s", e.TaskID, e.Reason)
}

// validateCompletion checks a successful worker result against the
// task's declared shape before committing.
func validateCompletion(t *task.Task, res worker.Result) error {
	if !res.Success {
		msg := res.ErrorText
		if msg == "" {
			msg = "worker reported failure without detail"
		}
		return &ValidationError{TaskID: t.ID, Reason: msg}
	}
	if strings.TrimSpace(res.Output) == "" {
		return &ValidationError{TaskID: t.ID, Reason: "worker returned no output"}
	}
	if len(t.Files) > 0 && len(res.ChangedFiles) == 0 {
		return &ValidationError{
			TaskID: t.ID,
			Reason: fmt.Sprintf("task names %d file(s) but the worker changed none", len(t.Files)),
		}
	}
	return nil
}

// improvementTask builds the synthetic task run when every declared
// task completed and budget remains.
func improvementTask() *task.Task {
	return &task.Task{
		ID:       "auto-improvement",
		Type:     task.TypeRefactor,
		Priority: 1,
		Title:    "Automatic improvement pass",
		Requirements: "All planned tasks are done. Look for small, safe improvements in the code " +
			"you changed this session: dead code, unclear names, missing test cases, stale comments. " +
			"Make only low-risk changes that keep behavior identical.",
		Tags: []string{"auto"},
	}
}

func mergeFiles(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, f := range existing {
		seen[f] = true
	}
	for _, f := range extra {
		if !seen[f] {
			seen[f] = true
			existing = append(existing, f)
		}
	}
	return existing
}
