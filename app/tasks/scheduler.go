package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/guideline-hub/app/database"
	"github.com/lysyi3m/guideline-hub/app/ingest"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	DefaultCycleTimeout = time.Hour
	defaultRetryBase    = 30 * time.Second
	defaultRetryMax     = 10 * time.Minute
)

// State is a snapshot of the scheduler for health reporting.
type State struct {
	IsRunning      bool            `json:"is_running"`
	Pending        bool            `json:"pending"`
	LastRunAt      *time.Time      `json:"last_run_at"`
	LastSuccessAt  *time.Time      `json:"last_success_at"`
	NextRunAt      *time.Time      `json:"next_run_at"`
	LastRunSummary *ingest.Summary `json:"last_run_summary"`
}

// Scheduler runs one ingestion cycle at a time. The interval ticker and
// Trigger both feed a single-slot pending channel, so triggers that arrive
// while a cycle is running collapse into one follow-up cycle.
type Scheduler struct {
	runner         Runner
	runs           database.RunRepository
	interval       time.Duration
	skipInitialRun bool
	cycleTimeout   time.Duration
	retryBase      time.Duration
	retryMax       time.Duration

	pending chan string
	retries chan TaskInterface

	mu    sync.RWMutex
	state State

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. runs may be nil, in which case the
// initial state starts empty.
func NewScheduler(runner Runner, runs database.RunRepository, interval time.Duration, skipInitialRun bool) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runner:         runner,
		runs:           runs,
		interval:       interval,
		skipInitialRun: skipInitialRun,
		cycleTimeout:   DefaultCycleTimeout,
		retryBase:      defaultRetryBase,
		retryMax:       defaultRetryMax,
		pending:        make(chan string, 1),
		retries:        make(chan TaskInterface, 1),
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (s *Scheduler) Start() {
	s.restoreState()

	s.wg.Add(1)
	go s.worker()

	if s.interval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			s.setNextRun(time.Now().Add(s.interval))

			for {
				select {
				case <-s.ctx.Done():
					return
				case tick := <-ticker.C:
					s.setNextRun(tick.Add(s.interval))
					s.Trigger("interval")
				}
			}
		}()
	}

	if !s.skipInitialRun {
		s.Trigger("startup")
	}
}

// Stop cancels the running cycle between items and waits for the worker.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Trigger requests a cycle. It never blocks; it returns false when a cycle
// is already pending and the request was coalesced into it.
func (s *Scheduler) Trigger(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case s.pending <- reason:
		slog.Debug("Ingestion cycle requested", "reason", reason)
		return true
	default:
		slog.Debug("Ingestion cycle already pending, request coalesced", "reason", reason)
		return false
	}
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.retries <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := s.state
	state.Pending = len(s.pending) > 0
	if state.LastRunSummary != nil {
		summary := *state.LastRunSummary
		state.LastRunSummary = &summary
	}
	return state
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// RunOnce executes a single cycle synchronously, bypassing the queue.
func (s *Scheduler) RunOnce(ctx context.Context, reason string) ingest.Summary {
	task := NewIngestTask(reason, s.runner)
	s.execute(ctx, task)
	return task.Summary
}

func (s *Scheduler) restoreState() {
	if s.runs == nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	run, err := s.runs.LastSuccessfulRun(ctx)
	if err != nil {
		slog.Warn("Failed to load last successful run", "error", err)
		return
	}
	if run == nil {
		slog.Debug("No previous successful run found")
		return
	}

	summary := ingest.SummaryFromRun(*run)
	finishedAt := run.FinishedAt

	s.mu.Lock()
	s.state.LastRunAt = &finishedAt
	s.state.LastSuccessAt = &finishedAt
	s.state.LastRunSummary = &summary
	s.mu.Unlock()

	slog.Info("Scheduler state restored", "last_success_at", finishedAt, "run_id", run.ID)
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case reason := <-s.pending:
			s.executeTask(NewIngestTask(reason, s.runner))

		case task := <-s.retries:
			s.executeTask(task)
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	taskCtx, cancel := context.WithTimeout(s.ctx, s.cycleTimeout)
	defer cancel()

	err := s.execute(taskCtx, task)
	if err == nil || s.ctx.Err() != nil {
		return
	}

	slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := s.retryBase << uint(task.GetRetryCount()-1)
	if retryDelay > s.retryMax {
		retryDelay = s.retryMax
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "reason", task.GetReason(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			return
		case <-timer.C:
		}

		if retryErr := s.EnqueueTask(task); retryErr != nil {
			slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
		}
	}()
}

// execute runs task and records the outcome in the scheduler state. Panics
// are recovered so a faulty cycle never takes the process down.
func (s *Scheduler) execute(ctx context.Context, task TaskInterface) (err error) {
	task.Start()
	s.setRunning(true)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Task panicked", "type", string(task.GetType()), "id", task.GetID(), "panic", r)
			err = fmt.Errorf("task panicked: %v", r)
		}
		s.finish(task)
	}()

	return task.Execute(ctx)
}

func (s *Scheduler) setRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsRunning = running
}

func (s *Scheduler) setNextRun(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.NextRunAt = &at
}

func (s *Scheduler) finish(task TaskInterface) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.IsRunning = false

	ingestTask, ok := task.(*IngestTask)
	if !ok || ingestTask.Summary.RunID == "" {
		return
	}

	summary := ingestTask.Summary
	finishedAt := summary.FinishedAt
	s.state.LastRunAt = &finishedAt
	s.state.LastRunSummary = &summary
	if summary.Succeeded() {
		s.state.LastSuccessAt = &finishedAt
	}
}
