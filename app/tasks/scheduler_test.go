package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/guideline-hub/app/database"
	"github.com/lysyi3m/guideline-hub/app/ingest"
)

// mockRunner records cycles. When gate is set each cycle blocks until a
// value is received from it.
type mockRunner struct {
	mu        sync.Mutex
	reasons   []string
	gate      chan struct{}
	started   chan string
	summaries []ingest.Summary
	panicOn   int
}

func (m *mockRunner) Run(ctx context.Context, reason string) ingest.Summary {
	m.mu.Lock()
	m.reasons = append(m.reasons, reason)
	call := len(m.reasons)
	m.mu.Unlock()

	if m.started != nil {
		m.started <- reason
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
		}
	}
	if m.panicOn == call {
		panic("runner exploded")
	}

	summary := ingest.Summary{
		RunID:      reason,
		Reason:     reason,
		Status:     ingest.StatusCompleted,
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if call <= len(m.summaries) {
		summary = m.summaries[call-1]
	}
	return summary
}

func (m *mockRunner) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reasons...)
}

type mockRunRepository struct {
	last *database.Run
	err  error
}

func (m *mockRunRepository) SaveRun(ctx context.Context, run database.Run) error { return nil }

func (m *mockRunRepository) LastRuns(ctx context.Context, limit int) ([]database.Run, error) {
	return nil, nil
}

func (m *mockRunRepository) LastSuccessfulRun(ctx context.Context) (*database.Run, error) {
	return m.last, m.err
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

func TestSchedulerCoalescesTriggers(t *testing.T) {
	runner := &mockRunner{gate: make(chan struct{}), started: make(chan string, 10)}
	scheduler := NewScheduler(runner, nil, 0, true)
	scheduler.Start()
	defer scheduler.Stop()

	if !scheduler.Trigger("first") {
		t.Fatal("Expected first trigger to be accepted")
	}
	<-runner.started

	if !scheduler.State().IsRunning {
		t.Error("Expected scheduler to report a running cycle")
	}

	if !scheduler.Trigger("second") {
		t.Error("Expected trigger during a running cycle to be queued")
	}
	for range 3 {
		if scheduler.Trigger("extra") {
			t.Error("Expected further triggers to be coalesced")
		}
	}
	if !scheduler.State().Pending {
		t.Error("Expected a pending cycle")
	}

	runner.gate <- struct{}{}
	<-runner.started
	runner.gate <- struct{}{}

	waitFor(t, func() bool { return !scheduler.State().IsRunning && len(runner.calls()) == 2 })

	time.Sleep(20 * time.Millisecond)
	if calls := runner.calls(); len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("Expected exactly [first second], got %v", calls)
	}
	if scheduler.State().Pending {
		t.Error("Expected no pending cycle after the follow-up run")
	}
}

func TestSchedulerInitialRunAndState(t *testing.T) {
	runner := &mockRunner{}
	scheduler := NewScheduler(runner, nil, time.Hour, false)
	scheduler.Start()
	defer scheduler.Stop()

	waitFor(t, func() bool { return scheduler.State().LastSuccessAt != nil })

	state := scheduler.State()
	if calls := runner.calls(); len(calls) != 1 || calls[0] != "startup" {
		t.Errorf("Expected a startup cycle, got %v", calls)
	}
	if state.LastRunSummary == nil || state.LastRunSummary.Reason != "startup" {
		t.Errorf("Expected last run summary for startup, got %+v", state.LastRunSummary)
	}
	if state.NextRunAt == nil {
		t.Error("Expected next run time to be set")
	}
}

func TestSchedulerRestoresLastSuccessfulRun(t *testing.T) {
	finished := time.Date(2024, 4, 30, 6, 0, 0, 0, time.UTC)
	runs := &mockRunRepository{last: &database.Run{ID: "previous", Status: "completed", Succeeded: true, FinishedAt: finished}}

	scheduler := NewScheduler(&mockRunner{}, runs, 0, true)
	scheduler.Start()
	defer scheduler.Stop()

	state := scheduler.State()
	if state.LastSuccessAt == nil || !state.LastSuccessAt.Equal(finished) {
		t.Errorf("Expected last success %v, got %v", finished, state.LastSuccessAt)
	}
	if state.LastRunSummary == nil || state.LastRunSummary.RunID != "previous" {
		t.Errorf("Expected restored summary, got %+v", state.LastRunSummary)
	}
}

func TestSchedulerRestoreIgnoresErrors(t *testing.T) {
	runs := &mockRunRepository{err: errors.New("store down")}

	scheduler := NewScheduler(&mockRunner{}, runs, 0, true)
	scheduler.Start()
	defer scheduler.Stop()

	if scheduler.State().LastSuccessAt != nil {
		t.Error("Expected empty state when the run history cannot be read")
	}
}

func TestSchedulerRetriesAbortedCycle(t *testing.T) {
	runner := &mockRunner{summaries: []ingest.Summary{
		{RunID: "aborted", Status: ingest.StatusCompletedWithErrors, Aborted: true, SourceErrors: map[string]string{"store": "store unavailable"}},
	}}
	scheduler := NewScheduler(runner, nil, 0, true)
	scheduler.retryBase = 10 * time.Millisecond
	scheduler.Start()
	defer scheduler.Stop()

	scheduler.Trigger("manual")

	waitFor(t, func() bool { return len(runner.calls()) == 2 })

	state := scheduler.State()
	if state.LastSuccessAt == nil {
		t.Error("Expected the retried cycle to succeed")
	}
}

func TestSchedulerRecoversFromPanic(t *testing.T) {
	runner := &mockRunner{panicOn: 1}
	scheduler := NewScheduler(runner, nil, 0, true)
	scheduler.retryBase = time.Hour
	scheduler.Start()
	defer scheduler.Stop()

	scheduler.Trigger("boom")
	waitFor(t, func() bool { return len(runner.calls()) == 1 && !scheduler.State().IsRunning })

	scheduler.Trigger("after")
	waitFor(t, func() bool { return len(runner.calls()) == 2 })
}

func TestSchedulerRunOnce(t *testing.T) {
	runner := &mockRunner{}
	scheduler := NewScheduler(runner, nil, 0, true)

	summary := scheduler.RunOnce(context.Background(), "once")

	if summary.Reason != "once" {
		t.Errorf("Expected summary for reason 'once', got %q", summary.Reason)
	}
	if scheduler.State().LastSuccessAt == nil {
		t.Error("Expected state to be updated by RunOnce")
	}
}

func TestSchedulerPendingFollowsQueue(t *testing.T) {
	scheduler := NewScheduler(&mockRunner{}, nil, 0, true)

	scheduler.Trigger("first")
	if !scheduler.State().Pending {
		t.Fatal("Expected a pending cycle after trigger")
	}

	<-scheduler.pending
	if scheduler.State().Pending {
		t.Error("Expected no pending cycle once the worker took it")
	}

	scheduler.Trigger("second")
	if !scheduler.State().Pending {
		t.Error("Expected a trigger after dequeue to be reported as pending")
	}
}
