package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/guideline-hub/app/ingest"
)

// ErrCycleAborted is returned by an ingest task whose cycle stopped early
// because the store became unreachable.
var ErrCycleAborted = errors.New("ingestion cycle aborted")

// Runner executes one ingestion cycle.
type Runner interface {
	Run(ctx context.Context, reason string) ingest.Summary
}

type IngestTask struct {
	Task
	runner  Runner
	Summary ingest.Summary
}

func NewIngestTask(reason string, runner Runner) *IngestTask {
	return &IngestTask{
		Task:   NewTask(TaskTypeIngest, reason),
		runner: runner,
	}
}

func (t *IngestTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t.Summary = t.runner.Run(ctx, t.Reason)

	if t.Summary.Aborted && ctx.Err() == nil {
		return fmt.Errorf("%w: %s", ErrCycleAborted, t.Summary.SourceErrors["store"])
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"reason", t.Reason,
		"duration", t.GetDuration(),
		"status", string(t.Summary.Status),
		"new", t.Summary.ItemsNew,
		"updated", t.Summary.ItemsUpdated)

	return nil
}
