package ingest

import (
	"context"
	"maps"
	"time"

	"github.com/lysyi3m/guideline-hub/app/database"
	"github.com/lysyi3m/guideline-hub/app/enrich"
	"github.com/lysyi3m/guideline-hub/app/guideline"
	"github.com/lysyi3m/guideline-hub/app/source"
)

type Status string

const (
	StatusIdle                Status = "idle"
	StatusRunning             Status = "running"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
)

// storeErrorKey is the SourceErrors key used for failures that are not tied
// to a single source.
const storeErrorKey = "store"

type ConfigProvider interface {
	GetEnabledConfigs() []*source.Config
}

type AdapterResolver interface {
	Resolve(name string) (source.Adapter, error)
}

type Enricher interface {
	Run(ctx context.Context, draft guideline.Draft) enrich.Result
}

type ContentExtractor interface {
	Run(ctx context.Context, pacer source.Pacer, link string, respectRobots bool) (string, error)
}

// Summary describes one ingestion cycle.
type Summary struct {
	RunID            string            `json:"run_id"`
	Reason           string            `json:"reason"`
	Status           Status            `json:"status"`
	Aborted          bool              `json:"aborted"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
	SourcesAttempted int               `json:"sources_attempted"`
	SourcesFailed    int               `json:"sources_failed"`
	ItemsSeen        int               `json:"items_seen"`
	ItemsNew         int               `json:"items_new"`
	ItemsUpdated     int               `json:"items_updated"`
	ItemsRejected    int               `json:"items_rejected"`
	ItemsFailed      int               `json:"items_failed"`
	ItemsReenriched  int               `json:"items_reenriched"`
	Fallbacks        int               `json:"fallbacks"`
	SourceErrors     map[string]string `json:"source_errors"`
}

// Succeeded reports whether the cycle counts towards freshness: it was not
// aborted and at least one source delivered.
func (s Summary) Succeeded() bool {
	if s.Aborted {
		return false
	}
	return s.SourcesAttempted == 0 || s.SourcesFailed < s.SourcesAttempted
}

func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s Summary) Run() database.Run {
	return database.Run{
		ID:               s.RunID,
		Reason:           s.Reason,
		Status:           string(s.Status),
		Succeeded:        s.Succeeded(),
		Aborted:          s.Aborted,
		StartedAt:        s.StartedAt,
		FinishedAt:       s.FinishedAt,
		SourcesAttempted: s.SourcesAttempted,
		SourcesFailed:    s.SourcesFailed,
		ItemsSeen:        s.ItemsSeen,
		ItemsNew:         s.ItemsNew,
		ItemsUpdated:     s.ItemsUpdated,
		ItemsRejected:    s.ItemsRejected,
		ItemsFailed:      s.ItemsFailed,
		ItemsReenriched:  s.ItemsReenriched,
		Fallbacks:        s.Fallbacks,
		SourceErrors:     maps.Clone(s.SourceErrors),
	}
}

func SummaryFromRun(run database.Run) Summary {
	return Summary{
		RunID:            run.ID,
		Reason:           run.Reason,
		Status:           Status(run.Status),
		Aborted:          run.Aborted,
		StartedAt:        run.StartedAt,
		FinishedAt:       run.FinishedAt,
		SourcesAttempted: run.SourcesAttempted,
		SourcesFailed:    run.SourcesFailed,
		ItemsSeen:        run.ItemsSeen,
		ItemsNew:         run.ItemsNew,
		ItemsUpdated:     run.ItemsUpdated,
		ItemsRejected:    run.ItemsRejected,
		ItemsFailed:      run.ItemsFailed,
		ItemsReenriched:  run.ItemsReenriched,
		Fallbacks:        run.Fallbacks,
		SourceErrors:     maps.Clone(run.SourceErrors),
	}
}
