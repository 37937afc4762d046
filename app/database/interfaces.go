package database

import (
	"context"
	"time"

	"github.com/lysyi3m/guideline-hub/app/guideline"
)

type GuidelineReader interface {
	List(ctx context.Context, filter Filter) ([]guideline.Guideline, error)
	Count(ctx context.Context, filter Filter) (int, error)
	GetByID(ctx context.Context, id int64) (*guideline.Guideline, error)
	DistinctSources(ctx context.Context) ([]string, error)
	DistinctTags(ctx context.Context) ([]string, error)
	Stats(ctx context.Context, since time.Time) (Stats, error)
}

type GuidelineWriter interface {
	GetByFingerprints(ctx context.Context, fingerprints []string) (map[string]guideline.Guideline, error)
	// Upsert inserts g or, on a fingerprint conflict, refreshes its summary,
	// tags, enrichment fields and LastSeenAt. FirstSeenAt is never changed.
	Upsert(ctx context.Context, g guideline.Guideline) (int64, error)
	Touch(ctx context.Context, fingerprint string, seenAt time.Time) error
	// InsertBatch skips records whose fingerprint already exists and returns
	// how many rows were inserted.
	InsertBatch(ctx context.Context, guidelines []guideline.Guideline) (int, error)
}

type GuidelineRepository interface {
	GuidelineReader
	GuidelineWriter
}

type RunRepository interface {
	SaveRun(ctx context.Context, run Run) error
	LastRuns(ctx context.Context, limit int) ([]Run, error)
	LastSuccessfulRun(ctx context.Context) (*Run, error)
}

// Store is a complete backend.
type Store interface {
	GuidelineRepository
	RunRepository
	Close() error
}
