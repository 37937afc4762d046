package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lysyi3m/guideline-hub/app/database"
	"github.com/lysyi3m/guideline-hub/app/enrich"
	"github.com/lysyi3m/guideline-hub/app/guideline"
)

// SeedRecord is one entry of a seed file: a JSON array of known guidelines
// imported before the first ingestion cycle.
type SeedRecord struct {
	Source  string   `json:"source"`
	Title   string   `json:"title"`
	Link    string   `json:"link"`
	Date    string   `json:"date"`
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

type ImportSeedTask struct {
	Task
	path     string
	writer   database.GuidelineWriter
	now      func() time.Time
	Imported int
	Skipped  int
}

func NewImportSeedTask(path string, writer database.GuidelineWriter) *ImportSeedTask {
	return &ImportSeedTask{
		Task:   NewTask(TaskTypeImportSeed, "seed"),
		path:   path,
		writer: writer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (t *ImportSeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var records []SeedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	now := t.now()
	guidelines := make([]guideline.Guideline, 0, len(records))
	for i, record := range records {
		g, err := seedGuideline(record, now)
		if err != nil {
			t.Skipped++
			slog.Warn("Skipping seed record", "index", i, "title", record.Title, "error", err)
			continue
		}
		guidelines = append(guidelines, g)
	}

	inserted, err := t.writer.InsertBatch(ctx, guidelines)
	if err != nil {
		return fmt.Errorf("failed to import seed records: %w", err)
	}
	t.Imported = inserted
	t.Skipped += len(guidelines) - inserted

	slog.Info("Task completed",
		"type", string(t.Type),
		"file", t.path,
		"duration", t.GetDuration(),
		"imported", t.Imported,
		"skipped", t.Skipped)

	return nil
}

func seedGuideline(record SeedRecord, now time.Time) (guideline.Guideline, error) {
	code, err := guideline.ParseSource(record.Source)
	if err != nil {
		return guideline.Guideline{}, err
	}

	normalizer, err := guideline.NewNormalizer(guideline.NormalizerOptions{Source: code})
	if err != nil {
		return guideline.Guideline{}, err
	}
	draft, err := normalizer.Run(guideline.RawItem{
		guideline.FieldTitle: record.Title,
		guideline.FieldLink:  record.Link,
		guideline.FieldDate:  record.Date,
	})
	if err != nil {
		return guideline.Guideline{}, err
	}
	draft.Fingerprint = guideline.Fingerprint(draft)

	summary, enrichedBy := record.Summary, guideline.EnrichedBySeed
	tags := enrich.NormalizeTags(record.Tags)
	if summary == "" {
		fallback := enrich.Fallback(enrich.Request{Title: draft.Title})
		summary, enrichedBy = fallback.Summary, fallback.Method
		if len(tags) == 0 {
			tags = fallback.Tags
		}
	}

	return guideline.NewGuideline(draft, summary, tags, enrichedBy, now), nil
}
