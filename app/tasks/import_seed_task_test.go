package tasks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/guideline-hub/app/guideline"
)

type recordingWriter struct {
	batch []guideline.Guideline
}

func (r *recordingWriter) GetByFingerprints(ctx context.Context, fingerprints []string) (map[string]guideline.Guideline, error) {
	return nil, nil
}

func (r *recordingWriter) Upsert(ctx context.Context, g guideline.Guideline) (int64, error) {
	return 0, nil
}

func (r *recordingWriter) Touch(ctx context.Context, fingerprint string, seenAt time.Time) error {
	return nil
}

func (r *recordingWriter) InsertBatch(ctx context.Context, guidelines []guideline.Guideline) (int, error) {
	r.batch = append(r.batch, guidelines...)
	return len(guidelines), nil
}

func TestImportSeedTask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	content := `[
		{"source": "who", "title": "Hypertension Guideline 2023", "link": "https://www.who.int/publications/htn", "date": "2023-08-01", "summary": "• Screen adults regularly", "tags": ["Hypertension", "Cardiovascular"]},
		{"source": "CDC", "title": "Opioid Prescribing Update", "link": "https://www.cdc.gov/mmwr/opioids"},
		{"source": "XYZ", "title": "Unknown organization guideline", "link": "https://example.org"},
		{"source": "NICE", "title": "", "link": "https://www.nice.org.uk/guidance/ng80"}
	]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	writer := &recordingWriter{}
	task := NewImportSeedTask(path, writer)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	if task.Imported != 2 || task.Skipped != 2 {
		t.Errorf("Expected 2 imported and 2 skipped, got %d and %d", task.Imported, task.Skipped)
	}
	if len(writer.batch) != 2 {
		t.Fatalf("Expected 2 records in batch, got %d", len(writer.batch))
	}

	who := writer.batch[0]
	if who.Source != guideline.SourceWHO || who.EnrichedBy != guideline.EnrichedBySeed {
		t.Errorf("Unexpected seeded WHO record %+v", who)
	}
	if who.PublishedDate.String() != "2023-08-01" {
		t.Errorf("Expected seeded date, got %s", who.PublishedDate)
	}
	if len(who.Tags) != 2 || who.Tags[0] != "hypertension" || who.Tags[1] != "cardiology" {
		t.Errorf("Expected canonical tags, got %v", who.Tags)
	}

	cdc := writer.batch[1]
	if cdc.EnrichedBy != guideline.EnrichedByFallback || cdc.Summary == "" {
		t.Errorf("Expected fallback enrichment for record without summary, got %+v", cdc)
	}
	if cdc.Fingerprint == "" {
		t.Error("Expected fingerprint to be computed")
	}
}

func TestImportSeedTaskMissingFile(t *testing.T) {
	task := NewImportSeedTask(filepath.Join(t.TempDir(), "missing.json"), &recordingWriter{})
	if err := task.Execute(context.Background()); err == nil {
		t.Error("Expected error for missing seed file")
	}
}
