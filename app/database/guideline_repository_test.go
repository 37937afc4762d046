package database

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/lysyi3m/guideline-hub/app/guideline"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, version, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "guidelines.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if version != 2 {
		t.Errorf("Expected schema version 2, got %d", version)
	}
	return store
}

func testGuideline(source guideline.Source, title, link string, date guideline.Date, tags []string, seen time.Time) guideline.Guideline {
	draft := guideline.Draft{Source: source, Title: title, Link: link, PublishedDate: date}
	draft.Fingerprint = guideline.Fingerprint(draft)
	return guideline.NewGuideline(draft, "• point one\n• point two\n• point three", tags, guideline.EnrichedByFallback, seen)
}

func day(year int, month time.Month, d int) guideline.Date {
	return guideline.NewDate(time.Date(year, month, d, 0, 0, 0, 0, time.UTC))
}

func TestUpsertInsertsAndRefreshes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	first := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

	g := testGuideline(guideline.SourceWHO, "Hypertension Guideline 2023", "https://www.who.int/publications/hypertension", day(2023, 8, 1), []string{"hypertension"}, first)
	id, err := store.Upsert(ctx, g)
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("Expected a non-zero id")
	}

	later := first.Add(48 * time.Hour)
	g.Summary = "• refreshed one\n• refreshed two\n• refreshed three"
	g.Tags = []string{"hypertension", "cardiology"}
	g.EnrichedBy = guideline.EnrichedByAI
	g.EnrichedAt = later
	g.LastSeenAt = later
	g.FirstSeenAt = later
	g.PublishedDate = guideline.UnknownDate

	secondID, err := store.Upsert(ctx, g)
	if err != nil {
		t.Fatal(err)
	}
	if secondID != id {
		t.Errorf("Expected conflict to keep id %d, got %d", id, secondID)
	}

	stored, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil {
		t.Fatal("Expected stored guideline")
	}
	if !stored.FirstSeenAt.Equal(first) {
		t.Errorf("Expected FirstSeenAt to stay %v, got %v", first, stored.FirstSeenAt)
	}
	if !stored.LastSeenAt.Equal(later) {
		t.Errorf("Expected LastSeenAt %v, got %v", later, stored.LastSeenAt)
	}
	if stored.PublishedDate.String() != "2023-08-01" {
		t.Errorf("Expected an unknown date not to overwrite a known one, got %s", stored.PublishedDate)
	}
	if !reflect.DeepEqual(stored.Tags, []string{"hypertension", "cardiology"}) {
		t.Errorf("Expected refreshed tags, got %v", stored.Tags)
	}
	if stored.EnrichedBy != guideline.EnrichedByAI {
		t.Errorf("Expected enriched_by %s, got %s", guideline.EnrichedByAI, stored.EnrichedBy)
	}
	if stored.Source != guideline.SourceWHO {
		t.Errorf("Expected source WHO, got %s", stored.Source)
	}
}

func TestTouchUpdatesLastSeenOnly(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seen := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	g := testGuideline(guideline.SourceCDC, "Opioid Prescribing Update", "https://www.cdc.gov/mmwr/opioids", guideline.UnknownDate, nil, seen)
	if _, err := store.Upsert(ctx, g); err != nil {
		t.Fatal(err)
	}

	touched := seen.Add(24 * time.Hour)
	if err := store.Touch(ctx, g.Fingerprint, touched); err != nil {
		t.Fatal(err)
	}

	found, err := store.GetByFingerprints(ctx, []string{g.Fingerprint, "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(found))
	}
	stored := found[g.Fingerprint]
	if !stored.LastSeenAt.Equal(touched) {
		t.Errorf("Expected LastSeenAt %v, got %v", touched, stored.LastSeenAt)
	}
	if !stored.EnrichedAt.Equal(seen) {
		t.Errorf("Expected EnrichedAt unchanged, got %v", stored.EnrichedAt)
	}
	if !stored.PublishedDate.IsUnknown() {
		t.Errorf("Expected unknown date, got %s", stored.PublishedDate)
	}
	if stored.Tags == nil || len(stored.Tags) != 0 {
		t.Errorf("Expected empty tag set, got %#v", stored.Tags)
	}

	err = store.Touch(ctx, "does-not-exist", touched)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestInsertBatchSkipsConflicts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := testGuideline(guideline.SourceNICE, "Asthma: diagnosis and monitoring", "https://www.nice.org.uk/guidance/ng80", day(2021, 3, 22), []string{"asthma"}, now)
	b := testGuideline(guideline.SourceNICE, "Type 2 diabetes in adults", "https://www.nice.org.uk/guidance/ng28", day(2022, 6, 29), []string{"diabetes"}, now)

	inserted, err := store.InsertBatch(ctx, []guideline.Guideline{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 2 {
		t.Errorf("Expected 2 inserted, got %d", inserted)
	}

	inserted, err = store.InsertBatch(ctx, []guideline.Guideline{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 0 {
		t.Errorf("Expected 0 inserted on second batch, got %d", inserted)
	}

	count, err := store.Count(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("Expected 2 stored guidelines, got %d", count)
	}
}

func TestListFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	records := []guideline.Guideline{
		testGuideline(guideline.SourceWHO, "Hypertension Guideline 2023", "https://www.who.int/a", day(2023, 8, 1), []string{"hypertension", "cardiology"}, now),
		testGuideline(guideline.SourceWHO, "Malaria Treatment Guidelines", "https://www.who.int/b", day(2022, 1, 5), []string{"malaria", "infectious disease"}, now),
		testGuideline(guideline.SourceCDC, "Opioid Prescribing Update", "https://www.cdc.gov/c", guideline.UnknownDate, []string{"opioid", "pain management"}, now),
		testGuideline(guideline.SourceAHA, "Heart Failure Management", "https://www.heart.org/d", day(2023, 4, 1), []string{"heart failure", "cardiology"}, now),
		testGuideline(guideline.SourceADA, "Standards of Care 100%", "https://diabetes.org/e", day(2024, 1, 1), []string{"diabetes_care"}, now),
	}
	if _, err := store.InsertBatch(ctx, records); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all ordered by date", Filter{}, []string{"Standards of Care 100%", "Hypertension Guideline 2023", "Heart Failure Management", "Malaria Treatment Guidelines", "Opioid Prescribing Update"}},
		{"source", Filter{Source: "WHO"}, []string{"Hypertension Guideline 2023", "Malaria Treatment Guidelines"}},
		{"specialty substring case-insensitive", Filter{Specialty: "CARDIO"}, []string{"Hypertension Guideline 2023", "Heart Failure Management"}},
		{"specialty wildcard is literal", Filter{Specialty: "_"}, []string{"Standards of Care 100%"}},
		{"year excludes unknown dates", Filter{Year: 2023}, []string{"Hypertension Guideline 2023", "Heart Failure Management"}},
		{"combined", Filter{Source: "WHO", Year: 2022}, []string{"Malaria Treatment Guidelines"}},
		{"limit and offset", Filter{Limit: 2, Offset: 1}, []string{"Hypertension Guideline 2023", "Heart Failure Management"}},
		{"no match", Filter{Source: "IDSA"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := store.List(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			got := make([]string, 0, len(list))
			for _, g := range list {
				got = append(got, g.Title)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDistinctAndStats(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	records := []guideline.Guideline{
		testGuideline(guideline.SourceWHO, "Hypertension Guideline 2023", "https://www.who.int/a", day(2023, 8, 1), []string{"hypertension", "cardiology"}, now),
		testGuideline(guideline.SourceCDC, "Opioid Prescribing Update", "https://www.cdc.gov/c", guideline.UnknownDate, []string{"opioid"}, now.AddDate(0, -3, 0)),
		testGuideline(guideline.SourceCDC, "Sepsis Core Elements", "https://www.cdc.gov/s", guideline.UnknownDate, []string{"sepsis", "cardiology"}, now),
	}
	if _, err := store.InsertBatch(ctx, records); err != nil {
		t.Fatal(err)
	}

	sources, err := store.DistinctSources(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(sources, []string{"CDC", "WHO"}) {
		t.Errorf("Expected sources [CDC WHO], got %v", sources)
	}

	tags, err := store.DistinctTags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tags, []string{"cardiology", "hypertension", "opioid", "sepsis"}) {
		t.Errorf("Unexpected tags %v", tags)
	}

	stats, err := store.Stats(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 {
		t.Errorf("Expected total 3, got %d", stats.Total)
	}
	if stats.Recent != 2 {
		t.Errorf("Expected 2 recent, got %d", stats.Recent)
	}
	if stats.BySource["CDC"] != 2 || stats.BySource["WHO"] != 1 {
		t.Errorf("Unexpected per-source counts %v", stats.BySource)
	}
}

func TestGetByIDMissing(t *testing.T) {
	store := openTestStore(t)

	g, err := store.GetByID(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if g != nil {
		t.Errorf("Expected nil for missing id, got %+v", g)
	}
}

func TestWritesReportUnavailableAfterClose(t *testing.T) {
	store := openTestStore(t)
	store.Close()

	g := testGuideline(guideline.SourceIDSA, "Management of Community-Acquired Pneumonia", "https://www.idsociety.org/p", guideline.UnknownDate, nil, time.Now())
	_, err := store.Upsert(context.Background(), g)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}
