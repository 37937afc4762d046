package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lysyi3m/guideline-hub/app/guideline"
)

const (
	guidelinesCollection = "guidelines"
	runsCollection       = "ingestion_runs"
	countersCollection   = "counters"
)

type guidelineDocument struct {
	ID            int64     `bson:"_id"`
	Source        string    `bson:"source"`
	Title         string    `bson:"title"`
	Link          string    `bson:"link"`
	PublishedDate *string   `bson:"published_date"`
	Summary       string    `bson:"summary"`
	Tags          []string  `bson:"tags"`
	Fingerprint   string    `bson:"fingerprint"`
	EnrichedBy    string    `bson:"enriched_by"`
	EnrichedAt    time.Time `bson:"enriched_at"`
	FirstSeenAt   time.Time `bson:"first_seen_at"`
	LastSeenAt    time.Time `bson:"last_seen_at"`
}

// MongoStore keeps guidelines and run history in MongoDB. Fingerprint
// uniqueness is enforced by an index; ids come from a counters collection so
// they stay integers like the SQLite backend.
type MongoStore struct {
	client     *mongo.Client
	guidelines *mongo.Collection
	runs       *mongo.Collection
	counters   *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

func OpenMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := newMongoStore(client, client.Database(database))
	if err := s.createIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	return s, nil
}

func newMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:     client,
		guidelines: db.Collection(guidelinesCollection),
		runs:       db.Collection(runsCollection),
		counters:   db.Collection(countersCollection),
	}
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	_, err := s.guidelines.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "fingerprint", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "source", Value: 1}}},
		{Keys: bson.D{{Key: "published_date", Value: -1}}},
		{Keys: bson.D{{Key: "first_seen_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create guideline indexes: %w", err)
	}

	_, err = s.runs.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "started_at", Value: -1}}})
	if err != nil {
		return fmt.Errorf("failed to create run indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) List(ctx context.Context, filter Filter) ([]guideline.Guideline, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "published_date", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(filter.offset())).
		SetLimit(int64(filter.limit()))

	return s.find(ctx, buildFilter(filter), opts)
}

func (s *MongoStore) Count(ctx context.Context, filter Filter) (int, error) {
	count, err := s.guidelines.CountDocuments(ctx, buildFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count guidelines: %w", classifyMongoError(err))
	}
	return int(count), nil
}

func (s *MongoStore) GetByID(ctx context.Context, id int64) (*guideline.Guideline, error) {
	var doc guidelineDocument
	err := s.guidelines.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guideline: %w", classifyMongoError(err))
	}
	g := doc.toGuideline()
	return &g, nil
}

func (s *MongoStore) GetByFingerprints(ctx context.Context, fingerprints []string) (map[string]guideline.Guideline, error) {
	found := make(map[string]guideline.Guideline, len(fingerprints))
	if len(fingerprints) == 0 {
		return found, nil
	}

	guidelines, err := s.find(ctx, bson.M{"fingerprint": bson.M{"$in": fingerprints}}, options.Find())
	if err != nil {
		return nil, err
	}
	for _, g := range guidelines {
		found[g.Fingerprint] = g
	}
	return found, nil
}

func (s *MongoStore) Upsert(ctx context.Context, g guideline.Guideline) (int64, error) {
	if g.Fingerprint == "" {
		return 0, errors.New("guideline has no fingerprint")
	}

	id, err := s.refresh(ctx, g)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("failed to upsert guideline: %w", classifyMongoError(err))
	}

	id, err = s.nextID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert guideline: %w", classifyMongoError(err))
	}
	doc := newGuidelineDocument(g)
	doc.ID = id

	_, err = s.guidelines.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		// lost a race with another writer for the same fingerprint
		id, err = s.refresh(ctx, g)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to upsert guideline: %w", classifyMongoError(err))
	}
	return id, nil
}

// refresh updates an existing record in place and returns its id, or
// mongo.ErrNoDocuments when the fingerprint is new.
func (s *MongoStore) refresh(ctx context.Context, g guideline.Guideline) (int64, error) {
	set := bson.M{
		"summary":      g.Summary,
		"tags":         nonNilTags(g.Tags),
		"enriched_by":  g.EnrichedBy,
		"enriched_at":  g.EnrichedAt,
		"last_seen_at": g.LastSeenAt,
	}
	if !g.PublishedDate.IsUnknown() {
		set["published_date"] = g.PublishedDate.String()
	}

	var existing struct {
		ID int64 `bson:"_id"`
	}
	opts := options.FindOneAndUpdate().SetProjection(bson.M{"_id": 1})
	err := s.guidelines.FindOneAndUpdate(ctx, bson.M{"fingerprint": g.Fingerprint}, bson.M{"$set": set}, opts).Decode(&existing)
	if err != nil {
		return 0, err
	}
	return existing.ID, nil
}

func (s *MongoStore) nextID(ctx context.Context) (int64, error) {
	return s.reserveIDs(ctx, 1)
}

// reserveIDs advances the guideline counter by n and returns the last id of
// the reserved block.
func (s *MongoStore) reserveIDs(ctx context.Context, n int) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": guidelinesCollection},
		bson.M{"$inc": bson.M{"seq": int64(n)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func (s *MongoStore) Touch(ctx context.Context, fingerprint string, seenAt time.Time) error {
	result, err := s.guidelines.UpdateOne(ctx,
		bson.M{"fingerprint": fingerprint},
		bson.M{"$set": bson.M{"last_seen_at": seenAt}},
	)
	if err != nil {
		return fmt.Errorf("failed to touch guideline %s: %w", fingerprint, classifyMongoError(err))
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("failed to touch guideline %s: %w", fingerprint, ErrNotFound)
	}
	return nil
}

// InsertBatch writes all new records with one unordered InsertMany. Records
// already stored, or inserted concurrently, are skipped.
func (s *MongoStore) InsertBatch(ctx context.Context, guidelines []guideline.Guideline) (int, error) {
	if len(guidelines) == 0 {
		return 0, nil
	}

	fingerprints := make([]string, 0, len(guidelines))
	for _, g := range guidelines {
		if g.Fingerprint == "" {
			return 0, fmt.Errorf("guideline %q has no fingerprint", g.Title)
		}
		fingerprints = append(fingerprints, g.Fingerprint)
	}

	existing, err := s.existingFingerprints(ctx, fingerprints)
	if err != nil {
		return 0, fmt.Errorf("failed to insert guideline batch: %w", classifyMongoError(err))
	}

	var fresh []guideline.Guideline
	for _, g := range guidelines {
		if existing[g.Fingerprint] {
			continue
		}
		existing[g.Fingerprint] = true
		fresh = append(fresh, g)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	last, err := s.reserveIDs(ctx, len(fresh))
	if err != nil {
		return 0, fmt.Errorf("failed to insert guideline batch: %w", classifyMongoError(err))
	}

	docs := make([]interface{}, len(fresh))
	for i, g := range fresh {
		doc := newGuidelineDocument(g)
		doc.ID = last - int64(len(fresh)) + int64(i) + 1
		docs[i] = doc
	}

	_, err = s.guidelines.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return len(docs), nil
	}

	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) || bulkErr.WriteConcernError != nil {
		return 0, fmt.Errorf("failed to insert guideline batch: %w", classifyMongoError(err))
	}
	skipped := 0
	for _, writeErr := range bulkErr.WriteErrors {
		if !isDuplicateKeyCode(writeErr.Code) {
			return len(docs) - len(bulkErr.WriteErrors), fmt.Errorf("failed to insert guideline batch: %w", err)
		}
		skipped++
	}
	return len(docs) - skipped, nil
}

func (s *MongoStore) existingFingerprints(ctx context.Context, fingerprints []string) (map[string]bool, error) {
	opts := options.Find().SetProjection(bson.M{"fingerprint": 1})
	cursor, err := s.guidelines.Find(ctx, bson.M{"fingerprint": bson.M{"$in": fingerprints}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []struct {
		Fingerprint string `bson:"fingerprint"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	existing := make(map[string]bool, len(docs))
	for _, doc := range docs {
		existing[doc.Fingerprint] = true
	}
	return existing, nil
}

func isDuplicateKeyCode(code int) bool {
	return code == 11000 || code == 11001 || code == 12582
}

func (s *MongoStore) DistinctSources(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "source")
}

func (s *MongoStore) DistinctTags(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "tags")
}

func (s *MongoStore) Stats(ctx context.Context, since time.Time) (Stats, error) {
	stats := Stats{BySource: make(map[string]int)}

	total, err := s.guidelines.CountDocuments(ctx, bson.M{})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get guideline stats: %w", classifyMongoError(err))
	}
	recent, err := s.guidelines.CountDocuments(ctx, bson.M{"first_seen_at": bson.M{"$gte": since}})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get guideline stats: %w", classifyMongoError(err))
	}
	stats.Total = int(total)
	stats.Recent = int(recent)

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$source"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := s.guidelines.Aggregate(ctx, pipeline)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get source stats: %w", classifyMongoError(err))
	}
	defer cursor.Close(ctx)

	var groups []struct {
		Source string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return Stats{}, fmt.Errorf("failed to decode source stats: %w", classifyMongoError(err))
	}
	for _, group := range groups {
		stats.BySource[group.Source] = group.Count
	}

	return stats, nil
}

func (s *MongoStore) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run has no id")
	}
	if run.SourceErrors == nil {
		run.SourceErrors = map[string]string{}
	}

	_, err := s.runs.ReplaceOne(ctx, bson.M{"_id": run.ID}, run, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", classifyMongoError(err))
	}
	return nil
}

func (s *MongoStore) LastRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := s.runs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get runs: %w", classifyMongoError(err))
	}
	defer cursor.Close(ctx)

	runs := []Run{}
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, fmt.Errorf("failed to decode runs: %w", classifyMongoError(err))
	}
	for i := range runs {
		runs[i].StartedAt = runs[i].StartedAt.UTC()
		runs[i].FinishedAt = runs[i].FinishedAt.UTC()
	}
	return runs, nil
}

func (s *MongoStore) LastSuccessfulRun(ctx context.Context) (*Run, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "finished_at", Value: -1}})

	var run Run
	err := s.runs.FindOne(ctx, bson.M{"succeeded": true}, opts).Decode(&run)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last successful run: %w", classifyMongoError(err))
	}
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	return &run, nil
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]guideline.Guideline, error) {
	cursor, err := s.guidelines.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find guidelines: %w", classifyMongoError(err))
	}
	defer cursor.Close(ctx)

	guidelines := []guideline.Guideline{}
	for cursor.Next(ctx) {
		var doc guidelineDocument
		if err := cursor.Decode(&doc); err != nil {
			slog.Warn("Skipping undecodable guideline document", "error", err)
			continue
		}
		guidelines = append(guidelines, doc.toGuideline())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating guidelines: %w", classifyMongoError(err))
	}
	return guidelines, nil
}

func (s *MongoStore) distinct(ctx context.Context, field string) ([]string, error) {
	values, err := s.guidelines.Distinct(ctx, field, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to get distinct %s: %w", field, classifyMongoError(err))
	}

	result := make([]string, 0, len(values))
	for _, value := range values {
		if str, ok := value.(string); ok {
			result = append(result, str)
		}
	}
	sort.Strings(result)
	return result, nil
}

// buildFilter mirrors the SQLite listing semantics: exact source, tag
// substring match and a year prefix on the stored ISO date.
func buildFilter(filter Filter) bson.M {
	query := bson.M{}
	if filter.Source != "" {
		query["source"] = filter.Source
	}
	if specialty := strings.TrimSpace(filter.Specialty); specialty != "" {
		query["tags"] = bson.M{"$regex": regexp.QuoteMeta(specialty), "$options": "i"}
	}
	if filter.Year > 0 {
		query["published_date"] = bson.M{"$regex": fmt.Sprintf("^%04d-", filter.Year)}
	}
	return query
}

func newGuidelineDocument(g guideline.Guideline) guidelineDocument {
	doc := guidelineDocument{
		ID:          g.ID,
		Source:      string(g.Source),
		Title:       g.Title,
		Link:        g.Link,
		Summary:     g.Summary,
		Tags:        nonNilTags(g.Tags),
		Fingerprint: g.Fingerprint,
		EnrichedBy:  g.EnrichedBy,
		EnrichedAt:  g.EnrichedAt,
		FirstSeenAt: g.FirstSeenAt,
		LastSeenAt:  g.LastSeenAt,
	}
	if !g.PublishedDate.IsUnknown() {
		date := g.PublishedDate.String()
		doc.PublishedDate = &date
	}
	return doc
}

func (d guidelineDocument) toGuideline() guideline.Guideline {
	date := guideline.UnknownDate
	if d.PublishedDate != nil {
		if parsed, err := guideline.ParseDate(*d.PublishedDate); err == nil {
			date = parsed
		}
	}
	return guideline.Guideline{
		ID:            d.ID,
		Source:        guideline.Source(d.Source),
		Title:         d.Title,
		Link:          d.Link,
		PublishedDate: date,
		Summary:       d.Summary,
		Tags:          nonNilTags(d.Tags),
		Fingerprint:   d.Fingerprint,
		EnrichedBy:    d.EnrichedBy,
		EnrichedAt:    d.EnrichedAt.UTC(),
		FirstSeenAt:   d.FirstSeenAt.UTC(),
		LastSeenAt:    d.LastSeenAt.UTC(),
	}
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func classifyMongoError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
