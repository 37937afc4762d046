package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/lysyi3m/guideline-hub/app/guideline"
)

const (
	lookupChunkSize = 500
	insertChunkSize = 50
)

var guidelineColumns = []string{
	"id", "source", "title", "link", "published_date", "summary", "tags",
	"fingerprint", "enriched_by", "enriched_at", "first_seen_at", "last_seen_at",
}

var insertColumns = guidelineColumns[1:]

// SQLiteGuidelineRepository handles database operations for guidelines
type SQLiteGuidelineRepository struct {
	db *DB
}

var _ GuidelineRepository = (*SQLiteGuidelineRepository)(nil)

// NewSQLiteGuidelineRepository creates a new guideline repository
func NewSQLiteGuidelineRepository(db *DB) *SQLiteGuidelineRepository {
	return &SQLiteGuidelineRepository{db: db}
}

// List returns guidelines matching the filter, newest publication first.
// Records with an unknown date sort last.
func (r *SQLiteGuidelineRepository) List(ctx context.Context, filter Filter) ([]guideline.Guideline, error) {
	query, args, err := applyFilter(sq.Select(guidelineColumns...).From("guidelines"), filter).
		OrderBy("published_date IS NULL", "published_date DESC", "id DESC").
		Limit(uint64(filter.limit())).
		Offset(uint64(filter.offset())).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list guidelines: %w", r.db.classify(ctx, err))
	}
	defer rows.Close()

	return scanGuidelines(rows)
}

func (r *SQLiteGuidelineRepository) Count(ctx context.Context, filter Filter) (int, error) {
	query, args, err := applyFilter(sq.Select("COUNT(*)").From("guidelines"), filter).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count guidelines: %w", r.db.classify(ctx, err))
	}
	return count, nil
}

// GetByID returns nil when no guideline has the given id.
func (r *SQLiteGuidelineRepository) GetByID(ctx context.Context, id int64) (*guideline.Guideline, error) {
	query, args, err := sq.Select(guidelineColumns...).From("guidelines").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build get query: %w", err)
	}

	g, err := scanGuideline(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guideline: %w", r.db.classify(ctx, err))
	}
	return &g, nil
}

func (r *SQLiteGuidelineRepository) GetByFingerprints(ctx context.Context, fingerprints []string) (map[string]guideline.Guideline, error) {
	found := make(map[string]guideline.Guideline, len(fingerprints))

	for start := 0; start < len(fingerprints); start += lookupChunkSize {
		end := min(start+lookupChunkSize, len(fingerprints))

		query, args, err := sq.Select(guidelineColumns...).
			From("guidelines").
			Where(sq.Eq{"fingerprint": fingerprints[start:end]}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build fingerprint query: %w", err)
		}

		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to look up fingerprints: %w", r.db.classify(ctx, err))
		}
		batch, err := scanGuidelines(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}

		for _, g := range batch {
			found[g.Fingerprint] = g
		}
	}

	return found, nil
}

func (r *SQLiteGuidelineRepository) Upsert(ctx context.Context, g guideline.Guideline) (int64, error) {
	if g.Fingerprint == "" {
		return 0, errors.New("guideline has no fingerprint")
	}
	tags, err := encodeTags(g.Tags)
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.db.write(ctx, func() error {
		return r.db.QueryRowContext(ctx, `
			INSERT INTO guidelines (
				source, title, link, published_date, summary, tags,
				fingerprint, enriched_by, enriched_at, first_seen_at, last_seen_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (fingerprint) DO UPDATE SET
				published_date = COALESCE(excluded.published_date, guidelines.published_date),
				summary = excluded.summary,
				tags = excluded.tags,
				enriched_by = excluded.enriched_by,
				enriched_at = excluded.enriched_at,
				last_seen_at = excluded.last_seen_at
			RETURNING id
		`, string(g.Source), g.Title, g.Link, nullDate(g.PublishedDate), g.Summary, tags,
			g.Fingerprint, g.EnrichedBy, toMillis(g.EnrichedAt), toMillis(g.FirstSeenAt), toMillis(g.LastSeenAt),
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert guideline: %w", err)
	}

	return id, nil
}

func (r *SQLiteGuidelineRepository) Touch(ctx context.Context, fingerprint string, seenAt time.Time) error {
	err := r.db.write(ctx, func() error {
		result, err := r.db.ExecContext(ctx,
			`UPDATE guidelines SET last_seen_at = ? WHERE fingerprint = ?`,
			toMillis(seenAt), fingerprint)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to touch guideline %s: %w", fingerprint, err)
	}
	return nil
}

func (r *SQLiteGuidelineRepository) InsertBatch(ctx context.Context, guidelines []guideline.Guideline) (int, error) {
	if len(guidelines) == 0 {
		return 0, nil
	}

	inserted := 0
	err := r.db.write(ctx, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for start := 0; start < len(guidelines); start += insertChunkSize {
			end := min(start+insertChunkSize, len(guidelines))

			builder := sq.Insert("guidelines").Columns(insertColumns...).Suffix("ON CONFLICT (fingerprint) DO NOTHING")
			for _, g := range guidelines[start:end] {
				if g.Fingerprint == "" {
					return fmt.Errorf("guideline %q has no fingerprint", g.Title)
				}
				tags, err := encodeTags(g.Tags)
				if err != nil {
					return err
				}
				builder = builder.Values(
					string(g.Source), g.Title, g.Link, nullDate(g.PublishedDate), g.Summary, tags,
					g.Fingerprint, g.EnrichedBy, toMillis(g.EnrichedAt), toMillis(g.FirstSeenAt), toMillis(g.LastSeenAt),
				)
			}

			query, args, err := builder.ToSql()
			if err != nil {
				return err
			}
			result, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(affected)
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert guideline batch: %w", err)
	}

	return inserted, nil
}

func (r *SQLiteGuidelineRepository) DistinctSources(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx, `SELECT DISTINCT source FROM guidelines ORDER BY source`)
}

func (r *SQLiteGuidelineRepository) DistinctTags(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx, `
		SELECT DISTINCT json_each.value
		FROM guidelines, json_each(guidelines.tags)
		ORDER BY json_each.value
	`)
}

// Stats counts all guidelines, those first seen at or after since, and
// totals per source.
func (r *SQLiteGuidelineRepository) Stats(ctx context.Context, since time.Time) (Stats, error) {
	stats := Stats{BySource: make(map[string]int)}

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN first_seen_at >= ? THEN 1 ELSE 0 END), 0)
		FROM guidelines
	`, toMillis(since)).Scan(&stats.Total, &stats.Recent)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get guideline stats: %w", r.db.classify(ctx, err))
	}

	rows, err := r.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM guidelines GROUP BY source`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get source stats: %w", r.db.classify(ctx, err))
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return Stats{}, fmt.Errorf("failed to scan source stats: %w", err)
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("error iterating source stats: %w", err)
	}

	return stats, nil
}

func (r *SQLiteGuidelineRepository) queryStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query values: %w", r.db.classify(ctx, err))
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating values: %w", err)
	}
	return values, nil
}

func applyFilter(builder sq.SelectBuilder, filter Filter) sq.SelectBuilder {
	if filter.Source != "" {
		builder = builder.Where(sq.Eq{"source": filter.Source})
	}
	if specialty := strings.TrimSpace(filter.Specialty); specialty != "" {
		builder = builder.Where(
			`EXISTS (SELECT 1 FROM json_each(guidelines.tags) WHERE lower(json_each.value) LIKE ? ESCAPE '\')`,
			"%"+escapeLike(strings.ToLower(specialty))+"%",
		)
	}
	if filter.Year > 0 {
		builder = builder.Where("substr(published_date, 1, 4) = ?", fmt.Sprintf("%04d", filter.Year))
	}
	return builder
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGuideline(row rowScanner) (guideline.Guideline, error) {
	var (
		g                               guideline.Guideline
		source, tags                    string
		published                       sql.NullString
		enrichedAt, firstSeen, lastSeen int64
	)

	err := row.Scan(
		&g.ID, &source, &g.Title, &g.Link, &published, &g.Summary, &tags,
		&g.Fingerprint, &g.EnrichedBy, &enrichedAt, &firstSeen, &lastSeen,
	)
	if err != nil {
		return guideline.Guideline{}, err
	}

	g.Source = guideline.Source(source)
	if g.PublishedDate, err = guideline.ParseDate(published.String); err != nil {
		return guideline.Guideline{}, err
	}
	if err := json.Unmarshal([]byte(tags), &g.Tags); err != nil {
		return guideline.Guideline{}, fmt.Errorf("failed to decode tags: %w", err)
	}
	if g.Tags == nil {
		g.Tags = []string{}
	}
	g.EnrichedAt = fromMillis(enrichedAt)
	g.FirstSeenAt = fromMillis(firstSeen)
	g.LastSeenAt = fromMillis(lastSeen)

	return g, nil
}

func scanGuidelines(rows *sql.Rows) ([]guideline.Guideline, error) {
	guidelines := []guideline.Guideline{}
	for rows.Next() {
		g, err := scanGuideline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guideline row: %w", err)
		}
		guidelines = append(guidelines, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating guideline rows: %w", err)
	}
	return guidelines, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(data), nil
}

func nullDate(d guideline.Date) any {
	if d.IsUnknown() {
		return nil
	}
	return d.String()
}
