package guideline

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrItemRejected marks a raw item that could not be normalized into a draft.
var ErrItemRejected = errors.New("item rejected")

type Source string

const (
	SourceWHO  Source = "WHO"
	SourceCDC  Source = "CDC"
	SourceNICE Source = "NICE"
	SourceAHA  Source = "AHA"
	SourceADA  Source = "ADA"
	SourceIDSA Source = "IDSA"
)

var Sources = []Source{SourceWHO, SourceCDC, SourceNICE, SourceAHA, SourceADA, SourceIDSA}

func ParseSource(value string) (Source, error) {
	upper := strings.ToUpper(strings.TrimSpace(value))
	for _, s := range Sources {
		if string(s) == upper {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", value)
}

// Well-known RawItem keys. Adapters may add others, they are ignored.
const (
	FieldTitle   = "title"
	FieldLink    = "link"
	FieldDate    = "date"
	FieldContent = "content"
)

type RawItem map[string]string

const (
	EnrichedByAI       = "ai"
	EnrichedByFallback = "fallback"
	EnrichedBySeed     = "seed"
)

// Draft is a normalized item that has not been stored yet.
type Draft struct {
	Source        Source
	Title         string
	Link          string
	PublishedDate Date
	Snippet       string
	Fingerprint   string
}

type Guideline struct {
	ID            int64     `json:"id"`
	Source        Source    `json:"source"`
	Title         string    `json:"title"`
	Link          string    `json:"link"`
	PublishedDate Date      `json:"date"`
	Summary       string    `json:"summary"`
	Tags          []string  `json:"tags"`
	Fingerprint   string    `json:"fingerprint"`
	EnrichedBy    string    `json:"enriched_by"`
	EnrichedAt    time.Time `json:"enriched_at"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

// NewGuideline builds a record ready for a first insert.
func NewGuideline(draft Draft, summary string, tags []string, enrichedBy string, now time.Time) Guideline {
	if tags == nil {
		tags = []string{}
	}
	return Guideline{
		Source:        draft.Source,
		Title:         draft.Title,
		Link:          draft.Link,
		PublishedDate: draft.PublishedDate,
		Summary:       summary,
		Tags:          tags,
		Fingerprint:   draft.Fingerprint,
		EnrichedBy:    enrichedBy,
		EnrichedAt:    now,
		FirstSeenAt:   now,
		LastSeenAt:    now,
	}
}
